package domain

import (
	"testing"
	"time"
)

func TestDefaultConfigCacheTTL(t *testing.T) {
	cfg := DefaultConfig()

	// LocalTTL is a time.Duration; a bare integer here would mean
	// nanoseconds and effectively disable the L1 cache.
	if cfg.Cache.LocalTTL != 5*time.Minute {
		t.Errorf("expected 5m local cache TTL, got %v", cfg.Cache.LocalTTL)
	}
	if cfg.Cache.LocalTTL < time.Second {
		t.Error("local cache TTL must not be sub-second")
	}
}

func TestConfigTiers(t *testing.T) {
	community := DefaultConfig()
	if community.Tier != TierCommunity || community.Repository.Driver != "sqlite" {
		t.Errorf("unexpected community defaults: %s/%s", community.Tier, community.Repository.Driver)
	}

	pro := ProConfig()
	if pro.Tier != TierPro || pro.Repository.Driver != "postgres" {
		t.Errorf("unexpected pro defaults: %s/%s", pro.Tier, pro.Repository.Driver)
	}
	if pro.EventBus.Type != "nats" || pro.Cache.Type != "redis" {
		t.Errorf("expected nats+redis for pro, got %s/%s", pro.EventBus.Type, pro.Cache.Type)
	}
}
