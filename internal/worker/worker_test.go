package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/autoclaim/kestrel/internal/bus"
	"github.com/autoclaim/kestrel/internal/cache"
	"github.com/autoclaim/kestrel/internal/domain"
	"github.com/autoclaim/kestrel/internal/history"
	"github.com/autoclaim/kestrel/internal/pipeline"
	"github.com/autoclaim/kestrel/internal/repository"
	"github.com/autoclaim/kestrel/internal/rules"
)

type workerFixture struct {
	bus  *bus.ChannelBus
	repo domain.Repository
	pipe *pipeline.Pipeline
}

func newFixture(t *testing.T) *workerFixture {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "worker-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(100)
	t.Cleanup(func() { lru.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pipe := pipeline.New(rules.NewEngine(nil), nil, nil, history.NewService(repo, lru), logger)

	return &workerFixture{bus: eventBus, repo: repo, pipe: pipe}
}

func seedPolicy(t *testing.T, repo domain.Repository, tenantID string) {
	t.Helper()
	policy := &domain.PolicyRecord{
		PolicyNumber:        "POL-2026-001",
		VehicleMake:         "Maruti",
		VehicleModel:        "Swift",
		VehicleColor:        "white",
		VehicleRegistration: "KL-07-CU-7475",
		Status:              domain.PolicyActive,
		StartDate:           "2026-01-01",
		EndDate:             "2099-12-31",
		PlanCoverage:        100_000,
		Location:            "Kochi, Kerala",
	}
	if err := repo.SavePolicy(context.Background(), tenantID, policy); err != nil {
		t.Fatalf("SavePolicy failed: %v", err)
	}
}

func seedClaim(t *testing.T, repo domain.Repository, tenantID, claimID string, amount int64) {
	t.Helper()
	truth := true
	now := time.Now().UTC()
	claim := &domain.Claim{
		ID:           claimID,
		TenantID:     tenantID,
		PolicyNumber: "POL-2026-001",
		Amount:       amount,
		Status:       domain.ClaimProcessing,
		Facts: &domain.FactBundle{
			OCR: &domain.OCRData{PlateText: "KL07CU7475", Confidence: 0.95},
			Vehicle: &domain.VehicleIdentification{
				Make: "Maruti", Model: "Swift", Color: "white",
				DetectedConfidence: 0.95, LicensePlateVisible: true,
			},
			Damage: &domain.DamageAssessment{
				DamageDetected: &truth,
				Severity:       domain.SeverityMinor,
			},
			Narrative: &domain.NarrativeConsistency{VisualEvidenceMatches: true},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.SaveClaim(context.Background(), tenantID, claim); err != nil {
		t.Fatalf("SaveClaim failed: %v", err)
	}
}

func TestWorker(t *testing.T) {
	f := newFixture(t)

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(f.bus, f.repo, f.pipe)

		cfg := Config{
			TenantIDs:   []string{"tenant-001"},
			WorkerCount: 1,
		}
		if err := w.Start(cfg); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = w.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessClaim", func(t *testing.T) {
		tenantID := "tenant-test"
		seedPolicy(t, f.repo, tenantID)
		seedClaim(t, f.repo, tenantID, "claim-001", 15_000)

		w := NewWorker(f.bus, f.repo, f.pipe)
		w.Start(Config{TenantIDs: []string{tenantID}})
		defer w.Stop()

		var verdictReceived atomic.Bool
		var verdictPayload []byte

		f.bus.Subscribe(context.Background(), tenantID, domain.TopicClaimVerified, func(ctx context.Context, msg *domain.Message) error {
			verdictPayload = msg.Payload
			verdictReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		payload, _ := json.Marshal(ClaimMessage{
			ClaimID:  "claim-001",
			TenantID: tenantID,
			TraceID:  "trace-001",
		})
		if err := f.bus.Publish(context.Background(), tenantID, domain.TopicClaimSubmitted, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(200 * time.Millisecond)

		if !verdictReceived.Load() {
			t.Fatal("expected verdict to be published")
		}

		var verified VerifiedMessage
		if err := json.Unmarshal(verdictPayload, &verified); err != nil {
			t.Fatalf("failed to parse verdict: %v", err)
		}
		if verified.ClaimID != "claim-001" {
			t.Errorf("expected claimID 'claim-001', got '%s'", verified.ClaimID)
		}
		if verified.TraceID != "trace-001" {
			t.Errorf("expected traceID 'trace-001', got '%s'", verified.TraceID)
		}
		if verified.Result.Status != domain.VerdictApproved {
			t.Errorf("expected APPROVED for clean claim, got %s: %s",
				verified.Result.Status, verified.Result.DecisionReason)
		}

		// The verification and claim stamp are persisted.
		result, err := f.repo.GetVerificationByClaim(context.Background(), tenantID, "claim-001")
		if err != nil {
			t.Fatalf("GetVerificationByClaim failed: %v", err)
		}
		if result.Status != domain.VerdictApproved {
			t.Errorf("expected persisted APPROVED, got %s", result.Status)
		}

		claim, err := f.repo.GetClaim(context.Background(), tenantID, "claim-001")
		if err != nil {
			t.Fatalf("GetClaim failed: %v", err)
		}
		if claim.Status != domain.ClaimApproved {
			t.Errorf("expected claim status approved, got %s", claim.Status)
		}
	})

	t.Run("AlertPublishedForRejection", func(t *testing.T) {
		tenantID := "tenant-alert"
		seedPolicy(t, f.repo, tenantID)

		// Claim far above coverage with a mismatched plate rejects.
		truth := true
		now := time.Now().UTC()
		claim := &domain.Claim{
			ID:           "claim-bad",
			TenantID:     tenantID,
			PolicyNumber: "POL-2026-001",
			Amount:       50_000,
			Status:       domain.ClaimProcessing,
			Facts: &domain.FactBundle{
				OCR: &domain.OCRData{PlateText: "MH12AB9999", Confidence: 0.95},
				Damage: &domain.DamageAssessment{
					DamageDetected: &truth,
					Severity:       domain.SeverityMinor,
				},
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := f.repo.SaveClaim(context.Background(), tenantID, claim); err != nil {
			t.Fatalf("SaveClaim failed: %v", err)
		}

		w := NewWorker(f.bus, f.repo, f.pipe)
		w.Start(Config{TenantIDs: []string{tenantID}})
		defer w.Stop()

		var alertReceived atomic.Bool
		f.bus.Subscribe(context.Background(), tenantID, domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			alertReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		payload, _ := json.Marshal(ClaimMessage{ClaimID: "claim-bad", TenantID: tenantID})
		f.bus.Publish(context.Background(), tenantID, domain.TopicClaimSubmitted, payload)

		time.Sleep(200 * time.Millisecond)

		if !alertReceived.Load() {
			t.Error("expected alert to be published for non-approved claim")
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(f.bus, f.repo, f.pipe)

		cfg := Config{TenantIDs: []string{"tenant-a", "tenant-b"}}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestClaimMessageParsing(t *testing.T) {
	msg := ClaimMessage{
		ClaimID:  "claim-123",
		TenantID: "tenant-001",
		TraceID:  "trace-456",
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed ClaimMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if parsed.ClaimID != msg.ClaimID {
		t.Errorf("expected ClaimID '%s', got '%s'", msg.ClaimID, parsed.ClaimID)
	}
	if parsed.TraceID != msg.TraceID {
		t.Errorf("expected TraceID '%s', got '%s'", msg.TraceID, parsed.TraceID)
	}
}
