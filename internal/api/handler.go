package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/autoclaim/kestrel/internal/domain"
	"github.com/autoclaim/kestrel/internal/estimator"
	"github.com/autoclaim/kestrel/internal/pipeline"
	"github.com/autoclaim/kestrel/internal/repository"
	"github.com/autoclaim/kestrel/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	pipeline  *pipeline.Pipeline
	custom    *rules.CustomEngine
	estimator *estimator.Estimator
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, p *pipeline.Pipeline, custom *rules.CustomEngine, est *estimator.Estimator, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		pipeline:  p,
		custom:    custom,
		estimator: est,
		version:   version,
	}
}

// VerifyResponse is the response for POST /claims/verify.
type VerifyResponse struct {
	ClaimID        string                       `json:"claimId"`
	VerificationID string                       `json:"verificationId"`
	Verification   *domain.VerificationResponse `json:"verification"`
	Estimate       *domain.CostEstimate         `json:"estimate,omitempty"`
	Metadata       struct {
		TraceID     string `json:"traceId"`
		TotalMs     int64  `json:"totalMs"`
		Version     string `json:"version"`
		Submissions int64  `json:"submissionCount"`
	} `json:"metadata"`
}

// VerifyClaim handles POST /claims/verify: synchronous verification.
func (h *Handler) VerifyClaim(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req domain.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.PolicyNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policyNumber is required",
		})
		return
	}
	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be positive",
		})
		return
	}

	claim := req.ToClaim(tenantID)
	claim.ID = uuid.New().String()

	out, err := h.pipeline.VerifyRequest(ctx, claim)
	if err != nil {
		if errors.Is(err, domain.ErrMissingPolicy) || errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "policy not found: " + req.PolicyNumber,
			})
			return
		}
		slog.Error("claim verification failed", "claim_id", claim.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "verification failed",
		})
		return
	}

	if out.Estimate.HasEstimate() {
		claim.EstimateMin = out.Estimate.TotalINRMin
		claim.EstimateMax = out.Estimate.TotalINRMax
	}

	if h.repo != nil {
		if err := h.repo.SaveClaim(ctx, tenantID, claim); err != nil {
			slog.Error("failed to save claim", "claim_id", claim.ID, "error", err)
		}
		if err := h.repo.SaveVerification(ctx, tenantID, out.Result, out.Forensic); err != nil {
			slog.Error("failed to save verification", "claim_id", claim.ID, "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(out.Result.ToResponse())
		if err := h.bus.Publish(ctx, tenantID, domain.TopicClaimVerified, payload); err != nil {
			slog.Error("failed to publish verdict", "claim_id", claim.ID, "error", err)
		}
		if out.Result.Status != domain.VerdictApproved {
			_ = h.bus.Publish(ctx, tenantID, domain.TopicAlert, payload)
		}
	}

	resp := VerifyResponse{
		ClaimID:        claim.ID,
		VerificationID: out.Result.ID,
		Verification:   out.Result.ToResponse(),
		Estimate:       out.Estimate,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version
	resp.Metadata.Submissions = out.Submissions

	writeJSON(w, http.StatusOK, resp)
}

// EstimateRequest is the request body for POST /estimate.
type EstimateRequest struct {
	DamagedPanels []string `json:"damagedPanels"`
	VehicleMake   string   `json:"vehicleMake,omitempty"`
	VehicleModel  string   `json:"vehicleModel,omitempty"`
	VehicleYear   string   `json:"vehicleYear,omitempty"`
}

// EstimateCost handles POST /estimate: standalone repair pricing.
func (h *Handler) EstimateCost(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.DamagedPanels) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "damagedPanels is required",
		})
		return
	}

	estimate := h.estimator.Estimate(req.DamagedPanels, req.VehicleMake, req.VehicleModel, req.VehicleYear)
	writeJSON(w, http.StatusOK, estimate)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetVerification retrieves a verification result by ID.
func (h *Handler) GetVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	verificationID := chi.URLParam(r, "id")

	result, err := h.repo.GetVerification(ctx, tenantID, verificationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "verification not found",
			})
			return
		}
		slog.Error("failed to get verification", "id", verificationID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get verification",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetClaim retrieves a claim by ID, with its verification if present.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	claim, err := h.repo.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "claim not found",
			})
			return
		}
		slog.Error("failed to get claim", "id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get claim",
		})
		return
	}

	resp := map[string]any{"claim": claim}
	if result, err := h.repo.GetVerificationByClaim(ctx, tenantID, claimID); err == nil {
		resp["verification"] = result
	}

	writeJSON(w, http.StatusOK, resp)
}

// SavePolicy handles POST /policies: upsert a policy record.
func (h *Handler) SavePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var policy domain.PolicyRecord
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if policy.PolicyNumber == "" || policy.VehicleRegistration == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policyNumber and vehicleRegistration are required",
		})
		return
	}

	if err := h.repo.SavePolicy(ctx, tenantID, &policy); err != nil {
		slog.Error("failed to save policy", "policy_number", policy.PolicyNumber, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save policy",
		})
		return
	}

	// Drop any stale cached snapshot.
	if h.cache != nil {
		_ = h.cache.Delete(ctx, tenantID, "policy:"+policy.PolicyNumber)
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"policyNumber": policy.PolicyNumber,
	})
}

// ListPolicies returns all policies for the tenant.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	policies, err := h.repo.ListPolicies(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list policies", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list policies",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"policies": policies,
		"count":    len(policies),
	})
}

// GetPolicy retrieves a policy by number.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	policyNumber := chi.URLParam(r, "number")

	policy, err := h.repo.GetPolicy(ctx, tenantID, policyNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "policy not found",
			})
			return
		}
		slog.Error("failed to get policy", "policy_number", policyNumber, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get policy",
		})
		return
	}

	writeJSON(w, http.StatusOK, policy)
}

// DeletePolicy removes a policy.
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	policyNumber := chi.URLParam(r, "number")

	if err := h.repo.DeletePolicy(ctx, tenantID, policyNumber); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "policy not found",
			})
			return
		}
		slog.Error("failed to delete policy", "policy_number", policyNumber, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete policy",
		})
		return
	}

	if h.cache != nil {
		_ = h.cache.Delete(ctx, tenantID, "policy:"+policyNumber)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "policy deleted",
	})
}

// ListRules returns the operator rules loaded in the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.custom.LoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loaded,
		"count":  len(loaded),
		"source": "database",
	})
}

// GetRule retrieves an operator rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	rule, err := h.repo.GetCustomRule(ctx, tenantID, ruleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to get rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get rule",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// CreateRule creates an operator rule and loads it into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var rule domain.CustomRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if rule.ID == "" || rule.Name == "" || rule.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	if rule.Version == "" {
		rule.Version = "1.0"
	}
	rule.TenantID = tenantID

	// Validate the CEL expression before persisting.
	if err := h.custom.ValidateRule(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveCustomRule(ctx, tenantID, &rule); err != nil {
			slog.Error("failed to save rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	if err := h.custom.LoadRule(&rule); err != nil {
		slog.Error("failed to load rule into engine", "id", rule.ID, "error", err)
	}

	slog.Info("rule created", "id", rule.ID, "name", rule.Name, "tenant_id", tenantID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule": rule,
	})
}

// DeleteRule soft-deletes an operator rule and reloads the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	if err := h.repo.DeleteCustomRule(ctx, tenantID, ruleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to delete rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete rule",
		})
		return
	}

	h.reloadEngineRules(ctx, tenantID)

	slog.Info("rule deleted", "id", ruleID, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "rule deleted and engine reloaded",
	})
}

// ReloadRules reloads all operator rules from the database into the engine.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	count, err := h.reloadEngineRules(ctx, tenantID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", count, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}

func (h *Handler) reloadEngineRules(ctx context.Context, tenantID string) (int, error) {
	dbRules, err := h.repo.ListCustomRules(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		return 0, err
	}
	if err := h.custom.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		return 0, err
	}
	return len(dbRules), nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
