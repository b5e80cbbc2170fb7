package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/autoclaim/kestrel/internal/bus"
	"github.com/autoclaim/kestrel/internal/cache"
	"github.com/autoclaim/kestrel/internal/domain"
	"github.com/autoclaim/kestrel/internal/estimator"
	"github.com/autoclaim/kestrel/internal/history"
	"github.com/autoclaim/kestrel/internal/pipeline"
	"github.com/autoclaim/kestrel/internal/repository"
	"github.com/autoclaim/kestrel/internal/rules"
)

// createTestServer builds a full server against a temp sqlite database
// with one active policy seeded for tenant-001.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "api-test-*.db")
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

	custom, err := rules.NewCustomEngine(4)
	if err != nil {
		t.Fatalf("NewCustomEngine failed: %v", err)
	}

	est := estimator.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := pipeline.New(rules.NewEngine(nil), custom, est, history.NewService(repo, lru), logger)

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
	if err := repo.SavePolicy(context.Background(), "tenant-001", policy); err != nil {
		t.Fatalf("SavePolicy failed: %v", err)
	}

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	return NewServer(cfg, repo, lru, eventBus, p, custom, est, "test-v1")
}

func boolPtr(b bool) *bool { return &b }

func cleanClaimRequest() domain.ClaimRequest {
	return domain.ClaimRequest{
		PolicyNumber: "POL-2026-001",
		Amount:       15_000,
		Narrative:    "Front bumper scraped a pillar while parking.",
		Facts: &domain.FactBundle{
			OCR: &domain.OCRData{PlateText: "KL07CU7475", Confidence: 0.95},
			Vehicle: &domain.VehicleIdentification{
				Make: "Maruti", Model: "Swift", Color: "white",
				DetectedConfidence: 0.95, LicensePlateVisible: true,
			},
			Damage: &domain.DamageAssessment{
				DamageDetected: boolPtr(true),
				Severity:       domain.SeverityMinor,
				DamagedPanels:  []string{"front_bumper"},
			},
			Narrative: &domain.NarrativeConsistency{VisualEvidenceMatches: true},
		},
	}
}

func postJSON(t *testing.T, server *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "tenant-001")
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func getJSON(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-Tenant-ID", "tenant-001")
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestVerifyClaimEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("SuccessfulVerification", func(t *testing.T) {
		rr := postJSON(t, server, "/claims/verify", cleanClaimRequest())

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp VerifyResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.ClaimID == "" {
			t.Error("expected claimId in response")
		}
		if resp.VerificationID == "" {
			t.Error("expected verificationId in response")
		}
		if resp.Verification.Status != domain.VerdictApproved {
			t.Errorf("expected APPROVED, got %s: %s",
				resp.Verification.Status, resp.Verification.DecisionReason)
		}
		if resp.Estimate == nil || len(resp.Estimate.Breakdown) != 1 {
			t.Errorf("expected estimate with 1 priced panel, got %+v", resp.Estimate)
		}
		if resp.Metadata.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Metadata.Version)
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
		if resp.Metadata.Submissions < 1 {
			t.Errorf("expected submission count >= 1, got %d", resp.Metadata.Submissions)
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/claims/verify", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")
		// No X-Tenant-ID header

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/claims/verify", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingPolicyNumber", func(t *testing.T) {
		body := cleanClaimRequest()
		body.PolicyNumber = ""
		rr := postJSON(t, server, "/claims/verify", body)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		body := cleanClaimRequest()
		body.Amount = -100
		rr := postJSON(t, server, "/claims/verify", body)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownPolicy", func(t *testing.T) {
		body := cleanClaimRequest()
		body.PolicyNumber = "POL-DOES-NOT-EXIST"
		rr := postJSON(t, server, "/claims/verify", body)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("ResponseHeaders", func(t *testing.T) {
		rr := postJSON(t, server, "/claims/verify", cleanClaimRequest())

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header in response")
		}
		if rr.Header().Get("X-Trace-ID") == "" {
			t.Error("expected X-Trace-ID header in response")
		}
		if rr.Header().Get("Content-Type") != "application/json" {
			t.Error("expected Content-Type: application/json")
		}
	})
}

func TestRetrievalEndpoints(t *testing.T) {
	server := createTestServer(t)

	rr := postJSON(t, server, "/claims/verify", cleanClaimRequest())
	if rr.Code != http.StatusOK {
		t.Fatalf("verify failed: %d %s", rr.Code, rr.Body.String())
	}
	var verified VerifyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &verified); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	t.Run("GetVerification", func(t *testing.T) {
		rr := getJSON(t, server, "/verifications/"+verified.VerificationID)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var result domain.VerificationResult
		if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if result.ClaimID != verified.ClaimID {
			t.Errorf("expected claim %s, got %s", verified.ClaimID, result.ClaimID)
		}
	})

	t.Run("GetVerificationNotFound", func(t *testing.T) {
		rr := getJSON(t, server, "/verifications/no-such-id")
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("GetClaimWithVerification", func(t *testing.T) {
		rr := getJSON(t, server, "/claims/"+verified.ClaimID)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp map[string]json.RawMessage
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if _, ok := resp["claim"]; !ok {
			t.Error("expected claim in response")
		}
		if _, ok := resp["verification"]; !ok {
			t.Error("expected verification attached to claim")
		}
	})

	t.Run("GetClaimNotFound", func(t *testing.T) {
		rr := getJSON(t, server, "/claims/no-such-claim")
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestEstimateEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("PricesPanels", func(t *testing.T) {
		rr := postJSON(t, server, "/estimate", EstimateRequest{
			DamagedPanels: []string{"front_bumper", "hood"},
			VehicleMake:   "Maruti",
			VehicleModel:  "Swift",
			VehicleYear:   "2022",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var estimate domain.CostEstimate
		if err := json.Unmarshal(rr.Body.Bytes(), &estimate); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if len(estimate.Breakdown) != 2 {
			t.Errorf("expected 2 priced panels, got %d", len(estimate.Breakdown))
		}
		if estimate.TotalINRMax <= 0 {
			t.Error("expected positive estimate total")
		}
	})

	t.Run("RequiresPanels", func(t *testing.T) {
		rr := postJSON(t, server, "/estimate", EstimateRequest{})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestPolicyEndpoints(t *testing.T) {
	server := createTestServer(t)

	policy := domain.PolicyRecord{
		PolicyNumber:        "POL-2026-777",
		VehicleMake:         "Hyundai",
		VehicleModel:        "i20",
		VehicleRegistration: "KA-01-AB-1234",
		Status:              domain.PolicyActive,
		StartDate:           "2026-01-01",
		EndDate:             "2026-12-31",
		PlanCoverage:        200_000,
	}

	t.Run("CreatePolicy", func(t *testing.T) {
		rr := postJSON(t, server, "/policies", policy)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("RejectsIncompletePolicy", func(t *testing.T) {
		rr := postJSON(t, server, "/policies", domain.PolicyRecord{PolicyNumber: "POL-NO-REG"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("GetPolicy", func(t *testing.T) {
		rr := getJSON(t, server, "/policies/POL-2026-777")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var got domain.PolicyRecord
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if got.VehicleRegistration != "KA-01-AB-1234" {
			t.Errorf("expected registration KA-01-AB-1234, got %s", got.VehicleRegistration)
		}
	})

	t.Run("ListPolicies", func(t *testing.T) {
		rr := getJSON(t, server, "/policies")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 2 {
			t.Errorf("expected 2 policies (seeded + created), got %d", resp.Count)
		}
	})

	t.Run("DeletePolicy", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/policies/POL-2026-777", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		rr2 := getJSON(t, server, "/policies/POL-2026-777")
		if rr2.Code != http.StatusNotFound {
			t.Errorf("expected status 404 after delete, got %d", rr2.Code)
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	server := createTestServer(t)

	rule := domain.CustomRule{
		ID:         "HIGH_VALUE_CLAIM",
		Name:       "High Value Claim",
		Expression: "claim_amount > 50000",
		Reason:     "Claim exceeds the high-value review threshold.",
		Severity:   domain.SeverityMedium,
		Phase:      domain.PhaseFinancial,
		Enabled:    true,
	}

	t.Run("CreateRule", func(t *testing.T) {
		rr := postJSON(t, server, "/rules", rule)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("RejectsInvalidExpression", func(t *testing.T) {
		bad := rule
		bad.ID = "BROKEN_RULE"
		bad.Expression = "claim_amount >>> nonsense"
		rr := postJSON(t, server, "/rules", bad)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("RejectsNonBoolExpression", func(t *testing.T) {
		bad := rule
		bad.ID = "NON_BOOL_RULE"
		bad.Expression = "claim_amount + 1"
		rr := postJSON(t, server, "/rules", bad)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ListRules", func(t *testing.T) {
		rr := getJSON(t, server, "/rules")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 loaded rule, got %d", resp.Count)
		}
	})

	t.Run("GetRule", func(t *testing.T) {
		rr := getJSON(t, server, "/rules/HIGH_VALUE_CLAIM")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("CreatedRuleFoldsIntoVerdict", func(t *testing.T) {
		body := cleanClaimRequest()
		body.Amount = 80_000
		rr := postJSON(t, server, "/claims/verify", body)
		if rr.Code != http.StatusOK {
			t.Fatalf("verify failed: %d %s", rr.Code, rr.Body.String())
		}

		var resp VerifyResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)

		found := false
		for _, f := range resp.Verification.FailedChecks {
			if f.RuleID == "HIGH_VALUE_CLAIM" {
				found = true
			}
		}
		if !found {
			t.Errorf("expected custom rule in failed checks, got %+v", resp.Verification.FailedChecks)
		}
	})

	t.Run("DeleteRule", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/rules/HIGH_VALUE_CLAIM", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		rr2 := getJSON(t, server, "/rules")
		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr2.Body.Bytes(), &resp)
		if resp.Count != 0 {
			t.Errorf("expected 0 rules after delete, got %d", resp.Count)
		}
	})

	t.Run("ReloadRules", func(t *testing.T) {
		rr := postJSON(t, server, "/rules/reload", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TenantMiddlewareExtractsID", func(t *testing.T) {
		var capturedTenantID string

		handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedTenantID = GetTenantID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", "my-tenant-123")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedTenantID != "my-tenant-123" {
			t.Errorf("expected tenant ID 'my-tenant-123', got '%s'", capturedTenantID)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}
