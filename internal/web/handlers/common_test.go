package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRespondJSON(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		data     any
		wantBody string
	}{
		{"object", http.StatusOK, map[string]bool{"registered": true}, "{\"registered\":true}\n"},
		{"empty map", http.StatusCreated, map[string]string{}, "{}\n"},
		{"nil data", http.StatusNoContent, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondJSON(rec, tt.status, tt.data)

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected Content-Type 'application/json', got '%s'", ct)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, http.StatusBadRequest, "image missing")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
	var result map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result["status"] != "error" || result["error"] != "image missing" {
		t.Errorf("unexpected body %v", result)
	}
}

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var result map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result["status"] != "ok" {
		t.Errorf("expected status 'ok', got '%s'", result["status"])
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("555\r\nFAKE ENTRY"); got != "555FAKE ENTRY" {
		t.Errorf("sanitizeForLog() = %q", got)
	}
}

func TestValidationMessage(t *testing.T) {
	tests := []struct {
		name string
		req  any
		want string
	}{
		{"valid", RegisterRequest{Tenant: "acmeco", OrganizationID: "7", PersonID: "555"}, ""},
		{"missing person", RegisterRequest{Tenant: "acmeco", OrganizationID: "7"}, "person_id is required"},
		{"null tenant", RegisterRequest{Tenant: "Null", OrganizationID: "7", PersonID: "555"}, "invalid or missing tenant"},
		{"dot segment", RegisterRequest{Tenant: "acmeco", OrganizationID: "..", PersonID: "555"}, "organization_id must not contain path separators"},
		{"limit too high", IdentifyRequest{Tenant: "acmeco", OrganizationID: "7", Limit: 51}, "limit must be lte 50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.req)
			if tt.want == "" {
				if err != nil {
					t.Errorf("expected valid, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if got := validationMessage(err); got != tt.want {
				t.Errorf("validationMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
