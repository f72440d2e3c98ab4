package web

import (
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/audit"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/register"
	"github.com/kozaktomas/face-attendance/internal/service"
	"github.com/kozaktomas/face-attendance/internal/verify"
)

// stubService answers every call with fixed values.
type stubService struct {
	registered bool
}

func (s stubService) Embed(context.Context, image.Image) ([]float32, error) {
	return []float32{1}, nil
}

func (s stubService) Verify(context.Context, string, string, string, []float32) (verify.Result, error) {
	return verify.Result{}, nil
}

func (s stubService) IsRegistered(context.Context, string, string, string) bool {
	return s.registered
}

func (s stubService) RegisterFromVideo(context.Context, service.RegistrationRequest, []byte, func(register.Progress)) (register.Result, error) {
	return register.Result{}, nil
}

func (s stubService) RecordAttempt(context.Context, audit.Record) error {
	return nil
}

func (s stubService) Identify(context.Context, string, string, []float32, int) ([]verify.Match, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Web:      config.WebConfig{Port: 0, Host: "127.0.0.1", AllowedOrigins: []string{"https://app.example.com"}},
		Identify: config.IdentifyConfig{DefaultLimit: 5},
	}
}

func TestServer_Routes(t *testing.T) {
	s := NewServer(testConfig(), stubService{registered: true}, nil)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/health", http.StatusOK},
		{http.MethodGet, "/api/v1/check?tenant=a&organization_id=1&person_id=2", http.StatusOK},
		{http.MethodPost, "/api/v1/recognise", http.StatusBadRequest},
		{http.MethodPost, "/api/v1/register", http.StatusBadRequest},
		{http.MethodPost, "/api/v1/identify", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/recognise", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Router().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestServer_CORSFromConfig(t *testing.T) {
	s := NewServer(testConfig(), stubService{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/recognise", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
}
