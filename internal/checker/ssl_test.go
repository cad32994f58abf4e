package checker_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"uptime-sentry/internal/checker"
)

func TestInspectSSL_nonHTTPS(t *testing.T) {
	for _, raw := range []string{"http://example.com", "not a url", ""} {
		info := checker.InspectSSL(context.Background(), raw, time.Second)
		if info.SSLMonitoringEnabled {
			t.Errorf("expected ssl monitoring disabled for %q", raw)
		}
	}
}

func TestInspectSSL_selfSigned(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	info := checker.InspectSSL(context.Background(), srv.URL, 2*time.Second)
	if !info.SSLMonitoringEnabled {
		t.Fatal("expected ssl monitoring enabled")
	}
	if !info.SelfSigned {
		t.Error("expected self-signed certificate")
	}
	if info.Valid {
		t.Error("self-signed certificate must not validate")
	}
	if info.DaysUntilExpiry <= 0 {
		t.Errorf("expected future expiry, got %d days", info.DaysUntilExpiry)
	}
}

func TestInspectSSL_unreachable(t *testing.T) {
	info := checker.InspectSSL(context.Background(), "https://127.0.0.1:1", 500*time.Millisecond)
	if !info.SSLMonitoringEnabled {
		t.Fatal("expected ssl monitoring enabled for https URL")
	}
	if info.Valid {
		t.Error("expected invalid for unreachable host")
	}
	if info.Error == "" {
		t.Error("expected an error description")
	}
}
