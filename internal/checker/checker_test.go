package checker_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"uptime-sentry/internal/checker"
)

func TestCheck_up(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := checker.New(checker.Options{})
	out := c.Check(context.Background(), checker.Probe{URL: srv.URL, Timeout: 5 * time.Second})

	if !out.Up {
		t.Fatalf("expected up, got down: %s", out.Error)
	}
	if out.StatusCode != http.StatusOK {
		t.Errorf("unexpected status code: %d", out.StatusCode)
	}
	if out.ResponseTime < 0 {
		t.Errorf("negative response time: %d", out.ResponseTime)
	}
}

func TestCheck_expectedStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	c := checker.New(checker.Options{})

	out := c.Check(context.Background(), checker.Probe{URL: srv.URL, Timeout: 5 * time.Second, ExpectedStatusCode: http.StatusTeapot})
	if !out.Up {
		t.Errorf("expected up when status matches, got down: %s", out.Error)
	}

	out = c.Check(context.Background(), checker.Probe{URL: srv.URL, Timeout: 5 * time.Second, ExpectedStatusCode: http.StatusOK})
	if out.Up {
		t.Error("expected down when status differs")
	}
	if !strings.Contains(out.Error, "unexpected status") {
		t.Errorf("unexpected error text: %q", out.Error)
	}
}

func TestCheck_serverError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := checker.New(checker.Options{})
	out := c.Check(context.Background(), checker.Probe{URL: srv.URL, Timeout: 5 * time.Second})

	if out.Up {
		t.Error("expected down on 500 without expected status")
	}
}

func TestCheck_invalidURL(t *testing.T) {
	c := checker.New(checker.Options{})

	for _, raw := range []string{"", "not a url", "ftp://example.com", "http://"} {
		out := c.Check(context.Background(), checker.Probe{URL: raw, Timeout: time.Second})
		if out.Up {
			t.Errorf("expected down for %q", raw)
		}
		if out.Error != "invalid url" {
			t.Errorf("expected invalid url error for %q, got %q", raw, out.Error)
		}
	}
}

func TestCheck_timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	timeout := 50 * time.Millisecond
	c := checker.New(checker.Options{})
	out := c.Check(context.Background(), checker.Probe{URL: srv.URL, Timeout: timeout})

	if out.Up {
		t.Fatal("expected down on timeout")
	}
	if out.Error != "timeout" {
		t.Errorf("expected timeout error, got %q", out.Error)
	}
	if out.ResponseTime != timeout {
		t.Errorf("expected response time to equal the timeout budget, got %s", out.ResponseTime)
	}
}

func TestCheck_connectionRefused(t *testing.T) {
	// Grab a port nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := checker.New(checker.Options{})
	out := c.Check(context.Background(), checker.Probe{URL: url, Timeout: 2 * time.Second})

	if out.Up {
		t.Error("expected down for refused connection")
	}
	if out.Error == "" {
		t.Error("expected an error reason")
	}
}

func TestCheck_retriesUntilSuccess(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := checker.New(checker.Options{})
	out := c.Check(context.Background(), checker.Probe{URL: srv.URL, Timeout: 5 * time.Second, Retries: 2})

	if !out.Up {
		t.Fatalf("expected up after retries, got down: %s", out.Error)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"https://example.com", true},
		{"http://example.com/path?q=1", true},
		{"ftp://example.com", false},
		{"example.com", false},
		{"", false},
		{"http://", false},
	}

	for _, tt := range tests {
		err := checker.ValidateURL(tt.raw)
		if tt.want && err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", tt.raw, err)
		}
		if !tt.want && err == nil {
			t.Errorf("ValidateURL(%q) = nil, want error", tt.raw)
		}
	}
}
