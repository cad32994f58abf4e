package checker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidURL rejects malformed or unsupported-scheme URLs before any
// network I/O.
var ErrInvalidURL = errors.New("invalid url")

// Probe is one check request against a monitor's URL.
type Probe struct {
	URL                string
	Timeout            time.Duration
	ExpectedStatusCode int // 0 means any 2xx-3xx is up
	Retries            int // extra attempts within this one check
}

// Outcome is the result of a probe. Probe failures are values, never
// errors: transport problems, timeouts and unexpected status codes all
// come back as Up=false with an explanation.
type Outcome struct {
	Up           bool
	ResponseTime time.Duration
	StatusCode   int
	Message      string
	Error        string
}

// Checker executes HTTP reachability probes with a shared client.
type Checker struct {
	client *http.Client
}

type Options struct {
	UserAgent       string
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

func New(opts Options) *Checker {
	if opts.UserAgent == "" {
		opts.UserAgent = "uptime-sentry/1.0"
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 100
	}
	if opts.IdleConnTimeout <= 0 {
		opts.IdleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        opts.MaxIdleConns,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     opts.IdleConnTimeout,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	return &Checker{
		client: &http.Client{
			Transport: userAgentTransport{rt: transport, userAgent: opts.UserAgent},
		},
	}
}

// ValidateURL checks that raw parses as an absolute http/https URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	if u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

// Check runs one probe. The URL is validated before any network call;
// on timeout the reported response time equals the configured timeout.
func (c *Checker) Check(ctx context.Context, p Probe) Outcome {
	if err := ValidateURL(p.URL); err != nil {
		return Outcome{Up: false, Error: "invalid url", Message: "URL validation failed"}
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	attempts := p.Retries + 1
	var out Outcome
	for attempt := 0; attempt < attempts; attempt++ {
		out = c.attempt(ctx, p, timeout)
		if out.Up {
			return out
		}
		if ctx.Err() != nil {
			return out
		}
	}
	return out
}

func (c *Checker) attempt(ctx context.Context, p Probe, timeout time.Duration) Outcome {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.URL, nil)
	if err != nil {
		return Outcome{Up: false, Error: fmt.Sprintf("build request: %v", err), Message: "Check failed"}
	}

	resp, err := c.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		reason := classifyError(err)
		if reason == "timeout" {
			// Report the budget, not the measured overshoot.
			elapsed = timeout
		}
		return Outcome{
			Up:           false,
			ResponseTime: elapsed,
			Error:        reason,
			Message:      "Check failed",
		}
	}
	defer resp.Body.Close()

	out := Outcome{
		ResponseTime: elapsed,
		StatusCode:   resp.StatusCode,
	}

	if p.ExpectedStatusCode != 0 {
		if resp.StatusCode != p.ExpectedStatusCode {
			out.Up = false
			out.Error = fmt.Sprintf("unexpected status: got %d want %d", resp.StatusCode, p.ExpectedStatusCode)
			out.Message = "Check failed"
			return out
		}
	} else if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		out.Up = false
		out.Error = fmt.Sprintf("bad status: %d", resp.StatusCode)
		out.Message = "Check failed"
		return out
	}

	out.Up = true
	out.Message = fmt.Sprintf("OK (%d)", resp.StatusCode)
	return out
}

// classifyError maps transport failures to stable reason strings.
func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "context deadline exceeded"):
		return "timeout"
	case strings.Contains(msg, "connection refused"):
		return "connection refused"
	case strings.Contains(msg, "no such host"):
		return "dns lookup failed"
	}
	return msg
}

// userAgentTransport injects a User-Agent into every request.
type userAgentTransport struct {
	rt        http.RoundTripper
	userAgent string
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.rt.RoundTrip(req)
}
