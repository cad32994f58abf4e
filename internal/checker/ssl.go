package checker

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"time"

	"uptime-sentry/internal/db"
)

// InspectSSL connects to an HTTPS endpoint and reports on its leaf
// certificate. Non-HTTPS URLs get SSLMonitoringEnabled=false and no
// network call. Validation failures are reported in the result, never
// returned as errors.
func InspectSSL(ctx context.Context, rawURL string, timeout time.Duration) db.SSLInfo {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "https" {
		return db.SSLInfo{SSLMonitoringEnabled: false}
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "443"
	}

	info := db.SSLInfo{SSLMonitoringEnabled: true}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		Config: &tls.Config{
			ServerName: host,
			// Capture the certificate even when the chain does not
			// verify; validity is checked explicitly below.
			InsecureSkipVerify: true,
		},
	}
	conn, err := dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		info.Valid = false
		info.Error = err.Error()
		return info
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		info.Valid = false
		info.Error = "no peer certificates"
		return info
	}

	cert := state.PeerCertificates[0]
	now := time.Now()

	info.Issuer = cert.Issuer.CommonName
	info.Subject = cert.Subject.CommonName
	info.ExpiresAt = cert.NotAfter
	info.DaysUntilExpiry = int(cert.NotAfter.Sub(now).Hours() / 24)
	info.SelfSigned = cert.Issuer.String() == cert.Subject.String()

	info.Valid = true
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		info.Valid = false
		info.Error = "certificate outside validity period"
	} else if err := cert.VerifyHostname(host); err != nil {
		info.Valid = false
		info.Error = err.Error()
	} else if info.SelfSigned {
		info.Valid = false
		info.Error = "self-signed certificate"
	}

	return info
}
