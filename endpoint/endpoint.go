// Package endpoint models a registry endpoint and probes it for HTTPS
// support and certificate validity before a Client decides which scheme
// to speak.
package endpoint

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Endpoint is an immutable reference to a registry host, constructed once
// and reused for the lifetime of a Client.
type Endpoint struct {
	URL      string
	Official bool
	Version  int
}

// OfficialEndpoint is the well-known default registry, mirroring
// moby_distribution.spec.endpoint.OFFICIAL_ENDPOINT.
var OfficialEndpoint = Endpoint{URL: "registry.hub.docker.com", Official: true, Version: 2}

// New returns an Endpoint for url with Version defaulted to 2.
func New(url string) Endpoint {
	return Endpoint{URL: url, Version: 2}
}

// HostPort splits the endpoint's URL into a dialable host:port pair,
// defaulting to port 443, and returns the path prefix (if any).
func (e Endpoint) HostPort() (hostport, path string, err error) {
	raw := e.URL
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("endpoint: invalid url %q: %w", e.URL, err)
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "443"
	}
	return net.JoinHostPort(host, port), u.Path, nil
}

// Probe dials the endpoint's host:port with a TLS handshake and reports
// (httpsSupported, certValid) per spec.md §4.3's triage:
//
//   - a certificate verification failure still means HTTPS is spoken, just
//     not with a certificate this client trusts: (true, false).
//   - a refused connection or protocol mismatch (a plaintext port answering
//     a TLS ClientHello, or nothing listening) means HTTPS is not spoken
//     here: (false, false).
//   - a clean handshake with a valid chain: (true, true).
func Probe(hostport string) (httpsSupported, certValid bool) {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := tls.DialWithDialer(dialer, "tcp", hostport, &tls.Config{ServerName: host})
	if err != nil {
		var unknownAuth x509.UnknownAuthorityError
		var invalidCert x509.CertificateInvalidError
		var hostnameErr x509.HostnameError
		if errors.As(err, &unknownAuth) || errors.As(err, &invalidCert) || errors.As(err, &hostnameErr) || containsVerifyFailure(err) {
			return true, false
		}
		return false, false
	}
	defer conn.Close()
	return true, true
}

func containsVerifyFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsAny(msg,
		"certificate signed by unknown authority",
		"certificate is not trusted",
		"certificate has expired",
		"x509: certificate",
		"tls: failed to verify certificate",
	)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
