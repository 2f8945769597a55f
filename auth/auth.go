// Package auth implements the bearer/basic authentication state machine
// driven by WWW-Authenticate challenges, per spec.md §4.4.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// TokenResponse is the Docker token spec response body, per
// moby_distribution/spec/auth.py.
type TokenResponse struct {
	Token        string    `json:"token"`
	AccessToken  string    `json:"access_token,omitempty"`
	IssuedAt     time.Time `json:"issued_at,omitempty"`
	ExpiresIn    int       `json:"expires_in,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}

// bearerValue returns the token to use as the Bearer credential, preferring
// "token" and falling back to "access_token" for OAuth2 compatibility, per
// moby_distribution/registry/client.py's DistributionClient.authorization.
func (t TokenResponse) bearerValue() (string, error) {
	if t.Token != "" {
		return t.Token, nil
	}
	if t.AccessToken != "" {
		return t.AccessToken, nil
	}
	return "", fmt.Errorf("auth: token response carries neither token nor access_token")
}

// Provider is what the Transport Core asks for an Authorization header
// value on every request. An empty string means "no credential": the
// request is sent unauthenticated.
type Provider interface {
	Authorization() string
}

// staticProvider always returns the same header value.
type staticProvider string

func (p staticProvider) Authorization() string { return string(p) }

// NoAuth is a Provider that never sets an Authorization header.
var NoAuth Provider = staticProvider("")

// TokenProvider produces a "Bearer <token>" header from a TokenResponse,
// mirroring moby_distribution.registry.auth.TokenAuthorizationProvider.
type TokenProvider struct {
	Response TokenResponse
}

func (p TokenProvider) Authorization() string {
	v, err := p.Response.bearerValue()
	if err != nil {
		return ""
	}
	return "Bearer " + v
}

// BasicProvider produces a "Basic <base64>" header from a username/password
// pair, mirroring moby_distribution's inline basic-auth header assembly.
type BasicProvider struct {
	Username, Password string
}

func (p BasicProvider) Authorization() string {
	raw := p.Username + ":" + p.Password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// Authenticator negotiates a Provider from a 401 response's
// WWW-Authenticate challenge.
type Authenticator interface {
	Authenticate(challenge Challenge, username, password string) (Provider, error)
}

// BearerAuthenticator implements the Docker Registry v2 bearer-token
// handshake: GET {realm}?service=&scope=&client_id=&offline_token=true,
// optionally carrying Basic auth on that request, per
// moby_distribution/registry/auth.py's DockerRegistryTokenAuthentication.
type BearerAuthenticator struct {
	HTTPClient    *http.Client
	OfflineToken  bool
	Log           *logrus.Logger
}

// NewBearerAuthenticator returns a BearerAuthenticator with sane defaults:
// a plain http.Client and offline_token=true (the original's default).
func NewBearerAuthenticator() *BearerAuthenticator {
	return &BearerAuthenticator{HTTPClient: http.DefaultClient, OfflineToken: true}
}

func (a *BearerAuthenticator) logger() *logrus.Logger {
	if a.Log != nil {
		return a.Log
	}
	return logrus.StandardLogger()
}

func (a *BearerAuthenticator) Authenticate(challenge Challenge, username, password string) (Provider, error) {
	realm, ok := challenge.Parameters["realm"]
	if !ok || realm == "" {
		return nil, &MissingChallengeField{Field: "realm"}
	}
	service := challenge.Parameters["service"]
	if service == "" {
		return nil, &MissingChallengeField{Field: "service"}
	}
	scope := challenge.Parameters["scope"]

	clientID := username
	if clientID == "" {
		clientID = "anonymous"
	}

	q := url.Values{}
	q.Set("service", service)
	if scope != "" {
		q.Set("scope", scope)
	}
	q.Set("client_id", clientID)
	if a.OfflineToken {
		q.Set("offline_token", "true")
	}

	reqURL := realm
	if strings.ContainsRune(realm, '?') {
		reqURL = realm + "&" + q.Encode()
	} else {
		reqURL = realm + "?" + q.Encode()
	}

	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if username != "" && password != "" {
		req.Header.Set("Authorization", BasicProvider{Username: username, Password: password}.Authorization())
	}

	client := a.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &AuthFailedError{Message: "token endpoint rejected credentials", Status: resp.StatusCode, Body: string(body)}
	}

	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("auth: decoding token response: %w", err)
	}
	a.logger().WithFields(logrus.Fields{"service": service, "scope": scope}).Debug("bearer token acquired")
	return TokenProvider{Response: tr}, nil
}

// BasicAuthenticator requires both username and password; otherwise it
// fails, per spec.md §4.4's "requires both username and password" rule.
type BasicAuthenticator struct{}

func (BasicAuthenticator) Authenticate(_ Challenge, username, password string) (Provider, error) {
	if username == "" || password == "" {
		return nil, &AuthFailedError{Message: "basic auth requires both username and password"}
	}
	return BasicProvider{Username: username, Password: password}, nil
}

// UniversalAuthenticator dispatches to Bearer or Basic based on the
// challenge scheme, per spec.md §4.4's "Universal authenticator branches
// on the challenge scheme".
type UniversalAuthenticator struct {
	Bearer *BearerAuthenticator
	Basic  BasicAuthenticator
}

// NewUniversalAuthenticator returns a UniversalAuthenticator with a default
// BearerAuthenticator.
func NewUniversalAuthenticator() *UniversalAuthenticator {
	return &UniversalAuthenticator{Bearer: NewBearerAuthenticator()}
}

func (u *UniversalAuthenticator) Authenticate(challenge Challenge, username, password string) (Provider, error) {
	switch {
	case challenge.IsBearer():
		return u.Bearer.Authenticate(challenge, username, password)
	case challenge.IsBasic():
		return u.Basic.Authenticate(challenge, username, password)
	default:
		return nil, &AuthFailedError{Message: fmt.Sprintf("unsupported challenge scheme %q", challenge.Scheme)}
	}
}

// AuthFailedError reports a rejected credential or a malformed
// authenticator precondition.
type AuthFailedError struct {
	Message string
	Status  int
	Body    string
}

func (e *AuthFailedError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("auth failed: %s (status %d): %s", e.Message, e.Status, e.Body)
	}
	return fmt.Sprintf("auth failed: %s", e.Message)
}

// MissingChallengeField reports a required WWW-Authenticate parameter
// (realm, service) absent from the challenge.
type MissingChallengeField struct {
	Field string
}

func (e *MissingChallengeField) Error() string {
	return fmt.Sprintf("auth: challenge missing required field %q", e.Field)
}
