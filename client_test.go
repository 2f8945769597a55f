package distclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDoRetriesOnceAfterBearerChallenge exercises the 401 -> bearer token
// handshake -> retried-and-succeeding request path, mirroring
// moby_distribution's _request/_validate_response RetryAgain loop.
func TestDoRetriesOnceAfterBearerChallenge(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "registry.example.com", r.URL.Query().Get("service"))
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "t0k3n"})
	}))
	defer tokenServer.Close()

	attempts := 0
	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if r.Header.Get("Authorization") != "Bearer t0k3n" {
			w.Header().Set("Www-Authenticate", fmt.Sprintf(
				`Bearer realm="%s",service="registry.example.com",scope="repository:lib/app:pull"`, tokenServer.URL))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer registry.Close()

	c := NewClient(registry.URL, "", "")
	resp, err := c.Get(context.Background(), registry.URL+"/v2/lib/app/manifests/latest", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, attempts)
}

// TestDoFailsPermissionDeniedOnSecond401 asserts that a second 401 after the
// single allowed retry becomes PermissionDenied, never a second handshake.
func TestDoFailsPermissionDeniedOnSecond401(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "t0k3n"})
	}))
	defer tokenServer.Close()

	attempts := 0
	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Www-Authenticate", fmt.Sprintf(
			`Bearer realm="%s",service="registry.example.com",scope="repository:lib/app:pull"`, tokenServer.URL))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer registry.Close()

	c := NewClient(registry.URL, "", "")
	_, err := c.Get(context.Background(), registry.URL+"/v2/lib/app/manifests/latest", nil)
	require.Error(t, err)
	var denied *PermissionDenied
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, 2, attempts)
}

func TestDoReturnsResourceNotFound(t *testing.T) {
	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer registry.Close()

	c := NewClient(registry.URL, "", "")
	_, err := c.Get(context.Background(), registry.URL+"/v2/lib/app/manifests/latest", nil)
	require.Error(t, err)
	var notFound *ResourceNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestPingTrueOnSuccess(t *testing.T) {
	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer registry.Close()

	c := NewClient(registry.URL, "", "")
	assert.True(t, c.Ping())
}

func TestRefCommonNameAndReference(t *testing.T) {
	r := Ref{Repository: "library/nginx", Tag: "latest"}
	assert.Equal(t, "library/nginx:latest", r.CommonName())
	assert.Equal(t, "latest", r.Reference())

	r.Digest = "sha256:abc"
	assert.Equal(t, "library/nginx:latest@sha256:abc", r.CommonName())
	assert.Equal(t, "sha256:abc", r.Reference())
}
