package main

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	distribution "github.com/shabbywu/distribution-go"
	"github.com/shabbywu/distribution-go/manifest"
)

func TestConfigLoadReaderDefaultsParallel(t *testing.T) {
	cfg, err := ConfigLoadReader(strings.NewReader(`
sync:
  - source: lib/app
    target: mirror/app
    type: image
`))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Defaults.Parallel)
	require.Len(t, cfg.Sync, 1)
	assert.Equal(t, "lib/app", cfg.Sync[0].Source)
}

func TestConfigLoadReaderHonorsExplicitParallel(t *testing.T) {
	cfg, err := ConfigLoadReader(strings.NewReader(`
defaults:
  parallel: 4
sync: []
`))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Defaults.Parallel)
}

// registry is a minimal in-memory /v2/ server good enough for exercising
// copyImage: one repo, one manifest, and whatever blobs were seeded.
type registry struct {
	blobs     map[string][]byte
	manifests map[string][]byte
}

func newRegistryServer(t *testing.T, reg *registry) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/v2/")
		switch {
		case strings.Contains(path, "/manifests/"):
			parts := strings.SplitN(path, "/manifests/", 2)
			repo, ref := parts[0], parts[1]
			key := repo + "@" + ref
			switch r.Method {
			case http.MethodGet:
				data, ok := reg.manifests[key]
				if !ok {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.Header().Set("Content-Type", manifest.MediaTypeSchema2)
				w.Write(data)
			case http.MethodHead:
				data, ok := reg.manifests[key]
				if !ok {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.Header().Set("Content-Type", manifest.MediaTypeSchema2)
				w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
				w.Header().Set("Docker-Content-Digest", fmt.Sprintf("sha256:%x", sha256.Sum256(data)))
			case http.MethodPut:
				body, _ := io.ReadAll(r.Body)
				reg.manifests[key] = body
				w.WriteHeader(http.StatusCreated)
			}
		case strings.Contains(path, "/blobs/uploads/"):
			if r.Method == http.MethodPut {
				dig := r.URL.Query().Get("digest")
				body, _ := io.ReadAll(r.Body)
				reg.blobs[dig] = body
				w.WriteHeader(http.StatusCreated)
				return
			}
			w.Header().Set("Location", "/v2/"+strings.SplitN(path, "/blobs/", 2)[0]+"/blobs/uploads/sess")
			w.Header().Set("Docker-Upload-UUID", "sess")
			w.WriteHeader(http.StatusAccepted)
		case strings.Contains(path, "/blobs/"):
			digest := strings.SplitN(path, "/blobs/", 2)[1]
			data, ok := reg.blobs[digest]
			switch r.Method {
			case http.MethodHead:
				if !ok {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
				w.Header().Set("Docker-Content-Digest", digest)
			case http.MethodGet:
				if !ok {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.Write(data)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	return httptest.NewServer(mux)
}

func TestCopyImageUploadsMissingBlobsAndManifest(t *testing.T) {
	configBytes := []byte(`{"architecture":"amd64"}`)
	configDigest := fmt.Sprintf("sha256:%x", sha256.Sum256(configBytes))
	layerBytes := []byte("layer-bytes")
	layerDigest := fmt.Sprintf("sha256:%x", sha256.Sum256(layerBytes))

	src := &registry{blobs: map[string][]byte{configDigest: configBytes, layerDigest: layerBytes}, manifests: map[string][]byte{}}
	tgt := &registry{blobs: map[string][]byte{}, manifests: map[string][]byte{}}

	m := manifest.NewSchema2(
		manifest.Config{MediaType: "application/vnd.docker.container.image.v1+json", Size: int64(len(configBytes)), Digest: configDigest},
		[]manifest.Layer{{MediaType: "application/vnd.docker.image.rootfs.diff.tar.gzip", Size: int64(len(layerBytes)), Digest: layerDigest}},
	)
	mBytes, err := json.Marshal(m)
	require.NoError(t, err)
	src.manifests["lib/app@latest"] = mBytes

	srcServer := newRegistryServer(t, src)
	defer srcServer.Close()
	tgtServer := newRegistryServer(t, tgt)
	defer tgtServer.Close()

	srcClient := distribution.NewClient(srcServer.URL, "", "")
	tgtClient := distribution.NewClient(tgtServer.URL, "", "")

	require.NoError(t, copyImage(srcClient, tgtClient, "lib/app", "latest", "mirror/app", "latest"))

	assert.Equal(t, configBytes, tgt.blobs[configDigest])
	assert.Equal(t, layerBytes, tgt.blobs[layerDigest])
	assert.NotEmpty(t, tgt.manifests["mirror/app@latest"])
}
