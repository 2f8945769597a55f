package image

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveRefusesWhenDirty(t *testing.T) {
	r := &Ref{Repo: "lib/app", Reference: "latest", InitialConfig: "{}", Dirty: true}
	err := r.Save(io.Discard)
	require.Error(t, err)
}

func TestSaveProducesTarballWithMatchingConfigDigest(t *testing.T) {
	layerData := emptyGzipTar(t)
	layerDigest := fmt.Sprintf("sha256:%x", sha256.Sum256(layerData))

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/lib/app/blobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write(layerData)
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := &Ref{
		Repo:          "lib/app",
		Reference:     "latest",
		InitialConfig: `{"created":"2024-01-01T00:00:00Z","architecture":"amd64","os":"linux","config":{},"rootfs":{"type":"layers","diff_ids":["sha256:5f70bf18a086007016e948b04aed3b82103a36bea41755b6cddfaf10ace3c6ef"]}}`,
		Layers:        []LayerRef{{Repo: "lib/app", Digest: layerDigest, Exists: true}},
		Client:        fakeClient{server},
		APIBaseURL:    server.URL,
	}

	var out bytes.Buffer
	require.NoError(t, r.Save(&out))

	tr := tar.NewReader(&out)
	files := map[string][]byte{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[hdr.Name] = data
	}

	manifestBytes, ok := files["manifest.json"]
	require.True(t, ok, "manifest.json must be present")

	var manifests []saveManifest
	require.NoError(t, json.Unmarshal(manifestBytes, &manifests))
	require.Len(t, manifests, 1)
	m := manifests[0]
	assert.Equal(t, []string{"lib/app:latest"}, m.RepoTags)

	configBytes, ok := files[m.Config]
	require.True(t, ok, "referenced config file must exist in the tarball")
	wantDigest := fmt.Sprintf("%x", sha256.Sum256(configBytes))
	assert.Equal(t, wantDigest+".json", m.Config)

	require.Len(t, m.Layers, 1)
	_, ok = files[m.Layers[0]]
	require.True(t, ok, "referenced layer tar must exist in the tarball")
}
