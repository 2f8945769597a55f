package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	distclient "github.com/shabbywu/distribution-go"
)

type fakeClient struct{ server *httptest.Server }

func (f fakeClient) do(method, url string, headers http.Header, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return f.server.Client().Do(req)
}

func (f fakeClient) Get(_ context.Context, url string, h http.Header) (*http.Response, error) {
	return f.do(http.MethodGet, url, h, nil)
}
func (f fakeClient) Head(_ context.Context, url string, h http.Header) (*http.Response, error) {
	return f.do(http.MethodHead, url, h, nil)
}
func (f fakeClient) Put(_ context.Context, url string, h http.Header, body io.Reader) (*http.Response, error) {
	return f.do(http.MethodPut, url, h, body)
}
func (f fakeClient) Post(_ context.Context, url string, h http.Header, body io.Reader) (*http.Response, error) {
	return f.do(http.MethodPost, url, h, body)
}
func (f fakeClient) Patch(_ context.Context, url string, h http.Header, body io.Reader) (*http.Response, error) {
	return f.do(http.MethodPatch, url, h, body)
}
func (f fakeClient) Delete(_ context.Context, url string, h http.Header) (*http.Response, error) {
	return f.do(http.MethodDelete, url, h, nil)
}

// registryFixture fakes just enough of the blob API to drive
// UploadStreaming/UploadMonolithic/Download/Stat round trips in memory.
type registryFixture struct {
	mux   *http.ServeMux
	blobs map[string][]byte
}

func newRegistryFixture() *registryFixture {
	f := &registryFixture{mux: http.NewServeMux(), blobs: map[string][]byte{}}
	f.mux.HandleFunc("/v2/lib/app/blobs/uploads/", f.handleUploads)
	f.mux.HandleFunc("/v2/lib/app/blobs/", f.handleBlob)
	return f
}

func (f *registryFixture) handleUploads(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/v2/lib/app/blobs/uploads/sess-1" {
		switch r.Method {
		case http.MethodPatch:
			body, _ := io.ReadAll(r.Body)
			key := "pending"
			f.blobs[key] = append(f.blobs[key], body...)
			end := len(f.blobs[key]) - 1
			w.Header().Set("Range", fmt.Sprintf("0-%d", end))
			w.Header().Set("Docker-Upload-UUID", "sess-1")
			w.Header().Set("Location", "/v2/lib/app/blobs/uploads/sess-1")
			w.WriteHeader(http.StatusAccepted)
		case http.MethodPut:
			dig := r.URL.Query().Get("digest")
			f.blobs[dig] = f.blobs["pending"]
			delete(f.blobs, "pending")
			w.WriteHeader(http.StatusCreated)
		}
		return
	}

	switch r.Method {
	case http.MethodPost:
		if mount := r.URL.Query().Get("mount"); mount != "" {
			if _, ok := f.blobs[mount]; ok {
				w.WriteHeader(http.StatusCreated)
				return
			}
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.Header().Set("Location", "/v2/lib/app/blobs/uploads/sess-1")
		w.Header().Set("Docker-Upload-UUID", "sess-1")
		w.WriteHeader(http.StatusAccepted)
	}
}

func (f *registryFixture) handleBlob(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	digest := path[len("/v2/lib/app/blobs/"):]
	switch r.Method {
	case http.MethodHead:
		data, ok := f.blobs[digest]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
		w.Header().Set("Docker-Content-Digest", digest)
	case http.MethodGet:
		data, ok := f.blobs[digest]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(data)
	case http.MethodDelete:
		if _, ok := f.blobs[digest]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.blobs, digest)
		w.WriteHeader(http.StatusAccepted)
	}
}

func TestUploadStreamingThenDownloadRoundTrips(t *testing.T) {
	fixture := newRegistryFixture()
	server := httptest.NewServer(fixture.mux)
	defer server.Close()

	r := Resource{Repo: "lib/app", Client: fakeClient{server}, APIBaseURL: server.URL}

	payload := []byte("hello distribution")
	desc, err := r.UploadStreaming(bytes.NewReader(payload))
	require.NoError(t, err)

	want := fmt.Sprintf("sha256:%x", sha256.Sum256(payload))
	assert.Equal(t, want, desc.Digest)

	var out bytes.Buffer
	require.NoError(t, r.Download(desc.Digest, &out))
	assert.Equal(t, payload, out.Bytes())
}

func TestMountFromExistingBlobReturns201(t *testing.T) {
	fixture := newRegistryFixture()
	fixture.blobs["sha256:existing"] = []byte("already here")
	server := httptest.NewServer(fixture.mux)
	defer server.Close()

	r := Resource{Repo: "lib/app", Client: fakeClient{server}, APIBaseURL: server.URL}
	desc, err := r.MountFrom("lib/other", "sha256:existing")
	require.NoError(t, err)
	assert.Equal(t, "sha256:existing", desc.Digest)
}

func TestMountFromMissingTargetBlobReturnsRequestError(t *testing.T) {
	fixture := newRegistryFixture()
	server := httptest.NewServer(fixture.mux)
	defer server.Close()

	r := Resource{Repo: "lib/app", Client: fakeClient{server}, APIBaseURL: server.URL}
	_, err := r.MountFrom("lib/other", "sha256:absent")
	require.Error(t, err)

	var reqErr *distclient.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusAccepted, reqErr.Status)
}

func TestDeleteThenStatNotFound(t *testing.T) {
	fixture := newRegistryFixture()
	fixture.blobs["sha256:gone"] = []byte("bye")
	server := httptest.NewServer(fixture.mux)
	defer server.Close()

	r := Resource{Repo: "lib/app", Client: fakeClient{server}, APIBaseURL: server.URL}
	require.NoError(t, r.Delete("sha256:gone"))
	_, err := r.Stat("sha256:gone")
	require.Error(t, err)
}
