package tag

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct{ server *httptest.Server }

func (f fakeClient) do(method, url string) (*http.Response, error) {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, err
	}
	return f.server.Client().Do(req)
}

func (f fakeClient) Get(_ context.Context, url string, _ http.Header) (*http.Response, error) {
	return f.do(http.MethodGet, url)
}
func (f fakeClient) Head(_ context.Context, url string, _ http.Header) (*http.Response, error) {
	return f.do(http.MethodHead, url)
}
func (f fakeClient) Put(_ context.Context, url string, _ http.Header, _ io.Reader) (*http.Response, error) {
	return f.do(http.MethodPut, url)
}
func (f fakeClient) Delete(_ context.Context, url string, _ http.Header) (*http.Response, error) {
	return f.do(http.MethodDelete, url)
}

func TestListNormalizesNullTagsToEmptySlice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"lib/app","tags":null}`))
	}))
	defer server.Close()

	r := Resource{Repo: "lib/app", Client: fakeClient{server}, APIBaseURL: server.URL}
	tags, err := r.List()
	require.NoError(t, err)
	assert.Equal(t, []string{}, tags)
}

func TestListReturnsTags(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"lib/app","tags":["latest","v1"]}`))
	}))
	defer server.Close()

	r := Resource{Repo: "lib/app", Client: fakeClient{server}, APIBaseURL: server.URL}
	tags, err := r.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"latest", "v1"}, tags)
}

func TestUntagThenListAbsent(t *testing.T) {
	tags := []string{"latest", "v1"}
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/lib/app/tags/list", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tags":["` + tags[0] + `"]}`))
	})
	mux.HandleFunc("/v2/lib/app/manifests/v1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusAccepted)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := Resource{Repo: "lib/app", Client: fakeClient{server}, APIBaseURL: server.URL}
	require.NoError(t, r.Untag("v1"))

	remaining, err := r.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"latest"}, remaining)
}
