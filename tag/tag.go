// Package tag implements the Tag Resource: list, get (delegates to
// manifest metadata), and untag (delegates to manifest delete), per
// moby_distribution/registry/resources/tags.py.
package tag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shabbywu/distribution-go/endpoint"
	"github.com/shabbywu/distribution-go/manifest"
)

// httpClient matches manifest.Ref's own client interface exactly (rather
// than the narrower Get/Head/Delete this package uses directly), since
// Get and Untag construct a manifest.Ref from the same Client value and
// manifest.Ref requires Put as well.
type httpClient interface {
	Get(ctx context.Context, url string, headers http.Header) (*http.Response, error)
	Head(ctx context.Context, url string, headers http.Header) (*http.Response, error)
	Put(ctx context.Context, url string, headers http.Header, body io.Reader) (*http.Response, error)
	Delete(ctx context.Context, url string, headers http.Header) (*http.Response, error)
}

// Resource addresses the tags of one repository against a Client.
type Resource struct {
	Repo       string
	Client     httpClient
	APIBaseURL string
}

func (r Resource) manifestRef(reference string) manifest.Ref {
	return manifest.Ref{Repo: r.Repo, Reference: reference, Client: r.Client, APIBaseURL: r.APIBaseURL}
}

// List returns the repository's tags, normalizing a null "tags" field to
// an empty slice, per Tags.list.
func (r Resource) List() ([]string, error) {
	url := endpoint.NewURLBuilder(r.APIBaseURL).Tags(r.Repo)
	resp, err := r.Client.Get(context.Background(), url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("tag: decoding tags list: %w", err)
	}
	if payload.Tags == nil {
		return []string{}, nil
	}
	return payload.Tags, nil
}

// Get retrieves the manifest descriptor for tag via a HEAD request,
// per Tags.get delegating to ManifestRef.get_metadata.
func (r Resource) Get(tag string) (manifest.Descriptor, error) {
	return r.manifestRef(tag).GetMetadata(manifest.MediaTypeSchema2)
}

// Untag removes the tag's manifest association, per Tags.untag delegating
// to ManifestRef.delete.
func (r Resource) Untag(tag string) error {
	return r.manifestRef(tag).Delete()
}
