package endpoint

import "fmt"

// URLBuilder composes the five canonical Docker Registry HTTP API v2 paths
// from a base URL. It is pure: no state, no I/O, matching spec.md §4.2.
type URLBuilder struct {
	BaseURL string
}

// NewURLBuilder returns a URLBuilder rooted at baseURL (scheme://host[:port]).
func NewURLBuilder(baseURL string) URLBuilder {
	return URLBuilder{BaseURL: baseURL}
}

// Version returns the "/v2/" capability-check URL.
func (b URLBuilder) Version() string {
	return fmt.Sprintf("%s/v2/", b.BaseURL)
}

// Blob returns the blob URL for repo and digest.
func (b URLBuilder) Blob(repo, digest string) string {
	return fmt.Sprintf("%s/v2/%s/blobs/%s", b.BaseURL, repo, digest)
}

// BlobUploads returns the URL that initiates a blob upload session.
func (b URLBuilder) BlobUploads(repo string) string {
	return fmt.Sprintf("%s/v2/%s/blobs/uploads/", b.BaseURL, repo)
}

// Manifest returns the manifest URL for repo and a tag or digest reference.
func (b URLBuilder) Manifest(repo, reference string) string {
	return fmt.Sprintf("%s/v2/%s/manifests/%s", b.BaseURL, repo, reference)
}

// Tags returns the tag-listing URL for repo.
func (b URLBuilder) Tags(repo string) string {
	return fmt.Sprintf("%s/v2/%s/tags/list", b.BaseURL, repo)
}
