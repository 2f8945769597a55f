package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	distclient "github.com/shabbywu/distribution-go"
	"github.com/shabbywu/distribution-go/endpoint"
)

// httpClient is the subset of *distclient.Client that Ref needs. It is
// declared locally so that *distclient.Client or any test double with
// these methods can be passed in.
type httpClient interface {
	Get(ctx context.Context, url string, headers http.Header) (*http.Response, error)
	Head(ctx context.Context, url string, headers http.Header) (*http.Response, error)
	Put(ctx context.Context, url string, headers http.Header, body io.Reader) (*http.Response, error)
	Delete(ctx context.Context, url string, headers http.Header) (*http.Response, error)
}

// Ref addresses one manifest: a repository plus a tag or digest reference,
// against a given Client, mirroring
// moby_distribution.registry.resources.manifests.ManifestRef.
type Ref struct {
	Repo      string
	Reference string
	Client    httpClient
	APIBaseURL string
}

// Signer produces a JWS signature over a Schema1 manifest's canonical
// payload, letting the jws package stay decoupled from this one.
type Signer interface {
	Sign(payload []byte) (JWS, error)
}

func (r Ref) url() string {
	return endpoint.NewURLBuilder(r.APIBaseURL).Manifest(r.Repo, r.Reference)
}

// Decoded holds a manifest decoded by Get: exactly one field is set,
// chosen by the acceptMediaType passed to Get.
type Decoded struct {
	Schema1 *Schema1
	Schema2 *Schema2
	OCI     *OCI
}

// Get fetches the manifest as acceptMediaType, parses it into the schema
// variant matching that media type, and asserts schemaVersion is
// consistent with the variant (1 for Schema1; 2 for Schema2 and OCI).
// An acceptMediaType this package doesn't understand yields
// UnsupportedMediaType. raw is returned alongside decoded so callers
// needing the exact wire form (digest computation, re-signing) don't
// have to re-marshal.
func (r Ref) Get(acceptMediaType string) (raw []byte, decoded Decoded, descriptor Descriptor, err error) {
	headers := http.Header{"Accept": []string{acceptMediaType}}
	resp, err := r.Client.Get(context.Background(), r.url(), headers)
	if err != nil {
		return nil, Decoded{}, Descriptor{}, err
	}
	defer resp.Body.Close()

	raw, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, Decoded{}, Descriptor{}, err
	}

	decoded, err = decodeManifest(raw, acceptMediaType)
	if err != nil {
		return nil, Decoded{}, Descriptor{}, err
	}

	descriptor = Descriptor{
		MediaType: resp.Header.Get("Content-Type"),
		Digest:    resp.Header.Get("Docker-Content-Digest"),
		Size:      int64(len(raw)),
	}
	return raw, decoded, descriptor, nil
}

// decodeManifest parses raw into the variant mediaType names, asserting
// that variant's schemaVersion invariant.
func decodeManifest(raw []byte, mediaType string) (Decoded, error) {
	switch mediaType {
	case MediaTypeSchema1:
		var m Schema1
		if err := json.Unmarshal(raw, &m); err != nil {
			return Decoded{}, fmt.Errorf("manifest: decoding schema1: %w", err)
		}
		if m.SchemaVersion != 1 {
			return Decoded{}, fmt.Errorf("manifest: schema1 manifest declares schemaVersion %d, want 1", m.SchemaVersion)
		}
		return Decoded{Schema1: &m}, nil
	case MediaTypeSchema2:
		var m Schema2
		if err := json.Unmarshal(raw, &m); err != nil {
			return Decoded{}, fmt.Errorf("manifest: decoding schema2: %w", err)
		}
		if m.SchemaVersion != 2 {
			return Decoded{}, fmt.Errorf("manifest: schema2 manifest declares schemaVersion %d, want 2", m.SchemaVersion)
		}
		return Decoded{Schema2: &m}, nil
	case MediaTypeOCIManifest:
		var m OCI
		if err := json.Unmarshal(raw, &m); err != nil {
			return Decoded{}, fmt.Errorf("manifest: decoding OCI manifest: %w", err)
		}
		if m.SchemaVersion != 2 {
			return Decoded{}, fmt.Errorf("manifest: OCI manifest declares schemaVersion %d, want 2", m.SchemaVersion)
		}
		return Decoded{OCI: &m}, nil
	default:
		return Decoded{}, &distclient.UnsupportedMediaType{MediaType: mediaType}
	}
}

// GetMetadata performs a HEAD request, returning only the descriptor
// (digest, size, media type) without transferring the manifest body.
func (r Ref) GetMetadata(acceptMediaType string) (Descriptor, error) {
	headers := http.Header{"Accept": []string{acceptMediaType}}
	resp, err := r.Client.Head(context.Background(), r.url(), headers)
	if err != nil {
		return Descriptor{}, err
	}
	defer resp.Body.Close()
	return Descriptor{
		MediaType: resp.Header.Get("Content-Type"),
		Digest:    resp.Header.Get("Docker-Content-Digest"),
		Size:      resp.ContentLength,
	}, nil
}

// Put uploads a Schema2 manifest, returning the descriptor the registry
// assigns it.
func (r Ref) Put(m Schema2) (Descriptor, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return Descriptor{}, err
	}
	return r.putRaw(body, MediaTypeSchema2)
}

// PutSchema1 signs and uploads a Schema1 manifest using signer, mirroring
// the original's reliance on libtrust to attach a detached JWS before PUT.
func (r Ref) PutSchema1(m Schema1, signer Signer) (Descriptor, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return Descriptor{}, err
	}
	jws, err := signer.Sign(payload)
	if err != nil {
		return Descriptor{}, err
	}
	m.Signatures = []JWS{jws}
	signed, err := json.Marshal(m)
	if err != nil {
		return Descriptor{}, err
	}
	return r.putRaw(signed, MediaTypeSchema1)
}

func (r Ref) putRaw(body []byte, mediaType string) (Descriptor, error) {
	headers := http.Header{"Content-Type": []string{mediaType}}
	resp, err := r.Client.Put(context.Background(), r.url(), headers, bytes.NewReader(body))
	if err != nil {
		return Descriptor{}, err
	}
	defer resp.Body.Close()
	return Descriptor{
		MediaType: mediaType,
		Digest:    resp.Header.Get("Docker-Content-Digest"),
		Size:      int64(len(body)),
	}, nil
}

// Delete untags/removes the manifest reference, per
// ManifestRef.delete (exercised through Tags.untag in the original).
func (r Ref) Delete() error {
	resp, err := r.Client.Delete(context.Background(), r.url(), nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
