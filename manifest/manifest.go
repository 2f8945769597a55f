// Package manifest implements the three manifest dialects the Docker
// Registry HTTP API v2 and OCI Distribution spec understand, plus the
// Get/Put/Delete operations against a repository, per
// moby_distribution/spec/manifest.py and
// moby_distribution/registry/resources/manifests.py generalized to Go.
//
// Field order is fixed on every struct (the json tags list fields in the
// order they serialize); callers must not reorder them, since the v1
// signed dialect's digest is computed over the exact byte stream produced
// here.
package manifest

import (
	ociv1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// MediaType names the three dialects this package understands. A fourth
// media type reaching the registry is UnsupportedMediaType, never a panic.
const (
	MediaTypeSchema1     = "application/vnd.docker.distribution.manifest.v1+prettyjws"
	MediaTypeSchema2     = "application/vnd.docker.distribution.manifest.v2+json"
	MediaTypeOCIManifest = ociv1.MediaTypeImageManifest
)

// Descriptor describes targeted content: a blob store digest, media type
// and size, per moby_distribution/spec/base.py's Descriptor (a trimmed
// mirror of OCI's own content descriptor).
type Descriptor struct {
	MediaType   string            `json:"mediaType"`
	Size        int64             `json:"size"`
	Digest      string            `json:"digest"`
	URLs        []string          `json:"urls,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// FSLayer is a Schema1 filesystem layer reference.
type FSLayer struct {
	BlobSum string `json:"blobSum"`
}

// History is a Schema1 V1Compatibility history entry: the raw JSON blob
// describing one legacy image layer.
type History struct {
	V1Compatibility string `json:"v1Compatibility"`
}

// JWS is a detached JSON Web Signature, as attached to a Schema1 manifest's
// "signatures" array.
type JWS struct {
	Header    map[string]interface{} `json:"header"`
	Protected string                  `json:"protected"`
	Signature string                  `json:"signature"`
}

// Schema1 is the legacy signed manifest dialect, kept for registries and
// clients that still speak it (notably `docker manifest` against very old
// registries), per
// https://github.com/distribution/distribution/blob/main/docs/spec/manifest-v2-1.md.
type Schema1 struct {
	SchemaVersion int       `json:"schemaVersion"`
	Name          string    `json:"name"`
	Tag           string    `json:"tag"`
	Architecture  string    `json:"architecture"`
	FSLayers      []FSLayer `json:"fsLayers"`
	History       []History `json:"history"`
	Signatures    []JWS     `json:"signatures,omitempty"`
}

// ContentType returns the media type Schema1 always reports.
func (Schema1) ContentType() string { return MediaTypeSchema1 }

// Config is a Schema2 manifest's config descriptor.
type Config struct {
	MediaType string `json:"mediaType"`
	Size      int64  `json:"size"`
	Digest    string `json:"digest"`
}

// Layer is a Schema2 manifest's layer descriptor. Size is always a number
// on the wire; moby_distribution's Python model declared it as a string,
// which this port does not carry over.
type Layer struct {
	MediaType string `json:"mediaType"`
	Size      int64  `json:"size"`
	Digest    string `json:"digest"`
}

// Schema2 is the Docker Image Manifest V2, Schema 2 dialect: a config blob
// plus an ordered list of layer blobs, per
// https://github.com/distribution/distribution/blob/main/docs/spec/manifest-v2-2.md.
type Schema2 struct {
	SchemaVersion int     `json:"schemaVersion"`
	MediaType     string  `json:"mediaType"`
	Config        Config  `json:"config"`
	Layers        []Layer `json:"layers"`
}

// NewSchema2 returns a Schema2 manifest with schemaVersion and mediaType
// pre-filled to their only valid values.
func NewSchema2(config Config, layers []Layer) Schema2 {
	return Schema2{SchemaVersion: 2, MediaType: MediaTypeSchema2, Config: config, Layers: layers}
}

// ContentType returns the media type Schema2 always reports.
func (Schema2) ContentType() string { return MediaTypeSchema2 }

// OCI is the OCI Image Manifest dialect. It reuses the upstream
// image-spec Go types directly rather than redeclaring them, since OCI
// publishes an authoritative Go module for this one and there is nothing
// this package would add by wrapping it.
type OCI = ociv1.Manifest

// List is a Schema2 manifest list (a "fat manifest" selecting an image by
// platform), mirroring moby_distribution's PlatformManifest entries.
type List struct {
	SchemaVersion int              `json:"schemaVersion"`
	MediaType     string           `json:"mediaType"`
	Manifests     []PlatformEntry `json:"manifests"`
}

// PlatformEntry is one platform-qualified manifest reference within a List.
type PlatformEntry struct {
	MediaType string           `json:"mediaType"`
	Size      int64            `json:"size"`
	Digest    string           `json:"digest"`
	Platform  ociv1.Platform `json:"platform"`
}
