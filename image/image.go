// Package image implements the Image Composition Engine: pulling a
// remote image into an editable in-memory model, appending new gzipped
// tar layers with matching uncompressed diff ids, and pushing the
// assembled artifact back as a Schema 2 manifest, per
// moby_distribution/registry/resources/image.py generalized to Go.
package image

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	distclient "github.com/shabbywu/distribution-go"
	"github.com/shabbywu/distribution-go/blob"
	"github.com/shabbywu/distribution-go/digest"
	"github.com/shabbywu/distribution-go/manifest"
)

// httpClient is the subset of *distclient.Client this package needs,
// declared locally so that *distclient.Client or any test double with
// these methods can be passed in.
type httpClient interface {
	Get(ctx context.Context, url string, headers http.Header) (*http.Response, error)
	Head(ctx context.Context, url string, headers http.Header) (*http.Response, error)
	Put(ctx context.Context, url string, headers http.Header, body io.Reader) (*http.Response, error)
	Post(ctx context.Context, url string, headers http.Header, body io.Reader) (*http.Response, error)
	Patch(ctx context.Context, url string, headers http.Header, body io.Reader) (*http.Response, error)
	Delete(ctx context.Context, url string, headers http.Header) (*http.Response, error)
}

// LayerRef references either a blob already in some repository
// (Exists=true, Repo+Digest populated) or a local gzipped tar file
// waiting to be uploaded (LocalPath set, Exists=false), per spec.md §3's
// LayerRef.
type LayerRef struct {
	Repo      string
	Digest    string
	Size      int64
	Exists    bool
	LocalPath string
}

// Ref is an in-memory editable image: the layer chain, the pulled (or
// freshly authored) config, and the append-only diff id trail recorded
// since the last pull, per spec.md §3's ImageRef.
type Ref struct {
	Repo      string
	Reference string

	Layers          []LayerRef
	InitialConfig   string
	AppendedDiffIDs []string
	Dirty           bool

	Client     httpClient
	APIBaseURL string
}

func (r *Ref) manifestRef(repo, reference string) manifest.Ref {
	return manifest.Ref{Repo: repo, Reference: reference, Client: r.Client, APIBaseURL: r.APIBaseURL}
}

func (r *Ref) blobs(repo string) blob.Resource {
	return blob.Resource{Repo: repo, Client: r.Client, APIBaseURL: r.APIBaseURL}
}

// FromImage pulls the Schema 2 manifest and config of fromRepo:fromRef,
// and returns a new Ref targeting toRepo:toRef (defaulting to the source
// coordinates when empty) with Dirty=false, per ImageRef.from_image.
func FromImage(client httpClient, apiBaseURL, fromRepo, fromReference, toRepo, toReference string) (*Ref, error) {
	if toRepo == "" {
		toRepo = fromRepo
	}
	if toReference == "" {
		toReference = fromReference
	}

	r := &Ref{Client: client, APIBaseURL: apiBaseURL}
	_, decoded, _, err := r.manifestRef(fromRepo, fromReference).Get(manifest.MediaTypeSchema2)
	if err != nil {
		return nil, err
	}
	m := decoded.Schema2

	layers := make([]LayerRef, len(m.Layers))
	for i, l := range m.Layers {
		layers[i] = LayerRef{Repo: fromRepo, Digest: l.Digest, Size: l.Size, Exists: true}
	}

	var configBuf bytes.Buffer
	if err := r.blobs(fromRepo).Download(m.Config.Digest, &configBuf); err != nil {
		return nil, fmt.Errorf("image: downloading config blob: %w", err)
	}

	return &Ref{
		Repo:          toRepo,
		Reference:     toReference,
		Layers:        layers,
		InitialConfig: configBuf.String(),
		Client:        client,
		APIBaseURL:    apiBaseURL,
	}, nil
}

// AddLayer ingests layer in local or remote mode, verifying any
// caller-supplied digest/size, and records its diff id, per
// ImageRef.add_layer. It returns the layer's final (digest, size).
func (r *Ref) AddLayer(layer LayerRef) (digestOut string, sizeOut int64, err error) {
	if !layer.Exists && layer.LocalPath == "" {
		return "", 0, &distclient.InvalidState{Reason: "layer has neither a known remote digest nor a local path"}
	}

	var diffID string
	if layer.LocalPath != "" {
		digestOut, sizeOut, diffID, err = r.addLocalLayer(&layer)
	} else {
		digestOut, sizeOut, diffID, err = r.addRemoteLayer(layer)
	}
	if err != nil {
		return "", 0, err
	}

	r.Dirty = true
	r.AppendedDiffIDs = append(r.AppendedDiffIDs, diffID)
	r.Layers = append(r.Layers, layer)
	return digestOut, sizeOut, nil
}

// addLocalLayer computes digest (pass 1, raw bytes) and diff id (pass 2,
// gunzipped bytes) from a file assumed to already be a gzipped tar.
func (r *Ref) addLocalLayer(layer *LayerRef) (dig string, size int64, diffID string, err error) {
	f, err := os.Open(layer.LocalPath)
	if err != nil {
		return "", 0, "", err
	}
	defer f.Close()

	gzipSigner := digest.NewSHA256Writer(io.Discard)
	if _, err := io.Copy(gzipSigner, f); err != nil {
		return "", 0, "", err
	}
	dig = gzipSigner.Digest().String()
	size = gzipSigner.Size()

	if layer.Digest != "" && layer.Digest != dig {
		return "", 0, "", &distclient.DigestMismatch{Expected: layer.Digest, Actual: dig}
	}

	diffID, err = diffIDOfGzipFile(layer.LocalPath)
	if err != nil {
		return "", 0, "", err
	}

	layer.Digest = dig
	layer.Repo = r.Repo
	layer.Size = size
	return dig, size, diffID, nil
}

// addRemoteLayer downloads an already-existing blob while digesting it,
// verifying the caller's declared digest and size match, then
// decompresses the downloaded bytes to derive the diff id.
func (r *Ref) addRemoteLayer(layer LayerRef) (dig string, size int64, diffID string, err error) {
	tmp, err := os.CreateTemp("", "distribution-go-layer-*")
	if err != nil {
		return "", 0, "", err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	gzipSigner := digest.NewSHA256Writer(tmp)
	downloadErr := r.blobs(layer.Repo).Download(layer.Digest, gzipSigner)
	tmp.Close()
	if downloadErr != nil {
		return "", 0, "", downloadErr
	}

	dig = gzipSigner.Digest().String()
	size = gzipSigner.Size()
	if layer.Size > 0 && layer.Size != size {
		return "", 0, "", fmt.Errorf("image: wrong size, layer.size %d != downloaded %d", layer.Size, size)
	}
	if layer.Digest != dig {
		return "", 0, "", &distclient.DigestMismatch{Expected: layer.Digest, Actual: dig}
	}

	diffID, err = diffIDOfGzipFile(tmpPath)
	if err != nil {
		return "", 0, "", err
	}
	return dig, size, diffID, nil
}

// diffIDOfGzipFile reopens path via a gzip decoder and hashes the
// uncompressed bytes, per the "diff id" definition in the glossary.
func diffIDOfGzipFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", err
	}
	defer gz.Close()

	w := digest.NewSHA256Writer(io.Discard)
	if _, err := io.Copy(w, gz); err != nil {
		return "", err
	}
	return w.Digest().String(), nil
}

// imageJSON reconstructs the current config document, appending any diff
// ids recorded since the last pull, per ImageRef.image_json.
func (r *Ref) imageJSON() (JSON, error) {
	var base JSON
	if err := json.Unmarshal([]byte(r.InitialConfig), &base); err != nil {
		return JSON{}, fmt.Errorf("image: decoding initial config: %w", err)
	}
	if !r.Dirty {
		return base, nil
	}
	base.RootFS.DiffIDs = append(base.RootFS.DiffIDs, r.AppendedDiffIDs...)
	return base, nil
}

// imageJSONBytes serializes the current config, reusing the pulled bytes
// verbatim when nothing has been appended (image_json_str's fast path).
func (r *Ref) imageJSONBytes() ([]byte, error) {
	if !r.Dirty {
		return []byte(r.InitialConfig), nil
	}
	j, err := r.imageJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(j)
}

// Push publishes the image using mediaType, currently only Schema 2.
func (r *Ref) Push(mediaType string) (manifest.Schema2, error) {
	if mediaType != manifest.MediaTypeSchema2 {
		return manifest.Schema2{}, fmt.Errorf("image: only Schema2 push is supported, got %q", mediaType)
	}
	return r.PushV2()
}

// PushV2 uploads every layer (mounting or statting where possible,
// streaming local files otherwise), uploads the config, and PUTs the
// Schema2 manifest, preserving layer order throughout, per
// ImageRef.push_v2.
func (r *Ref) PushV2() (manifest.Schema2, error) {
	layerDescriptors := make([]manifest.Layer, len(r.Layers))
	for i, layer := range r.Layers {
		desc, err := r.uploadLayer(layer)
		if err != nil {
			return manifest.Schema2{}, err
		}
		layerDescriptors[i] = desc
	}

	configBytes, err := r.imageJSONBytes()
	if err != nil {
		return manifest.Schema2{}, err
	}
	configDesc, err := r.uploadConfig(configBytes)
	if err != nil {
		return manifest.Schema2{}, err
	}

	m := manifest.NewSchema2(configDesc, layerDescriptors)
	if _, err := r.manifestRef(r.Repo, r.Reference).Put(m); err != nil {
		return manifest.Schema2{}, err
	}
	return m, nil
}

func (r *Ref) uploadLayer(layer LayerRef) (manifest.Layer, error) {
	var desc manifest.Descriptor
	var err error
	switch {
	case layer.Exists && layer.Repo != r.Repo:
		desc, err = r.blobs(r.Repo).MountFrom(layer.Repo, layer.Digest)
	case !layer.Exists:
		f, openErr := os.Open(layer.LocalPath)
		if openErr != nil {
			return manifest.Layer{}, openErr
		}
		defer f.Close()
		desc, err = r.blobs(r.Repo).UploadStreaming(f)
	default:
		desc, err = r.blobs(r.Repo).Stat(layer.Digest)
	}
	if err != nil {
		return manifest.Layer{}, err
	}
	return manifest.Layer{
		MediaType: "application/vnd.docker.image.rootfs.diff.tar.gzip",
		Size:      desc.Size,
		Digest:    desc.Digest,
	}, nil
}

func (r *Ref) uploadConfig(configBytes []byte) (manifest.Config, error) {
	desc, err := r.blobs(r.Repo).UploadMonolithic(configBytes)
	if err != nil {
		return manifest.Config{}, err
	}
	return manifest.Config{
		MediaType: "application/vnd.docker.container.image.v1+json",
		Size:      desc.Size,
		Digest:    desc.Digest,
	}, nil
}
