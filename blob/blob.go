// Package blob implements the Blob Transfer Engine: stat, streamed
// download, monolithic and resumable chunked upload, cross-repo mount, and
// delete, per moby_distribution/registry/resources/blobs.py generalized to
// Go and idiomatic-Go-shaped per
// github.com/google/go-containerregistry's remote.writer.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	distclient "github.com/shabbywu/distribution-go"
	"github.com/shabbywu/distribution-go/digest"
	"github.com/shabbywu/distribution-go/endpoint"
	"github.com/shabbywu/distribution-go/manifest"
)

// requestError reads resp's body and wraps it with its status code into
// a distclient.RequestError, so callers can errors.As past this
// package's boundary to inspect the status and body the registry sent.
func requestError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &distclient.RequestError{Status: resp.StatusCode, Body: string(body)}
}

// MinChunkSize and MaxChunkSize bound the buffer UploadStreaming reads
// before issuing each PATCH, per spec.md §4.5 and §6's client defaults.
const (
	MinChunkSize = 4 * 1024 * 1024
	MaxChunkSize = 64 * 1024 * 1024
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

// Resource addresses the blobs of one repository against a Client.
type Resource struct {
	Repo       string
	Client     httpClient
	APIBaseURL string
}

func (r Resource) blobURL(digest string) string {
	return endpoint.NewURLBuilder(r.APIBaseURL).Blob(r.Repo, digest)
}

func (r Resource) uploadsURL() string {
	return endpoint.NewURLBuilder(r.APIBaseURL).BlobUploads(r.Repo)
}

// Stat performs a HEAD request, returning a Descriptor built from response
// headers without transferring the blob body.
func (r Resource) Stat(digest string) (manifest.Descriptor, error) {
	resp, err := r.Client.Head(context.Background(), r.blobURL(digest), nil)
	if err != nil {
		return manifest.Descriptor{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return manifest.Descriptor{}, &distclient.ResourceNotFound{URL: r.blobURL(digest)}
	}

	size, _ := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	reportedDigest := resp.Header.Get("Docker-Content-Digest")
	if reportedDigest == "" {
		reportedDigest = digest
	}
	return manifest.Descriptor{
		MediaType: resp.Header.Get("Content-Type"),
		Size:      size,
		Digest:    reportedDigest,
		URLs:      headerURLs(resp.Header.Get("Location"), r.blobURL(digest)),
	}, nil
}

func headerURLs(location, fallback string) []string {
	if location != "" {
		return []string{location}
	}
	return []string{fallback}
}

// Download streams the blob identified by digest into sink 1 KiB at a
// time, per spec.md §4.5.
func (r Resource) Download(digest string, sink io.Writer) error {
	resp, err := r.Client.Get(context.Background(), r.blobURL(digest), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := make([]byte, 1024)
	// Plain wrappers hide any ReadFrom/WriteTo so io.CopyBuffer uses buf.
	_, err = io.CopyBuffer(struct{ io.Writer }{sink}, struct{ io.Reader }{resp.Body}, buf)
	return err
}

// UploadMonolithic buffers data fully, computes its sha256 digest, then
// performs a single POST→PUT upload, per
// Blob.upload_at_one_time.
func (r Resource) UploadMonolithic(data []byte) (manifest.Descriptor, error) {
	w := digest.NewSHA256Writer(io.Discard)
	if _, err := w.Write(data); err != nil {
		return manifest.Descriptor{}, err
	}
	dig := w.Digest().String()

	location, _, err := r.initiateUpload()
	if err != nil {
		return manifest.Descriptor{}, err
	}

	finalURL := location + withQueryDigest(location, dig)
	headers := http.Header{"Content-Type": []string{"application/octet-stream"}}
	resp, err := r.Client.Put(context.Background(), finalURL, headers, bytes.NewReader(data))
	if err != nil {
		return manifest.Descriptor{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return manifest.Descriptor{}, requestError(resp)
	}
	return r.Stat(dig)
}

// UploadStreaming reads source in MinChunkSize-sized pieces, PATCHing each
// one to the upload session, then finalizes with a digest-bearing PUT, per
// spec.md §4.5's resumable protocol.
func (r Resource) UploadStreaming(source io.Reader) (manifest.Descriptor, error) {
	location, uuid, err := r.initiateUpload()
	if err != nil {
		return manifest.Descriptor{}, err
	}

	w := NewWriter(uuid, location, r.Client)
	hasher := digest.NewSHA256Writer(w)

	buf := make([]byte, MinChunkSize)
	for {
		n, readErr := io.ReadFull(source, buf)
		if n > 0 {
			if _, err := hasher.Write(buf[:n]); err != nil {
				return manifest.Descriptor{}, err
			}
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return manifest.Descriptor{}, readErr
		}
	}

	dig := hasher.Digest().String()
	if err := w.Commit(dig); err != nil {
		return manifest.Descriptor{}, err
	}
	return r.Stat(dig)
}

// MountFrom mounts the blob identified by digest from fromRepo into this
// resource's repository via a cross-repo POST, expecting 201. Any other
// status is a failure; the caller must fall back to UploadStreaming
// itself, per spec.md §4.5's "this core treats as an error" rule.
func (r Resource) MountFrom(fromRepo, digest string) (manifest.Descriptor, error) {
	q := url.Values{"from": {fromRepo}, "mount": {digest}}
	target := r.uploadsURL() + "?" + q.Encode()
	resp, err := r.Client.Post(context.Background(), target, nil, nil)
	if err != nil {
		return manifest.Descriptor{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return manifest.Descriptor{}, requestError(resp)
	}
	return r.Stat(digest)
}

// Delete removes the blob identified by digest, expecting 202.
func (r Resource) Delete(digest string) error {
	resp, err := r.Client.Delete(context.Background(), r.blobURL(digest), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return requestError(resp)
	}
	return nil
}

// initiateUpload performs the POST that opens a resumable upload session,
// returning its absolute Location and uuid (falling back to the last path
// segment of Location when Docker-Upload-UUID is absent), per
// Blob._initiate_blob_upload.
func (r Resource) initiateUpload() (location, uuid string, err error) {
	resp, err := r.Client.Post(context.Background(), r.uploadsURL(), nil, nil)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return "", "", requestError(resp)
	}

	location = resp.Header.Get("Location")
	uuid = resp.Header.Get("Docker-Upload-UUID")
	if uuid == "" {
		parts := strings.Split(location, "/")
		uuid = parts[len(parts)-1]
	}
	if uuid == "" {
		return "", "", fmt.Errorf("blob: cannot retrieve upload uuid from location %q", location)
	}

	location = r.absolutize(location)
	return location, uuid, nil
}

// absolutize turns a relative Location header into an absolute URL rooted
// at this resource's base, per RFC 7231's allowance for either form.
func (r Resource) absolutize(location string) string {
	if u, err := url.Parse(location); err == nil && u.IsAbs() {
		return location
	}
	return r.APIBaseURL + "/" + strings.TrimPrefix(location, "/")
}

func withQueryDigest(location, dig string) string {
	sep := "?"
	if strings.Contains(location, "?") {
		sep = "&"
	}
	return sep + "digest=" + url.QueryEscape(dig)
}

// Writer is an in-progress resumable upload session: it satisfies
// io.Writer by PATCHing each write as one chunk, advancing offset from the
// server's authoritative Range header, per spec.md's BlobWriter.
type Writer struct {
	UUID      string
	Location  string
	Offset    int64
	Committed bool

	client httpClient
}

// NewWriter constructs a Writer bound to client, for tests and for callers
// resuming an upload session obtained out of band.
func NewWriter(uuid, location string, client httpClient) *Writer {
	return &Writer{UUID: uuid, Location: location, client: client}
}

func (w *Writer) Write(p []byte) (int, error) {
	headers := http.Header{
		"Content-Range": []string{fmt.Sprintf("%d-%d", w.Offset, w.Offset+int64(len(p))-1)},
		"Content-Type":  []string{"application/octet-stream"},
	}
	resp, err := w.client.Patch(context.Background(), w.Location, headers, bytes.NewReader(p))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return 0, requestError(resp)
	}

	rangeHeader := resp.Header.Get("Range")
	start, end, err := parseRange(rangeHeader)
	if err != nil {
		return 0, err
	}
	advance := end - start + 1 - w.Offset

	if loc := resp.Header.Get("Location"); loc != "" {
		if base, err := url.Parse(w.Location); err == nil {
			if ref, err := url.Parse(loc); err == nil {
				loc = base.ResolveReference(ref).String()
			}
		}
		w.Location = loc
	}
	if uuid := resp.Header.Get("Docker-Upload-UUID"); uuid != "" {
		w.UUID = uuid
	}
	w.Offset += advance
	return len(p), nil
}

func parseRange(header string) (start, end int64, err error) {
	parts := strings.SplitN(header, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("blob: malformed Range header %q", header)
	}
	start, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	end, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// Commit finalizes the upload session with the computed digest, expecting
// 201 Created.
func (w *Writer) Commit(dig string) error {
	finalURL := w.Location + withQueryDigest(w.Location, dig)
	resp, err := w.client.Put(context.Background(), finalURL, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return requestError(resp)
	}
	w.Committed = true
	return nil
}

// Tell returns the number of bytes accepted by the server so far.
func (w *Writer) Tell() int64 { return w.Offset }
