package main

import (
	"bytes"
	"fmt"

	"github.com/shabbywu/distribution-go"
	"github.com/shabbywu/distribution-go/blob"
	"github.com/shabbywu/distribution-go/manifest"
)

// copyImage mirrors cmd/regsync/root.go's rc.ImageCopy, composed here
// directly from the manifest and blob packages rather than the image
// package: image.Ref assumes a single Client for both ends, which cannot
// express a cross-registry mirror (blob mount only ever works within one
// registry). Skips any blob the target already has.
func copyImage(srcClient, tgtClient *distclient.Client, srcRepo, srcReference, tgtRepo, tgtReference string) error {
	srcManifest := manifest.Ref{Repo: srcRepo, Reference: srcReference, Client: srcClient, APIBaseURL: srcClient.APIBaseURL}
	_, decoded, _, err := srcManifest.Get(manifest.MediaTypeSchema2)
	if err != nil {
		return fmt.Errorf("copy: fetching source manifest: %w", err)
	}
	m := *decoded.Schema2

	srcBlobs := blob.Resource{Repo: srcRepo, Client: srcClient, APIBaseURL: srcClient.APIBaseURL}
	tgtBlobs := blob.Resource{Repo: tgtRepo, Client: tgtClient, APIBaseURL: tgtClient.APIBaseURL}

	copyBlob := func(digest string) error {
		if _, err := tgtBlobs.Stat(digest); err == nil {
			return nil
		}
		var buf bytes.Buffer
		if err := srcBlobs.Download(digest, &buf); err != nil {
			return fmt.Errorf("copy: downloading %s: %w", digest, err)
		}
		if _, err := tgtBlobs.UploadMonolithic(buf.Bytes()); err != nil {
			return fmt.Errorf("copy: uploading %s: %w", digest, err)
		}
		return nil
	}

	for _, layer := range m.Layers {
		if err := copyBlob(layer.Digest); err != nil {
			return err
		}
	}
	if err := copyBlob(m.Config.Digest); err != nil {
		return err
	}

	tgtManifest := manifest.Ref{Repo: tgtRepo, Reference: tgtReference, Client: tgtClient, APIBaseURL: tgtClient.APIBaseURL}
	if _, err := tgtManifest.Put(m); err != nil {
		return fmt.Errorf("copy: pushing target manifest: %w", err)
	}
	return nil
}
