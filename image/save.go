package image

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/pkg/archive"
	"github.com/google/uuid"

	distclient "github.com/shabbywu/distribution-go"
	"github.com/shabbywu/distribution-go/digest"
	"github.com/shabbywu/distribution-go/internal/rwfs"
)

// saveManifest is the single element of a Docker v1.2 "image save"
// manifest.json array, per spec.md §4.8's save() layout and
// eriksw-regclient.regclient's imageManifest.
type saveManifest struct {
	Config   string   `json:"Config"`
	RepoTags []string `json:"RepoTags"`
	Layers   []string `json:"Layers"`
}

// Save writes a Docker Image Specification v1.2 tarball to outStream. It
// refuses to run while Dirty, since the local layer chain would then
// disagree with the pulled config hash, per ImageRef.save.
func (r *Ref) Save(outStream io.Writer) error {
	if r.Dirty {
		return &distclient.InvalidState{Reason: "cannot save a dirty image; push first or discard the appended layers"}
	}

	workplace := filepath.Join(os.TempDir(), "distribution-go-save-"+uuid.NewString())
	if err := os.Mkdir(workplace, 0o755); err != nil {
		return err
	}
	defer os.RemoveAll(workplace)
	fs := rwfs.NewOSFS(workplace)

	m := saveManifest{RepoTags: []string{r.Repo + ":" + r.Reference}}

	configBytes, err := r.imageJSONBytes()
	if err != nil {
		return err
	}
	configDigest := digest.NewSHA256Writer(io.Discard)
	if _, err := configDigest.Write(configBytes); err != nil {
		return err
	}
	configName := configDigest.Digest().Encoded() + ".json"
	if err := rwfs.WriteFile(fs, configName, configBytes, 0o644); err != nil {
		return err
	}
	m.Config = configName

	for _, layer := range r.Layers {
		layerPath, err := r.saveLayer(fs, layer)
		if err != nil {
			return err
		}
		m.Layers = append(m.Layers, layerPath)
	}

	manifestBytes, err := json.Marshal([]saveManifest{m})
	if err != nil {
		return err
	}
	if err := rwfs.WriteFile(fs, "manifest.json", manifestBytes, 0o644); err != nil {
		return err
	}

	tarStream, err := archive.Tar(workplace, archive.Uncompressed)
	if err != nil {
		return err
	}
	defer tarStream.Close()

	_, err = io.Copy(outStream, tarStream)
	return err
}

// saveLayer downloads layer's gzipped blob, decompresses it on the fly
// (the engine never materializes the compressed bytes in memory beyond
// the streaming transfer), and places the raw tar under
// "<diff-id-hex>/layer.tar" inside workplace, per ImageRef._save_layer.
//
// The diff id naming the destination directory is only known once the
// download finishes, so the layer is written under a placeholder name
// first and moved into place with rwfs.Rename.
func (r *Ref) saveLayer(fs rwfs.OSFS, layer LayerRef) (string, error) {
	pr, pw := io.Pipe()
	downloadErr := make(chan error, 1)
	go func() {
		downloadErr <- r.blobs(layer.Repo).Download(layer.Digest, pw)
		pw.Close()
	}()

	uncompressed, err := archive.DecompressStream(pr)
	if err != nil {
		return "", err
	}
	defer uncompressed.Close()

	hasher := digest.NewSHA256Writer(io.Discard)
	tee := io.TeeReader(uncompressed, hasher)

	tmpName := "layer.tar.tmp"
	f, err := fs.Create(tmpName)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, tee); err != nil {
		f.Close()
		return "", err
	}
	f.Close()

	if err := <-downloadErr; err != nil {
		return "", err
	}

	diffID := hasher.Digest().Encoded()
	if err := rwfs.MkdirAll(fs, diffID, 0o755); err != nil {
		return "", err
	}
	finalName := diffID + "/layer.tar"
	if err := rwfs.Rename(fs, tmpName, finalName); err != nil {
		return "", err
	}
	return finalName, nil
}
