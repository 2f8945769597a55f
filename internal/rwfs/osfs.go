package rwfs

import (
	"io/fs"
	"os"
	"path/filepath"
)

// OSFS is an RWFS rooted at a real directory on disk. It is the
// concrete filesystem the image package's Save() uses for its scoped
// temporary workspace; the teacher's capture of this package declared
// only the RWFS/WriteFS interfaces and left the disk-backed
// implementation for callers to supply.
type OSFS struct {
	Root string
}

// NewOSFS returns an OSFS rooted at root. root must already exist.
func NewOSFS(root string) OSFS { return OSFS{Root: root} }

func (o OSFS) resolve(name string) string {
	return filepath.Join(o.Root, filepath.FromSlash(name))
}

func (o OSFS) Open(name string) (fs.File, error) {
	f, err := os.Open(o.resolve(name))
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (o OSFS) Create(name string) (WFile, error) {
	return os.Create(o.resolve(name))
}

func (o OSFS) Mkdir(name string, perm fs.FileMode) error {
	return os.Mkdir(o.resolve(name), perm)
}

func (o OSFS) OpenFile(name string, flag int, perm fs.FileMode) (RWFile, error) {
	f, err := os.OpenFile(o.resolve(name), flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (o OSFS) Remove(name string) error {
	return os.Remove(o.resolve(name))
}

// Rename implements Renamer, letting rwfs.Rename use a real os.Rename
// instead of its copy-then-remove fallback.
func (o OSFS) Rename(oldname, newname string) error {
	return os.Rename(o.resolve(oldname), o.resolve(newname))
}
