package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
)

// StatFollow stats p following symlinks, like os.Stat.
func StatFollow(p Path) (os.FileInfo, error) {
	return os.Stat(p.String())
}

// StatNoFollow stats p without following a final symlink, like os.Lstat.
func StatNoFollow(p Path) (os.FileInfo, error) {
	return os.Lstat(p.String())
}

// WalkFunc mirrors filepath.WalkFunc but receives a normalized Path.
type WalkFunc func(p Path, info fs.FileInfo, err error) error

// Walk walks the directory tree rooted at root, calling fn for each entry.
func Walk(root Path, fn WalkFunc) error {
	return filepath.Walk(root.String(), func(path string, info fs.FileInfo, err error) error {
		return fn(NewPath(path), info, err)
	})
}
