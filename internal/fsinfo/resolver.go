// Package fsinfo looks up file-system objects by their stored key.
package fsinfo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/lazypower/mfu/internal/mfu"
	"github.com/spf13/afero"
)

// ErrNotAbsolute is returned for keys that are not absolute paths.
var ErrNotAbsolute = errors.New("fsinfo: key is not an absolute path")

// Resolver resolves keys by stat-ing them on a filesystem.
type Resolver struct {
	fs afero.Fs
}

// New returns a Resolver over fs.
func New(fs afero.Fs) *Resolver {
	return &Resolver{fs: fs}
}

// NewOS returns a Resolver over the host filesystem.
func NewOS() *Resolver {
	return New(afero.NewOsFs())
}

// Resolve stats key and describes what it finds.
func (r *Resolver) Resolve(ctx context.Context, key string) (mfu.File, error) {
	if err := ctx.Err(); err != nil {
		return mfu.File{}, err
	}
	if !filepath.IsAbs(key) {
		return mfu.File{}, fmt.Errorf("%w: %q", ErrNotAbsolute, key)
	}

	info, err := r.fs.Stat(key)
	if err != nil {
		return mfu.File{}, fmt.Errorf("stat %s: %w", key, err)
	}
	return mfu.File{
		Path:    filepath.Clean(key),
		Name:    info.Name(),
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}, nil
}

// Abs turns a user-supplied path into a key: absolute and cleaned.
func Abs(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", path, err)
	}
	return abs, nil
}
