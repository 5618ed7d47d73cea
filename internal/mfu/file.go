package mfu

import (
	"context"
	"io/fs"
	"time"
)

// Object is anything tracked by its absolute path.
type Object interface {
	FullPath() string
}

// Path is an Object given by its path alone.
type Path string

func (p Path) FullPath() string { return string(p) }

// File is a resolved file-system object.
type File struct {
	Path    string      `json:"path"`
	Name    string      `json:"name"`
	Size    int64       `json:"size"`
	Mode    fs.FileMode `json:"mode"`
	ModTime time.Time   `json:"mod_time"`
	IsDir   bool        `json:"is_dir"`

	// Count is the ranking score the tracker held for Path when the list
	// was built. Resolvers leave it zero.
	Count int64 `json:"count"`
}

func (f File) FullPath() string { return f.Path }

// Resolver maps a stored key back to a live file-system object. Any error
// means the key could not be resolved; callers do not distinguish causes.
type Resolver interface {
	Resolve(ctx context.Context, key string) (File, error)
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func(ctx context.Context, key string) (File, error)

func (f ResolverFunc) Resolve(ctx context.Context, key string) (File, error) {
	return f(ctx, key)
}
