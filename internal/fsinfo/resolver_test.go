package fsinfo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/sdcard/docs/report.pdf", []byte("hello"), 0644))

	f, err := New(fs).Resolve(context.Background(), "/sdcard/docs/report.pdf")
	require.NoError(t, err)

	assert.Equal(t, "/sdcard/docs/report.pdf", f.Path)
	assert.Equal(t, "report.pdf", f.Name)
	assert.Equal(t, int64(5), f.Size)
	assert.False(t, f.IsDir)
	assert.Zero(t, f.Count)
}

func TestResolveDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/sdcard/Music", 0755))

	f, err := New(fs).Resolve(context.Background(), "/sdcard/Music")
	require.NoError(t, err)
	assert.True(t, f.IsDir)
	assert.Equal(t, "Music", f.Name)
}

func TestResolveMissing(t *testing.T) {
	_, err := New(afero.NewMemMapFs()).Resolve(context.Background(), "/gone.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolveRelativeKey(t *testing.T) {
	_, err := New(afero.NewMemMapFs()).Resolve(context.Background(), "relative/path")
	assert.ErrorIs(t, err, ErrNotAbsolute)
}

func TestResolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(afero.NewMemMapFs()).Resolve(ctx, "/x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAbs(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	got, err := Abs("a/../b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "b.txt"), got)
}
