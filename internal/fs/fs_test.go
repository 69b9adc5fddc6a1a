package fs

import (
	iofs "io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "ab")
	require.NoError(t, lfs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "entry.tmp")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR|os.O_EXCL, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	final := filepath.Join(dir, "entry.blob")
	require.NoError(t, lfs.Rename(fpath, final))

	data, err := lfs.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	var seen []string
	require.NoError(t, lfs.WalkDir(tmp, func(path string, d iofs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			seen = append(seen, filepath.Base(path))
		}
		return err
	}))
	assert.Equal(t, []string{"entry.blob"}, seen)

	require.NoError(t, lfs.Remove(final))
	_, err = lfs.ReadFile(final)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFaultyFS_WriteFault(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule(".tmp", Fault{FailAfterBytes: 3})

	f, err := ffs.OpenFile(filepath.Join(tmp, "a.tmp"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = f.Write([]byte("d"))
	assert.ErrorIs(t, err, ErrInjected)

	// Files that do not match a rule behave normally.
	g, err := ffs.OpenFile(filepath.Join(tmp, "b.blob"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = g.Write([]byte("abcdef"))
	assert.NoError(t, err)
	assert.NoError(t, g.Close())
	assert.Equal(t, 2, ffs.Opened())
}

func TestFaultyFS_RenameAndFreeBytes(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("stuck", Fault{FailAfterBytes: -1, FailOnRename: true})

	src := filepath.Join(tmp, "stuck.tmp")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))
	assert.ErrorIs(t, ffs.Rename(src, filepath.Join(tmp, "dst")), ErrInjected)

	ffs.ClearRules()
	assert.NoError(t, ffs.Rename(src, filepath.Join(tmp, "dst")))

	ffs.SetFreeBytes(42)
	free, ok := ffs.FreeBytes(tmp)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), free)
}
