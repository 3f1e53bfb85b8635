//go:build linux

package sorter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func stubRenameat2(t *testing.T, fn func(oldpath, newpath string) error) {
	t.Helper()
	prev := renameat2
	renameat2 = fn
	noRenameat2.Store(false)
	t.Cleanup(func() {
		renameat2 = prev
		noRenameat2.Store(false)
	})
}

func TestRenameFallsBackPerCallOnEINVAL(t *testing.T) {
	calls := 0
	stubRenameat2(t, func(oldpath, newpath string) error {
		calls++
		if calls == 1 {
			return unix.EINVAL
		}
		return os.Rename(oldpath, newpath)
	})

	dir := t.TempDir()
	for _, name := range []string{"a", "b"} {
		src := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(src, []byte(name), 0o644))
		require.NoError(t, renameNoReplace(src, src+".moved"))
		assert.FileExists(t, src+".moved")
	}

	assert.Equal(t, 2, calls, "one filesystem without NOREPLACE must not disable it for the rest")
	assert.False(t, noRenameat2.Load())
}

func TestRenameStopsTryingWithoutRenameat2(t *testing.T) {
	calls := 0
	stubRenameat2(t, func(oldpath, newpath string) error {
		calls++
		return unix.ENOSYS
	})

	dir := t.TempDir()
	for _, name := range []string{"a", "b"} {
		src := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(src, []byte(name), 0o644))
		require.NoError(t, renameNoReplace(src, src+".moved"))
	}

	assert.Equal(t, 1, calls)
	assert.True(t, noRenameat2.Load())
}

func TestRenameFallbackStillRefusesExistingTarget(t *testing.T) {
	stubRenameat2(t, func(string, string) error { return unix.EINVAL })

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("src"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("dst"), 0o644))

	assert.ErrorIs(t, renameNoReplace(src, dst), os.ErrExist)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "dst", string(got))
}
