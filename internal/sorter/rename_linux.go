//go:build linux

package sorter

import (
	"errors"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Set once the kernel has reported that renameat2 does not exist.
var noRenameat2 atomic.Bool

var renameat2 = func(oldpath, newpath string) error {
	return unix.Renameat2(unix.AT_FDCWD, oldpath, unix.AT_FDCWD, newpath, unix.RENAME_NOREPLACE)
}

// renameNoReplace renames oldpath to newpath, failing with fs.ErrExist if
// newpath is taken. The check and the rename are a single syscall.
func renameNoReplace(oldpath, newpath string) error {
	if noRenameat2.Load() {
		return renameChecked(oldpath, newpath)
	}

	err := renameat2(oldpath, newpath)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ENOSYS):
		noRenameat2.Store(true)
		return renameChecked(oldpath, newpath)
	case errors.Is(err, unix.EINVAL):
		// This filesystem lacks RENAME_NOREPLACE; others may still have it.
		return renameChecked(oldpath, newpath)
	default:
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: err}
	}
}

func isCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}
