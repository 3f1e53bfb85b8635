package sorter

import (
	"errors"
	"io/fs"
	"os"
)

// renameChecked is the portable fallback: probe, then rename. Only safe
// because every move goes through the single watch loop.
func renameChecked(oldpath, newpath string) error {
	if _, err := os.Lstat(newpath); err == nil {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: fs.ErrExist}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(oldpath, newpath)
}
