//go:build !windows

package corpus

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/hpungsan/qlib/internal/errors"
)

// openFileNoFollow opens a file for writing with O_NOFOLLOW so a collection
// path that is a symlink is refused rather than followed. O_CLOEXEC prevents
// FD leaks across exec.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, uint32(perm))
	if err != nil {
		if stderrors.Is(err, syscall.ELOOP) {
			return nil, errors.NewInvalidRequest("cannot write to symlink: " + path)
		}
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}
