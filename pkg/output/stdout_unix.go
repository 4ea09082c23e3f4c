//go:build unix

package output

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// openStdout takes a private copy of fd 1 for the stream and points fd 1 at
// stderr, so nothing else in the process can write into the video.
func openStdout() (io.WriteCloser, error) {
	fd, err := unix.Dup(unix.Stdout)
	if err != nil {
		return nil, fmt.Errorf("dup stdout: %w", err)
	}
	if err := unix.Dup2(unix.Stderr, unix.Stdout); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("redirect stdout: %w", err)
	}
	return os.NewFile(uintptr(fd), "/dev/stdout"), nil
}
