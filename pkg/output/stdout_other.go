//go:build !unix

package output

import (
	"io"
	"os"
)

func openStdout() (io.WriteCloser, error) {
	return os.Stdout, nil
}
