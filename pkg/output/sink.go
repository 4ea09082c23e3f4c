package output

import (
	"bufio"
	"fmt"
	"io"
)

// StdoutToken selects standard output as a sink target.
const StdoutToken = "-"

// DefaultBufferSize is the per-sink write buffer.
const DefaultBufferSize = 128 << 10

// Kind is the type of destination behind a sink
type Kind int

const (
	KindFile Kind = iota
	KindStdout
	KindTranscode
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindStdout:
		return "stdout"
	case KindTranscode:
		return "transcode"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sink is one buffered output destination
type Sink struct {
	name    string
	kind    Kind
	header  bool
	w       *bufio.Writer
	closer  io.Closer
	written int64
}

func newSink(name string, kind Kind, header bool, wc io.WriteCloser, size int) *Sink {
	return &Sink{
		name:   name,
		kind:   kind,
		header: header,
		w:      bufio.NewWriterSize(wc, size),
		closer: wc,
	}
}

// Name returns the path or token the sink was opened for
func (s *Sink) Name() string { return s.name }

// Kind returns the destination type
func (s *Sink) Kind() Kind { return s.kind }

// Header reports whether the sink carries YUV4MPEG2 framing
func (s *Sink) Header() bool { return s.header }

// Written returns the bytes accepted by the sink so far, framing included
func (s *Sink) Written() int64 { return s.written }

// Write buffers p for the destination.
func (s *Sink) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	s.written += int64(n)
	return n, err
}

// Flush pushes buffered bytes to the destination.
func (s *Sink) Flush() error {
	return s.w.Flush()
}

func (s *Sink) close() error {
	flushErr := s.w.Flush()
	closeErr := s.closer.Close()
	if flushErr != nil {
		return fmt.Errorf("flush %s: %w", s.name, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", s.name, closeErr)
	}
	return nil
}
