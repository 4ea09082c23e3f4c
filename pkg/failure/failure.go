// Package failure classifies the ways a conversion run can fail and maps them
// to process exit codes.
package failure

import (
	"errors"
	"fmt"
)

// Kind identifies an error class.
type Kind int

const (
	KindUnknown Kind = iota
	KindUsage
	KindEngineLoad
	KindScript
	KindFormat
	KindSink
	KindFrameRead
	KindShortWrite
)

var kindNames = map[Kind]string{
	KindUnknown:    "unknown",
	KindUsage:      "usage",
	KindEngineLoad: "engine_load",
	KindScript:     "script",
	KindFormat:     "format",
	KindSink:       "sink",
	KindFrameRead:  "frame_read",
	KindShortWrite: "short_write",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// NoFrame marks an Error that is not tied to a frame index.
const NoFrame = -1

// Error is a classified failure.
type Error struct {
	Kind Kind
	Msg  string

	// Frame is the frame index being processed, or NoFrame.
	Frame int

	// Written and Expected are only meaningful for KindShortWrite.
	Written  int64
	Expected int64

	Err error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Frame != NoFrame {
		msg = fmt.Sprintf("%s (frame %d)", msg, e.Frame)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind, so errors.Is(err, failure.Format) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	Usage      = &Error{Kind: KindUsage, Frame: NoFrame}
	EngineLoad = &Error{Kind: KindEngineLoad, Frame: NoFrame}
	Script     = &Error{Kind: KindScript, Frame: NoFrame}
	Format     = &Error{Kind: KindFormat, Frame: NoFrame}
	Sink       = &Error{Kind: KindSink, Frame: NoFrame}
	FrameRead  = &Error{Kind: KindFrameRead, Frame: NoFrame}
	ShortWrite = &Error{Kind: KindShortWrite, Frame: NoFrame}
)

// New returns a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Frame: NoFrame}
}

// Wrap classifies err under kind with a message prefix.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Frame: NoFrame, Err: err}
}

// AtFrame returns a FrameRead error for frame n.
func AtFrame(n int, err error) *Error {
	return &Error{Kind: KindFrameRead, Msg: "error reading frame", Frame: n, Err: err}
}

// Short reports a byte-accounting mismatch.
func Short(written, expected int64, err error) *Error {
	return &Error{
		Kind:     KindShortWrite,
		Msg:      fmt.Sprintf("wrote only %d of %d bytes", written, expected),
		Frame:    NoFrame,
		Written:  written,
		Expected: expected,
		Err:      err,
	}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// ExitCode maps err to the process exit status: 0 success, 2 usage, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if KindOf(err) == KindUsage {
		return 2
	}
	return 1
}
