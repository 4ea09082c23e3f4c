// Package engine defines the contract between the converter and the script
// evaluation engine that produces frames.
package engine

import (
	"context"
	"fmt"
)

// Engine is a loaded script-evaluation engine
type Engine interface {
	// Import evaluates a script file and returns the clip it yields.
	Import(ctx context.Context, path string) (Clip, error)

	// Capabilities reports which optional entry points the engine exposes.
	Capabilities() Capabilities

	// Close releases the script environment and unloads the engine.
	Close() error
}

// Clip is an engine-owned handle to an evaluated video
type Clip interface {
	Format() ClipFormat

	// Convert asks the engine for a new clip in another chroma layout.
	// The receiver stays valid; the caller releases both.
	Convert(req ConvertRequest) (Clip, error)

	// Weave merges separated fields into whole frames.
	Weave() (Clip, error)

	// Frame acquires frame n. The caller must Release it exactly once.
	Frame(n int) (Frame, error)

	Release()
}

// Frame is a borrowed frame buffer
type Frame interface {
	// Plane returns the plane's bytes starting at its first row, and the
	// stride between rows. data is only valid until Release.
	Plane(id PlaneID) (data []byte, pitch int)

	Release()
}

// ThreadingProbe is implemented by engines that may need a distributor filter
// appended to multi-threaded scripts.
type ThreadingProbe interface {
	NeedsDistributor(c Clip) bool
	Distribute(c Clip) (Clip, error)
}

// Capabilities lists optional entry points resolved at load time
type Capabilities struct {
	HighBitDepth      bool // engine can report per-component depth above 8
	DeleteEnvironment bool
	ErrorQuery        bool
}

// ConvertRequest describes a chroma layout conversion
type ConvertRequest struct {
	Chroma     Chroma
	Depth      int
	Interlaced bool
}

// Name returns the engine function used to satisfy the request.
func (r ConvertRequest) Name() string {
	return ConversionFunc(r.Chroma, r.Depth)
}

// ConversionFunc returns the engine filter name converting to chroma at depth.
// Legacy 8-bit names are used for 8-bit output since older engines only know those.
func ConversionFunc(c Chroma, depth int) string {
	if depth <= 8 {
		switch c {
		case Chroma420:
			return "ConvertToYV12"
		case Chroma422:
			return "ConvertToYV16"
		case Chroma444:
			return "ConvertToYV24"
		case ChromaMono:
			return "ConvertToY8"
		}
	}
	switch c {
	case Chroma420:
		return "ConvertToYUV420"
	case Chroma422:
		return "ConvertToYUV422"
	case Chroma444:
		return "ConvertToYUV444"
	case ChromaMono:
		return "ConvertToY"
	}
	return fmt.Sprintf("ConvertTo(%s)", c)
}

// PlaneID names a plane within a frame
type PlaneID int

const (
	PlaneY PlaneID = iota
	PlaneU
	PlaneV
)

func (p PlaneID) String() string {
	switch p {
	case PlaneY:
		return "Y"
	case PlaneU:
		return "U"
	case PlaneV:
		return "V"
	}
	return fmt.Sprintf("plane(%d)", int(p))
}
