package convert

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/video-system/go-avs2yuv/pkg/colorspace"
	"github.com/video-system/go-avs2yuv/pkg/engine"
	"github.com/video-system/go-avs2yuv/pkg/failure"
)

// MaxOutputs bounds the number of sinks of one run, transcode included.
const MaxOutputs = 10

// Options are the per-run settings taken from the command line
type Options struct {
	Script    string
	Outputs   []string // file paths, "-" for stdout
	Transcode string   // transcode destination, empty for none

	Verbose bool
	Raw     bool
	Slave   bool
	NoMT    bool

	Seek   int
	Frames int

	Target colorspace.Target
	FPS    engine.Rational // zero keeps the clip rate
	SAR    engine.Rational // zero writes 0:0

	// Control feeds slave requests. Nil means no requests.
	Control io.Reader
}

// Validate checks option combinations that don't depend on the clip.
func (o *Options) Validate() error {
	if o.Script == "" {
		return failure.New(failure.KindUsage, "no input script")
	}
	n := len(o.Outputs)
	if o.Transcode != "" {
		n++
	}
	if n > MaxOutputs {
		return failure.New(failure.KindUsage, "too many outputs (%d, at most %d)", n, MaxOutputs)
	}
	if n == 0 && !o.Verbose {
		return failure.New(failure.KindUsage, "no outputs given")
	}
	if o.Seek < 0 {
		return failure.New(failure.KindUsage, "seek must not be negative, got %d", o.Seek)
	}
	if d := o.Target.Depth; d != 0 && (d < 8 || d > 16) {
		return failure.New(failure.KindUsage, "depth must be between 8 and 16, got %d", d)
	}
	if !o.FPS.IsZero() && (o.FPS.Num <= 0 || o.FPS.Den <= 0) {
		return failure.New(failure.KindUsage, "invalid frame rate %s", o.FPS)
	}
	if !o.SAR.IsZero() && (o.SAR.Num <= 0 || o.SAR.Den <= 0) {
		return failure.New(failure.KindUsage, "invalid pixel aspect ratio %s", o.SAR)
	}
	return nil
}

// HasScriptExtension reports whether the script name ends in .avs.
func (o *Options) HasScriptExtension() bool {
	return strings.EqualFold(filepath.Ext(o.Script), ".avs")
}
