package colorspace

import (
	"github.com/rs/zerolog"

	"github.com/video-system/go-avs2yuv/pkg/engine"
	"github.com/video-system/go-avs2yuv/pkg/failure"
)

// Target is the requested output format. Chroma may be ChromaAuto and Depth
// 0 keeps the clip's own depth.
type Target struct {
	Chroma engine.Chroma
	Depth  int
}

// Result is the outcome of a negotiation.
type Result struct {
	// Clip delivers frames in Layout. It differs from the input clip when a
	// conversion was made; the caller owns both.
	Clip   engine.Clip
	Layout Layout

	// Depth is the bit depth announced downstream.
	Depth int

	// HeaderWidth is the width announced downstream. It is half the payload
	// width in stacked mode.
	HeaderWidth int

	// Stacked is set when high-depth samples arrive as pairs of 8-bit bytes
	// laid out side by side in a double-width clip.
	Stacked bool

	// Conversion names the engine filter that was invoked, or is empty.
	Conversion string
}

// Converted reports whether the engine was asked for a conversion.
func (r *Result) Converted() bool {
	return r.Conversion != ""
}

// MaxDepth is the deepest sample a YUV4MPEG2 stream can carry.
const MaxDepth = 16

// Negotiator resolves output formats against clips
type Negotiator struct {
	logger zerolog.Logger
	caps   engine.Capabilities
}

// NewNegotiator creates a negotiator for clips of an engine with caps. It
// reports conversions to logger.
func NewNegotiator(logger zerolog.Logger, caps engine.Capabilities) *Negotiator {
	return &Negotiator{logger: logger, caps: caps}
}

// Detect picks the planar layout closest to the clip's native family,
// probing 4:2:0, 4:2:2 (planar or packed), 4:4:4 and monochrome in that order.
// Anything else, RGB included, resolves to 4:2:0.
func Detect(f engine.ClipFormat) engine.Chroma {
	switch {
	case f.Is420():
		return engine.Chroma420
	case f.Is422():
		return engine.Chroma422
	case f.Is444():
		return engine.Chroma444
	case f.IsGray():
		return engine.ChromaMono
	}
	return engine.Chroma420
}

// CheckGeometry validates that a width x height clip can be converted to c.
func CheckGeometry(c engine.Chroma, width, height int, interlaced bool) error {
	if c == engine.ChromaMono {
		return nil
	}
	if (c == engine.Chroma420 || c == engine.Chroma422) && width%2 != 0 {
		return failure.New(failure.KindFormat, "input clip width not divisible by 2 (%dx%d)", width, height)
	}
	if c == engine.Chroma420 && interlaced && height%4 != 0 {
		return failure.New(failure.KindFormat, "input clip height not divisible by 4 (%dx%d)", width, height)
	}
	if (c == engine.Chroma420 || interlaced) && height%2 != 0 {
		return failure.New(failure.KindFormat, "input clip height not divisible by 2 (%dx%d)", width, height)
	}
	return nil
}

// Negotiate resolves target against clip. interlaced tells the engine to
// convert fields separately.
func (n *Negotiator) Negotiate(clip engine.Clip, target Target, interlaced bool) (*Result, error) {
	f := clip.Format()
	if !f.HasVideo() {
		return nil, failure.New(failure.KindFormat, "clip has no video (%dx%d)", f.Width, f.Height)
	}
	if target.Depth != 0 && (target.Depth < 8 || target.Depth > MaxDepth) {
		return nil, failure.New(failure.KindFormat, "unsupported bit depth %d", target.Depth)
	}
	nativeDepth := f.Depth()
	if nativeDepth > MaxDepth {
		return nil, failure.New(failure.KindFormat, "unsupported input bit depth %d (%s)", nativeDepth, f.Family)
	}

	chroma := target.Chroma
	if chroma == engine.ChromaAuto {
		chroma = Detect(f)
		n.logger.Debug().Str("family", f.Family.String()).Str("chroma", chroma.String()).Msg("detected output colorspace")
	}
	native, planar := f.Family.Planar()
	needConvert := !planar || native != chroma

	switch {
	case target.Depth == 0 || target.Depth == nativeDepth:
		// keep
	case nativeDepth == 8 && target.Depth > 8 && !n.caps.HighBitDepth:
		return n.stacked(clip, f, chroma, target.Depth, needConvert)
	default:
		return nil, failure.New(failure.KindFormat, "cannot change bit depth from %d to %d", nativeDepth, target.Depth)
	}

	res := &Result{Clip: clip, Depth: nativeDepth}
	if needConvert {
		if err := CheckGeometry(chroma, f.Width, f.Height, interlaced); err != nil {
			return nil, err
		}
		req := engine.ConvertRequest{Chroma: chroma, Depth: nativeDepth, Interlaced: interlaced}
		name := req.Name()
		n.logger.Info().Str("from", f.Family.String()).Str("conversion", name).Bool("interlaced", interlaced).
			Msg("converting input clip")

		converted, err := clip.Convert(req)
		if err != nil {
			return nil, failure.Wrap(failure.KindFormat, err, "couldn't convert input clip to %s", name)
		}
		cf := converted.Format()
		if got, ok := cf.Family.Planar(); !ok || got != chroma {
			converted.Release()
			return nil, failure.New(failure.KindFormat, "%s returned a %s clip", name, cf.Family)
		}
		f = cf
		res.Clip = converted
		res.Conversion = name
		res.Depth = cf.Depth()
	}

	res.HeaderWidth = f.Width
	res.Layout = NewLayout(chroma, f.Width, f.Height, SampleBytes(res.Depth))
	return res, nil
}

// stacked handles high-depth output from an 8-bit clip whose rows hold each
// sample as two adjacent bytes. The payload is passed through untouched; only
// the announced width and depth change.
func (n *Negotiator) stacked(clip engine.Clip, f engine.ClipFormat, chroma engine.Chroma, depth int, needConvert bool) (*Result, error) {
	if needConvert {
		return nil, failure.New(failure.KindFormat,
			"%d-bit output from an 8-bit %s clip needs a conversion to %s, which is not possible for double-width input",
			depth, f.Family, chroma)
	}
	if f.Width%4 != 0 {
		return nil, failure.New(failure.KindFormat, "input clip width not divisible by 4 (%dx%d)", f.Width, f.Height)
	}
	n.logger.Info().Int("depth", depth).Int("width", f.Width/2).Msg("treating double-width 8-bit clip as high bit depth")
	return &Result{
		Clip:        clip,
		Layout:      NewLayout(chroma, f.Width, f.Height, 1),
		Depth:       depth,
		HeaderWidth: f.Width / 2,
		Stacked:     true,
	}, nil
}
