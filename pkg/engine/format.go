package engine

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Family is the native pixel family of a clip
type Family int

const (
	FamilyOther Family = iota
	FamilyYUV420
	FamilyYUV422
	FamilyYUY2 // packed 4:2:2
	FamilyYUV444
	FamilyGray
	FamilyRGB
)

var familyNames = [...]string{"other", "yuv420", "yuv422", "yuy2", "yuv444", "gray", "rgb"}

func (f Family) String() string {
	if int(f) >= 0 && int(f) < len(familyNames) {
		return familyNames[f]
	}
	return fmt.Sprintf("family(%d)", int(f))
}

// Chroma is a planar chroma layout
type Chroma int

const (
	ChromaAuto Chroma = iota
	ChromaMono
	Chroma420
	Chroma422
	Chroma444
)

func (c Chroma) String() string {
	switch c {
	case ChromaAuto:
		return "auto"
	case ChromaMono:
		return "mono"
	case Chroma420:
		return "420"
	case Chroma422:
		return "422"
	case Chroma444:
		return "444"
	}
	return fmt.Sprintf("chroma(%d)", int(c))
}

// ParseChroma accepts the names used on the command line.
func ParseChroma(s string) (Chroma, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "":
		return ChromaAuto, nil
	case "i400", "y8", "mono", "gray", "grey":
		return ChromaMono, nil
	case "i420", "yv12", "420":
		return Chroma420, nil
	case "i422", "yv16", "422":
		return Chroma422, nil
	case "i444", "yv24", "444":
		return Chroma444, nil
	}
	return ChromaAuto, fmt.Errorf("unknown colorspace %q", s)
}

// Planar reports the planar chroma layout matching the family, if any.
// Packed YUY2 is not planar even though it is 4:2:2.
func (f Family) Planar() (Chroma, bool) {
	switch f {
	case FamilyYUV420:
		return Chroma420, true
	case FamilyYUV422:
		return Chroma422, true
	case FamilyYUV444:
		return Chroma444, true
	case FamilyGray:
		return ChromaMono, true
	}
	return ChromaAuto, false
}

// FieldOrder describes interlacing of whole frames
type FieldOrder int

const (
	Progressive FieldOrder = iota
	TopFieldFirst
	BottomFieldFirst
)

// Tag returns the YUV4MPEG2 interlace letter.
func (o FieldOrder) Tag() string {
	switch o {
	case TopFieldFirst:
		return "t"
	case BottomFieldFirst:
		return "b"
	}
	return "p"
}

func (o FieldOrder) String() string {
	switch o {
	case TopFieldFirst:
		return "tff"
	case BottomFieldFirst:
		return "bff"
	}
	return "progressive"
}

// Rational is a num/den pair such as a frame rate or sample aspect ratio.
// The zero value means unknown.
type Rational struct {
	Num int64
	Den int64
}

func (r Rational) IsZero() bool {
	return r.Num == 0 && r.Den == 0
}

func (r Rational) String() string {
	return fmt.Sprintf("%d:%d", r.Num, r.Den)
}

// ParseRational parses "30", "29.97", "30000/1001" or "30000:1001".
// Decimal values are reduced to lowest terms.
func ParseRational(s string) (Rational, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Rational{}, fmt.Errorf("empty rational")
	}
	if i := strings.IndexAny(s, ":/"); i >= 0 {
		num, err := strconv.ParseInt(s[:i], 10, 64)
		if err != nil {
			return Rational{}, fmt.Errorf("parse rational %q: %w", s, err)
		}
		den, err := strconv.ParseInt(s[i+1:], 10, 64)
		if err != nil {
			return Rational{}, fmt.Errorf("parse rational %q: %w", s, err)
		}
		if num < 0 || den < 0 {
			return Rational{}, fmt.Errorf("parse rational %q: negative value", s)
		}
		return Rational{Num: num, Den: den}, nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Rational{}, fmt.Errorf("parse rational %q: not a number", s)
	}
	if r.Sign() <= 0 {
		return Rational{}, fmt.Errorf("parse rational %q: must be positive", s)
	}
	if !r.Num().IsInt64() || !r.Denom().IsInt64() {
		return Rational{}, fmt.Errorf("parse rational %q: out of range", s)
	}
	return Rational{Num: r.Num().Int64(), Den: r.Denom().Int64()}, nil
}

// ClipFormat is the video description reported by the engine
type ClipFormat struct {
	Width     int
	Height    int
	NumFrames int
	FPS       Rational
	BitDepth  int
	Family    Family

	// FieldBased is set when frames are separated fields rather than whole frames.
	FieldBased bool
	FieldOrder FieldOrder
	SAR        Rational
}

// HasVideo reports whether the clip carries a picture at all.
func (f ClipFormat) HasVideo() bool {
	return f.Width > 0 && f.Height > 0
}

func (f ClipFormat) Is420() bool { return f.Family == FamilyYUV420 }

// Is422 matches both planar and packed 4:2:2.
func (f ClipFormat) Is422() bool { return f.Family == FamilyYUV422 || f.Family == FamilyYUY2 }

func (f ClipFormat) Is444() bool  { return f.Family == FamilyYUV444 }
func (f ClipFormat) IsGray() bool { return f.Family == FamilyGray }

// Depth returns BitDepth, treating an unreported depth as 8.
func (f ClipFormat) Depth() int {
	if f.BitDepth <= 0 {
		return 8
	}
	return f.BitDepth
}

func (f ClipFormat) String() string {
	fps := fmt.Sprintf("%d/%d fps", f.FPS.Num, f.FPS.Den)
	if f.FPS.Den == 1 {
		fps = fmt.Sprintf("%d fps", f.FPS.Num)
	}
	return fmt.Sprintf("%dx%d, %s, %d frames, %s %d-bit", f.Width, f.Height, fps, f.NumFrames, f.Family, f.Depth())
}
