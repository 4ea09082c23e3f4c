// Package y4m writes and reads YUV4MPEG2 stream headers.
package y4m

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/video-system/go-avs2yuv/pkg/colorspace"
	"github.com/video-system/go-avs2yuv/pkg/engine"
)

const (
	// Magic opens every stream header.
	Magic = "YUV4MPEG2"

	// FrameMarker precedes every frame's payload.
	FrameMarker = "FRAME\n"
)

// Header is a YUV4MPEG2 stream header
type Header struct {
	Width      int
	Height     int
	FPS        engine.Rational
	FieldOrder engine.FieldOrder
	SAR        engine.Rational
	Chroma     engine.Chroma
	Depth      int
}

// ColorspaceTag returns the C parameter for chroma at depth. 8-bit 4:2:0 uses
// MPEG-2 chroma siting.
func ColorspaceTag(c engine.Chroma, depth int) (string, error) {
	if depth > colorspace.MaxDepth {
		return "", fmt.Errorf("no colorspace tag for %d-bit samples", depth)
	}
	var base string
	switch c {
	case engine.Chroma420:
		base = "420"
	case engine.Chroma422:
		base = "422"
	case engine.Chroma444:
		base = "444"
	case engine.ChromaMono:
		if depth > 8 {
			return "mono" + strconv.Itoa(depth), nil
		}
		return "mono", nil
	default:
		return "", fmt.Errorf("no colorspace tag for %s", c)
	}
	if depth > 8 {
		return base + "p" + strconv.Itoa(depth), nil
	}
	if c == engine.Chroma420 {
		return "420mpeg2", nil
	}
	return base, nil
}

// ParseColorspaceTag is the inverse of ColorspaceTag. It also accepts the
// other 8-bit 4:2:0 sitings.
func ParseColorspaceTag(tag string) (engine.Chroma, int, error) {
	switch tag {
	case "420", "420jpeg", "420mpeg2", "420paldv":
		return engine.Chroma420, 8, nil
	case "422":
		return engine.Chroma422, 8, nil
	case "444":
		return engine.Chroma444, 8, nil
	case "mono":
		return engine.ChromaMono, 8, nil
	}
	var chroma engine.Chroma
	var rest string
	switch {
	case strings.HasPrefix(tag, "mono"):
		chroma, rest = engine.ChromaMono, tag[len("mono"):]
	case strings.HasPrefix(tag, "420p"):
		chroma, rest = engine.Chroma420, tag[len("420p"):]
	case strings.HasPrefix(tag, "422p"):
		chroma, rest = engine.Chroma422, tag[len("422p"):]
	case strings.HasPrefix(tag, "444p"):
		chroma, rest = engine.Chroma444, tag[len("444p"):]
	default:
		return engine.ChromaAuto, 0, fmt.Errorf("unknown colorspace tag %q", tag)
	}
	depth, err := strconv.Atoi(rest)
	if err != nil || depth <= 8 || depth > 16 {
		return engine.ChromaAuto, 0, fmt.Errorf("unknown colorspace tag %q", tag)
	}
	return chroma, depth, nil
}

// String renders the header line including the trailing newline.
func (h Header) String() string {
	tag, err := ColorspaceTag(h.Chroma, h.Depth)
	if err != nil {
		tag = "420mpeg2"
	}
	return fmt.Sprintf("%s W%d H%d F%d:%d I%s A%d:%d C%s\n",
		Magic, h.Width, h.Height, h.FPS.Num, h.FPS.Den, h.FieldOrder.Tag(), h.SAR.Num, h.SAR.Den, tag)
}

// Validate checks that the header can be rendered unambiguously.
func (h Header) Validate() error {
	if h.Width <= 0 || h.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", h.Width, h.Height)
	}
	if _, err := ColorspaceTag(h.Chroma, h.Depth); err != nil {
		return err
	}
	return nil
}

// WriteTo writes the header line to w.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, h.String())
	return int64(n), err
}

// Layout returns the plane geometry the header announces.
func (h Header) Layout() colorspace.Layout {
	return colorspace.NewLayout(h.Chroma, h.Width, h.Height, colorspace.SampleBytes(h.Depth))
}

// ParseHeader parses a header line, with or without its newline. Parameters
// not written by this package are ignored.
func ParseHeader(line string) (Header, error) {
	line = strings.TrimSuffix(line, "\n")
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != Magic {
		return Header{}, fmt.Errorf("missing %s magic", Magic)
	}
	h := Header{Chroma: engine.Chroma420, Depth: 8}
	for _, f := range fields[1:] {
		key, val := f[0], f[1:]
		var err error
		switch key {
		case 'W':
			h.Width, err = strconv.Atoi(val)
		case 'H':
			h.Height, err = strconv.Atoi(val)
		case 'F':
			h.FPS, err = parsePair(val)
		case 'A':
			h.SAR, err = parsePair(val)
		case 'I':
			switch val {
			case "p":
				h.FieldOrder = engine.Progressive
			case "t":
				h.FieldOrder = engine.TopFieldFirst
			case "b":
				h.FieldOrder = engine.BottomFieldFirst
			default:
				err = fmt.Errorf("unsupported interlace mode %q", val)
			}
		case 'C':
			h.Chroma, h.Depth, err = ParseColorspaceTag(val)
		}
		if err != nil {
			return Header{}, fmt.Errorf("parse %q: %w", f, err)
		}
	}
	if err := h.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// ReadHeader reads and parses the header line from r.
func ReadHeader(r *bufio.Reader) (Header, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	return ParseHeader(line)
}

func parsePair(s string) (engine.Rational, error) {
	num, den, ok := strings.Cut(s, ":")
	if !ok {
		return engine.Rational{}, fmt.Errorf("expected n:d")
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return engine.Rational{}, err
	}
	d, err := strconv.ParseInt(den, 10, 64)
	if err != nil {
		return engine.Rational{}, err
	}
	return engine.Rational{Num: n, Den: d}, nil
}
