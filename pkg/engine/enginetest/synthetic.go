// Package enginetest provides an in-memory engine that produces deterministic
// frames for tests.
package enginetest

import (
	"context"
	"errors"
	"fmt"

	"github.com/video-system/go-avs2yuv/pkg/engine"
)

// PaddingByte fills the bytes between row width and pitch.
const PaddingByte = 0xEE

// Engine is a synthetic engine. Configure the exported fields before Import.
type Engine struct {
	Format    engine.ClipFormat
	ImportErr error

	// Padding is the number of extra bytes in every row's pitch.
	Padding int

	// FailAt makes Frame(n) return the mapped error.
	FailAt map[int]error

	ConvertErr error
	WeaveErr   error
	MT         bool
	Caps       engine.Capabilities

	Imported    []string
	Conversions []engine.ConvertRequest
	Weaves      int
	Distributed int

	acquired       int
	released       int
	doubleReleases int
	useAfterFree   int
	clipsOpen      int
	closed         bool
}

var _ engine.Engine = (*Engine)(nil)
var _ engine.ThreadingProbe = (*Engine)(nil)

// New returns an engine that yields a clip in format f.
func New(f engine.ClipFormat) *Engine {
	return &Engine{Format: f}
}

func (e *Engine) Import(_ context.Context, path string) (engine.Clip, error) {
	e.Imported = append(e.Imported, path)
	if e.ImportErr != nil {
		return nil, e.ImportErr
	}
	return e.newClip(e.Format), nil
}

func (e *Engine) Capabilities() engine.Capabilities { return e.Caps }

func (e *Engine) Close() error {
	if e.closed {
		return errors.New("engine closed twice")
	}
	e.closed = true
	return nil
}

func (e *Engine) NeedsDistributor(engine.Clip) bool { return e.MT }

func (e *Engine) Distribute(c engine.Clip) (engine.Clip, error) {
	e.Distributed++
	return e.newClip(c.Format()), nil
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool { return e.closed }

// Outstanding is the number of frames acquired and not yet released.
func (e *Engine) Outstanding() int { return e.acquired - e.released }

// Acquired is the number of successful Frame calls.
func (e *Engine) Acquired() int { return e.acquired }

// Violations counts double releases and reads after release.
func (e *Engine) Violations() int { return e.doubleReleases + e.useAfterFree }

// OpenClips is the number of clips not yet released.
func (e *Engine) OpenClips() int { return e.clipsOpen }

func (e *Engine) newClip(f engine.ClipFormat) *clip {
	e.clipsOpen++
	return &clip{eng: e, format: f}
}

type clip struct {
	eng      *Engine
	format   engine.ClipFormat
	released bool
}

func (c *clip) Format() engine.ClipFormat { return c.format }

func (c *clip) Convert(req engine.ConvertRequest) (engine.Clip, error) {
	c.eng.Conversions = append(c.eng.Conversions, req)
	if c.eng.ConvertErr != nil {
		return nil, c.eng.ConvertErr
	}
	f := c.format
	switch req.Chroma {
	case engine.Chroma420:
		f.Family = engine.FamilyYUV420
	case engine.Chroma422:
		f.Family = engine.FamilyYUV422
	case engine.Chroma444:
		f.Family = engine.FamilyYUV444
	case engine.ChromaMono:
		f.Family = engine.FamilyGray
	}
	if req.Depth > 0 {
		f.BitDepth = req.Depth
	}
	return c.eng.newClip(f), nil
}

func (c *clip) Weave() (engine.Clip, error) {
	c.eng.Weaves++
	if c.eng.WeaveErr != nil {
		return nil, c.eng.WeaveErr
	}
	f := c.format
	f.FieldBased = false
	f.Height *= 2
	f.NumFrames /= 2
	return c.eng.newClip(f), nil
}

func (c *clip) Frame(n int) (engine.Frame, error) {
	if err, ok := c.eng.FailAt[n]; ok {
		return nil, err
	}
	if n < 0 || n >= c.format.NumFrames {
		return nil, fmt.Errorf("frame %d out of range [0,%d)", n, c.format.NumFrames)
	}
	c.eng.acquired++
	fr := &frame{eng: c.eng, index: n}
	for _, id := range []engine.PlaneID{engine.PlaneY, engine.PlaneU, engine.PlaneV} {
		rowBytes, rows, ok := PlaneGeometry(c.format, id)
		if !ok {
			continue
		}
		pitch := rowBytes + c.eng.Padding
		buf := make([]byte, pitch*rows)
		for y := 0; y < rows; y++ {
			copy(buf[y*pitch:], Row(n, id, y, rowBytes))
			for x := rowBytes; x < pitch; x++ {
				buf[y*pitch+x] = PaddingByte
			}
		}
		fr.planes[id] = buf
		fr.pitch[id] = pitch
	}
	return fr, nil
}

func (c *clip) Release() {
	if c.released {
		c.eng.doubleReleases++
		return
	}
	c.released = true
	c.eng.clipsOpen--
}

type frame struct {
	eng      *Engine
	index    int
	planes   [3][]byte
	pitch    [3]int
	released bool
}

func (f *frame) Plane(id engine.PlaneID) ([]byte, int) {
	if f.released {
		f.eng.useAfterFree++
		return nil, 0
	}
	return f.planes[id], f.pitch[id]
}

func (f *frame) Release() {
	if f.released {
		f.eng.doubleReleases++
		return
	}
	f.released = true
	f.eng.released++
}

// PlaneGeometry returns the row width in bytes and the row count of plane id
// for clips in format f. ok is false when the format has no such plane.
func PlaneGeometry(f engine.ClipFormat, id engine.PlaneID) (rowBytes, rows int, ok bool) {
	sample := 1
	if f.Depth() > 8 {
		sample = 2
	}
	var hs, vs int
	switch f.Family {
	case engine.FamilyYUV420:
		hs, vs = 1, 1
	case engine.FamilyYUV422:
		hs = 1
	case engine.FamilyYUV444:
	case engine.FamilyGray:
		if id != engine.PlaneY {
			return 0, 0, false
		}
	default:
		// packed formats expose a single interleaved plane
		if id != engine.PlaneY {
			return 0, 0, false
		}
		bpp := 3
		if f.Family == engine.FamilyYUY2 {
			bpp = 2
		}
		return f.Width * bpp * sample, f.Height, true
	}
	if id == engine.PlaneY {
		return f.Width * sample, f.Height, true
	}
	return (f.Width >> hs) * sample, f.Height >> vs, true
}

// Row returns the deterministic content of a row.
func Row(frame int, id engine.PlaneID, y, rowBytes int) []byte {
	row := make([]byte, rowBytes)
	for x := range row {
		row[x] = byte(frame*7 + int(id)*50 + y*3 + x)
		if row[x] == PaddingByte {
			row[x] = 0
		}
	}
	return row
}

// FramePayload returns the bytes a correct serializer emits for frame n,
// plane after plane, without padding.
func FramePayload(f engine.ClipFormat, n int) []byte {
	var out []byte
	for _, id := range []engine.PlaneID{engine.PlaneY, engine.PlaneU, engine.PlaneV} {
		rowBytes, rows, ok := PlaneGeometry(f, id)
		if !ok {
			continue
		}
		for y := 0; y < rows; y++ {
			out = append(out, Row(n, id, y, rowBytes)...)
		}
	}
	return out
}
