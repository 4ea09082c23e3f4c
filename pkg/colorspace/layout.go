// Package colorspace decides which pixel format the engine must deliver and
// derives the byte geometry of every plane.
package colorspace

import (
	"github.com/video-system/go-avs2yuv/pkg/engine"
)

// Plane is the geometry of one plane in samples.
type Plane struct {
	ID     engine.PlaneID
	Width  int
	Height int
}

// Layout is the plane geometry of every frame in a run.
type Layout struct {
	Chroma      engine.Chroma
	Width       int
	Height      int
	HShift      int
	VShift      int
	SampleBytes int
	Planes      []Plane
}

// Shifts returns the horizontal and vertical chroma subsampling shifts.
func Shifts(c engine.Chroma) (h, v int) {
	switch c {
	case engine.Chroma420:
		return 1, 1
	case engine.Chroma422:
		return 1, 0
	}
	return 0, 0
}

// SampleBytes returns the bytes per sample at depth.
func SampleBytes(depth int) int {
	if depth > 8 {
		return 2
	}
	return 1
}

// NewLayout builds the plane list for a width x height frame. Monochrome
// frames carry only the luma plane.
func NewLayout(c engine.Chroma, width, height, sampleBytes int) Layout {
	h, v := Shifts(c)
	l := Layout{
		Chroma:      c,
		Width:       width,
		Height:      height,
		HShift:      h,
		VShift:      v,
		SampleBytes: sampleBytes,
		Planes:      []Plane{{ID: engine.PlaneY, Width: width, Height: height}},
	}
	if c == engine.ChromaMono {
		return l
	}
	for _, id := range []engine.PlaneID{engine.PlaneU, engine.PlaneV} {
		l.Planes = append(l.Planes, Plane{ID: id, Width: width >> h, Height: height >> v})
	}
	return l
}

// RowBytes is the number of payload bytes in one row of p.
func (l Layout) RowBytes(p Plane) int {
	return p.Width * l.SampleBytes
}

// PlaneBytes is the payload size of p.
func (l Layout) PlaneBytes(p Plane) int64 {
	return int64(l.RowBytes(p)) * int64(p.Height)
}

// FrameBytes is the payload size of one frame for one sink.
func (l Layout) FrameBytes() int64 {
	var n int64
	for _, p := range l.Planes {
		n += l.PlaneBytes(p)
	}
	return n
}
