// Package serialize writes frame planes row by row to a set of writers.
package serialize

import (
	"fmt"
	"io"

	"github.com/video-system/go-avs2yuv/pkg/colorspace"
	"github.com/video-system/go-avs2yuv/pkg/engine"
	"github.com/video-system/go-avs2yuv/pkg/failure"
)

// Expected is the number of bytes WriteFrame must write for a frame in
// layout across n writers.
func Expected(layout colorspace.Layout, n int) int64 {
	return int64(n) * layout.FrameBytes()
}

// WriteFrame writes every plane of f, Y then U then V, to each writer. Each
// row goes to all writers before the next row is read, and only the row's
// payload is written: bytes between the row width and the pitch are skipped.
// It returns the bytes written across all writers.
func WriteFrame(f engine.Frame, layout colorspace.Layout, writers []io.Writer) (int64, error) {
	expected := Expected(layout, len(writers))
	var wrote int64
	for _, p := range layout.Planes {
		data, pitch := f.Plane(p.ID)
		rowBytes := layout.RowBytes(p)
		if err := checkPlane(p, data, pitch, rowBytes); err != nil {
			return wrote, err
		}
		for y := 0; y < p.Height; y++ {
			row := data[y*pitch : y*pitch+rowBytes]
			for _, w := range writers {
				n, err := w.Write(row)
				wrote += int64(n)
				if err == nil && n != len(row) {
					err = io.ErrShortWrite
				}
				if err != nil {
					return wrote, failure.Short(wrote, expected, err)
				}
			}
		}
	}
	if wrote != expected {
		return wrote, failure.Short(wrote, expected, nil)
	}
	return wrote, nil
}

func checkPlane(p colorspace.Plane, data []byte, pitch, rowBytes int) error {
	if p.Height == 0 || rowBytes == 0 {
		return nil
	}
	if pitch < rowBytes {
		return failure.New(failure.KindFrameRead, "plane %s pitch %d is smaller than row width %d", p.ID, pitch, rowBytes)
	}
	if need := (p.Height-1)*pitch + rowBytes; len(data) < need {
		return failure.Wrap(failure.KindFrameRead, fmt.Errorf("have %d bytes, need %d", len(data), need),
			"plane %s is truncated", p.ID)
	}
	return nil
}
