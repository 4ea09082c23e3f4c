// Package avisynth loads the AviSynth C API at runtime and exposes it as an
// engine.Engine. The cgo binding is built with the avisynth tag; without it
// Open always fails with an engine load error.
package avisynth

import (
	"runtime"

	"github.com/video-system/go-avs2yuv/pkg/engine"
)

// Colorspace bits of AVS_VideoInfo.pixel_type
const (
	csYUVA        uint32 = 1 << 27
	csBGR         uint32 = 1 << 28
	csYUV         uint32 = 1 << 29
	csInterleaved uint32 = 1 << 30
	csPlanar      uint32 = 1 << 31

	csShiftSubWidth   = 0
	csShiftSubHeight  = 8
	csShiftSampleBits = 16

	csSubMask        uint32 = 7
	csSampleBitsMask uint32 = 7 << csShiftSampleBits

	csYUY2 = 1<<2 | csYUV | csInterleaved
)

// Image type bits of AVS_VideoInfo.image_type
const (
	itBFF        = 1 << 0
	itTFF        = 1 << 1
	itFieldBased = 1 << 2
)

// Plane selectors for avs_get_*_p
const (
	planarY = 1 << 0
	planarU = 1 << 1
	planarV = 1 << 2
)

// DefaultLibrary returns the platform name of the AviSynth shared library.
func DefaultLibrary() string {
	switch runtime.GOOS {
	case "windows":
		return "avisynth"
	case "darwin":
		return "libavisynth.dylib"
	default:
		return "libavisynth.so"
	}
}

// subShift decodes a sub-sampling field: 3 is full resolution, 0 is half,
// 1 is quarter.
func subShift(v uint32) (int, bool) {
	switch v {
	case 3:
		return 0, true
	case 0:
		return 1, true
	case 1:
		return 2, true
	default:
		return 0, false
	}
}

// planeShifts returns the chroma shifts encoded in a planar pixel type.
func planeShifts(pixelType int32) (h, v int) {
	pt := uint32(pixelType)
	h, _ = subShift((pt >> csShiftSubWidth) & csSubMask)
	v, _ = subShift((pt >> csShiftSubHeight) & csSubMask)
	return h, v
}

// sampleBits returns the component depth encoded in a pixel type.
func sampleBits(pixelType int32) int {
	switch (uint32(pixelType) & csSampleBitsMask) >> csShiftSampleBits {
	case 0:
		return 8
	case 1:
		return 16
	case 2:
		return 32
	case 5:
		return 10
	case 6:
		return 12
	case 7:
		return 14
	default:
		return 8
	}
}

// classify maps a pixel type to a chroma family.
func classify(pixelType int32) engine.Family {
	pt := uint32(pixelType)
	switch {
	case pt&csPlanar != 0 && pt&csYUV != 0:
		if pt&csInterleaved != 0 {
			return engine.FamilyGray
		}
		h, hok := subShift((pt >> csShiftSubWidth) & csSubMask)
		v, vok := subShift((pt >> csShiftSubHeight) & csSubMask)
		if !hok || !vok {
			return engine.FamilyOther
		}
		switch {
		case h == 1 && v == 1:
			return engine.FamilyYUV420
		case h == 1 && v == 0:
			return engine.FamilyYUV422
		case h == 0 && v == 0:
			return engine.FamilyYUV444
		}
		return engine.FamilyOther
	case pt&csPlanar != 0 && pt&csBGR != 0:
		return engine.FamilyRGB
	case pt&^csSampleBitsMask == csYUY2:
		return engine.FamilyYUY2
	case pt&csBGR != 0:
		return engine.FamilyRGB
	default:
		return engine.FamilyOther
	}
}

// fieldOrder maps image_type parity bits. Clips without an explicit TFF flag
// are treated as bottom field first, as the engine defaults to.
func fieldOrder(imageType int32, interlaced bool) engine.FieldOrder {
	switch {
	case imageType&itTFF != 0:
		return engine.TopFieldFirst
	case imageType&itBFF != 0 || interlaced:
		return engine.BottomFieldFirst
	default:
		return engine.Progressive
	}
}

// videoInfo is the subset of AVS_VideoInfo the converter reads
type videoInfo struct {
	Width, Height    int
	FPSNum, FPSDen   uint32
	NumFrames        int
	PixelType        int32
	ImageType        int32
	BitsPerComponent int // 0 when the engine cannot report it
}

func (vi videoInfo) format() engine.ClipFormat {
	depth := vi.BitsPerComponent
	if depth == 0 {
		depth = sampleBits(vi.PixelType)
	}
	f := engine.ClipFormat{
		Width:      vi.Width,
		Height:     vi.Height,
		NumFrames:  vi.NumFrames,
		FPS:        engine.Rational{Num: int64(vi.FPSNum), Den: int64(vi.FPSDen)},
		BitDepth:   depth,
		Family:     classify(vi.PixelType),
		FieldBased: vi.ImageType&itFieldBased != 0,
	}
	if vi.ImageType&(itTFF|itBFF) != 0 {
		f.FieldOrder = fieldOrder(vi.ImageType, false)
	}
	return f
}

// planeRows returns the row count of plane in a frame of vi, or 0 when the
// format has no such plane.
func (vi videoInfo) planeRows(id engine.PlaneID) int {
	if id == engine.PlaneY {
		return vi.Height
	}
	pt := uint32(vi.PixelType)
	if pt&csPlanar == 0 || pt&csInterleaved != 0 {
		return 0
	}
	_, v := planeShifts(vi.PixelType)
	return vi.Height >> v
}

func planeSelector(id engine.PlaneID) int {
	switch id {
	case engine.PlaneU:
		return planarU
	case engine.PlaneV:
		return planarV
	default:
		return planarY
	}
}
