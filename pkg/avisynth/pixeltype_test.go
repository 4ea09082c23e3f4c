package avisynth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/video-system/go-avs2yuv/pkg/engine"
)

const vPlaneFirst uint32 = 1 << 3

// pixel types as defined by avisynth_c.h
var (
	ptYV12      = pixelType(csPlanar | csYUV | vPlaneFirst)
	ptYV16      = pixelType(csPlanar | csYUV | vPlaneFirst | 3<<csShiftSubHeight)
	ptYV24      = pixelType(csPlanar | csYUV | vPlaneFirst | 3<<csShiftSubHeight | 3)
	ptYV411     = pixelType(csPlanar | csYUV | vPlaneFirst | 3<<csShiftSubHeight | 1)
	ptY8        = pixelType(csPlanar | csInterleaved | csYUV)
	ptYUY2      = pixelType(csYUY2)
	ptRGB24     = pixelType(1<<0 | csBGR | csInterleaved)
	ptRGB32     = pixelType(1<<1 | csBGR | csInterleaved)
	ptYUV420P10 = pixelType(csPlanar | csYUV | vPlaneFirst | 5<<csShiftSampleBits)
	ptYUV444P16 = pixelType(csPlanar | csYUV | vPlaneFirst | 3<<csShiftSubHeight | 3 | 1<<csShiftSampleBits)
	ptY12       = pixelType(csPlanar | csInterleaved | csYUV | 6<<csShiftSampleBits)
	ptRGBP      = pixelType(csPlanar | csBGR | 1<<0)
)

func pixelType(v uint32) int32 { return int32(v) }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		pt   int32
		want engine.Family
	}{
		{"YV12", ptYV12, engine.FamilyYUV420},
		{"YV16", ptYV16, engine.FamilyYUV422},
		{"YV24", ptYV24, engine.FamilyYUV444},
		{"YV411", ptYV411, engine.FamilyOther},
		{"Y8", ptY8, engine.FamilyGray},
		{"YUY2", ptYUY2, engine.FamilyYUY2},
		{"RGB24", ptRGB24, engine.FamilyRGB},
		{"RGB32", ptRGB32, engine.FamilyRGB},
		{"YUV420P10", ptYUV420P10, engine.FamilyYUV420},
		{"YUV444P16", ptYUV444P16, engine.FamilyYUV444},
		{"Y12", ptY12, engine.FamilyGray},
		{"planar RGB", ptRGBP, engine.FamilyRGB},
		{"unknown", 0, engine.FamilyOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.pt))
		})
	}
}

func TestSampleBits(t *testing.T) {
	assert.Equal(t, 8, sampleBits(ptYV12))
	assert.Equal(t, 10, sampleBits(ptYUV420P10))
	assert.Equal(t, 12, sampleBits(ptY12))
	assert.Equal(t, 16, sampleBits(ptYUV444P16))
}

func TestVideoInfoFormat(t *testing.T) {
	vi := videoInfo{
		Width: 720, Height: 240, FPSNum: 60000, FPSDen: 1001, NumFrames: 10,
		PixelType: ptYV12,
		ImageType: itFieldBased | itTFF,
	}
	f := vi.format()
	assert.Equal(t, 720, f.Width)
	assert.Equal(t, engine.Rational{Num: 60000, Den: 1001}, f.FPS)
	assert.Equal(t, engine.FamilyYUV420, f.Family)
	assert.Equal(t, 8, f.BitDepth)
	assert.True(t, f.FieldBased)
	assert.Equal(t, engine.TopFieldFirst, f.FieldOrder)

	vi.ImageType = itBFF
	vi.BitsPerComponent = 10
	f = vi.format()
	assert.False(t, f.FieldBased)
	assert.Equal(t, engine.BottomFieldFirst, f.FieldOrder)
	assert.Equal(t, 10, f.BitDepth, "reported depth wins over pixel type")

	vi.ImageType = 0
	assert.Equal(t, engine.Progressive, vi.format().FieldOrder)
}

func TestFieldOrder(t *testing.T) {
	assert.Equal(t, engine.TopFieldFirst, fieldOrder(itTFF, true))
	assert.Equal(t, engine.BottomFieldFirst, fieldOrder(0, true))
	assert.Equal(t, engine.Progressive, fieldOrder(0, false))
}

func TestPlaneRows(t *testing.T) {
	vi := videoInfo{Width: 8, Height: 6, PixelType: ptYV12}
	assert.Equal(t, 6, vi.planeRows(engine.PlaneY))
	assert.Equal(t, 3, vi.planeRows(engine.PlaneU))

	vi.PixelType = ptYV16
	assert.Equal(t, 6, vi.planeRows(engine.PlaneV))

	vi.PixelType = ptY8
	assert.Equal(t, 0, vi.planeRows(engine.PlaneU))

	vi.PixelType = ptYUY2
	assert.Equal(t, 0, vi.planeRows(engine.PlaneV))
}

func TestDefaultLibrary(t *testing.T) {
	assert.NotEmpty(t, DefaultLibrary())
}
