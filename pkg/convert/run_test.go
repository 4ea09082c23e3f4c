package convert

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/video-system/go-avs2yuv/pkg/colorspace"
	"github.com/video-system/go-avs2yuv/pkg/engine"
	"github.com/video-system/go-avs2yuv/pkg/engine/enginetest"
	"github.com/video-system/go-avs2yuv/pkg/failure"
	"github.com/video-system/go-avs2yuv/pkg/output"
	"github.com/video-system/go-avs2yuv/pkg/y4m"
)

type bufCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufCloser) Close() error {
	b.closed = true
	return nil
}

// limitWriter accepts limit bytes, then reports short writes.
type limitWriter struct {
	limit int
	n     int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	room := w.limit - w.n
	if room >= len(p) {
		w.n += len(p)
		return len(p), nil
	}
	if room < 0 {
		room = 0
	}
	w.n += room
	return room, nil
}

func (w *limitWriter) Close() error { return nil }

// lineReader returns one line per Read, calling before ahead of each.
type lineReader struct {
	lines  []string
	next   int
	before func(i int)
}

func (r *lineReader) Read(p []byte) (int, error) {
	if r.next == len(r.lines) {
		return 0, io.EOF
	}
	r.before(r.next)
	n := copy(p, r.lines[r.next])
	r.next++
	return n, nil
}

func clipFormat(family engine.Family, w, h, frames int) engine.ClipFormat {
	return engine.ClipFormat{
		Width:     w,
		Height:    h,
		NumFrames: frames,
		FPS:       engine.Rational{Num: 30000, Den: 1001},
		BitDepth:  8,
		Family:    family,
	}
}

func newRunner(eng *enginetest.Engine, cfg *Config, opts Options, stdout io.WriteCloser) *Runner {
	ropts := []RunnerOption{
		WithOpener(func(string) (engine.Engine, error) { return eng, nil }),
		WithLogger(zerolog.Nop()),
	}
	if stdout != nil {
		ropts = append(ropts, WithOutputOptions(output.WithStdout(func() (io.WriteCloser, error) { return stdout, nil })))
	}
	return NewRunner(cfg, opts, ropts...)
}

func assertReleased(t *testing.T, eng *enginetest.Engine) {
	t.Helper()
	assert.True(t, eng.Closed(), "engine closed")
	assert.Zero(t, eng.Outstanding(), "frames released")
	assert.Zero(t, eng.OpenClips(), "clips released")
	assert.Zero(t, eng.Violations())
}

func expectedStream(header string, f engine.ClipFormat, frames ...int) []byte {
	out := []byte(header)
	for _, n := range frames {
		out = append(out, y4m.FrameMarker...)
		out = append(out, enginetest.FramePayload(f, n)...)
	}
	return out
}

func TestRun_TwoSinksFiveFrames(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.y4m")
	b := filepath.Join(dir, "b.y4m")
	f := clipFormat(engine.FamilyYUV420, 720, 480, 5)
	eng := enginetest.New(f)
	eng.Padding = 32

	r := newRunner(eng, nil, Options{Script: "clip.avs", Outputs: []string{a, b}}, nil)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Frames)
	assert.Equal(t, int64(2*5*518400), sum.Bytes)
	assert.Empty(t, sum.Conversion)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, StateClosed, r.State())

	want := expectedStream("YUV4MPEG2 W720 H480 F30000:1001 Ip A0:0 C420mpeg2\n", f, 0, 1, 2, 3, 4)
	for _, path := range []string{a, b} {
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, len(want), len(got), path)
		assert.True(t, bytes.Equal(want, got), "%s content", path)
	}
	assertReleased(t, eng)
	assert.Equal(t, 5, eng.Acquired())
}

func TestRun_OddWidthFailsBeforeSinks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.y4m")
	eng := enginetest.New(clipFormat(engine.FamilyRGB, 721, 480, 5))

	r := newRunner(eng, nil, Options{Script: "clip.avs", Outputs: []string{path}}, nil)
	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, failure.Format)
	assert.Contains(t, err.Error(), "721x480")
	assert.Equal(t, 1, failure.ExitCode(err))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no output created")
	assert.Empty(t, eng.Conversions)
	assertReleased(t, eng)
	assert.Equal(t, StateClosed, r.State())
}

func TestRun_ConvertsToRequestedChroma(t *testing.T) {
	stdout := &bufCloser{}
	eng := enginetest.New(clipFormat(engine.FamilyYUY2, 8, 4, 2))

	r := newRunner(eng, nil, Options{
		Script:  "clip.avs",
		Outputs: []string{"-"},
		Target:  colorspace.Target{Chroma: engine.Chroma422},
	}, stdout)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ConvertToYV16", sum.Conversion)
	require.Len(t, eng.Conversions, 1)
	assert.False(t, eng.Conversions[0].Interlaced)

	converted := clipFormat(engine.FamilyYUV422, 8, 4, 2)
	assert.Equal(t, expectedStream("YUV4MPEG2 W8 H4 F30000:1001 Ip A0:0 C422\n", converted, 0, 1), stdout.Bytes())
	assert.True(t, stdout.closed)
	assertReleased(t, eng)
}

func TestRun_ShortWrite(t *testing.T) {
	eng := enginetest.New(clipFormat(engine.FamilyYUV420, 8, 4, 3))
	cfg := DefaultConfig()
	cfg.Output.BufferSize = 16

	r := newRunner(eng, cfg, Options{Script: "clip.avs", Outputs: []string{"-"}, Raw: true}, &limitWriter{limit: 60})
	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, failure.ShortWrite)

	var fe *failure.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 1, fe.Frame)
	assert.Equal(t, int64(48), fe.Expected)
	assert.Contains(t, err.Error(), "wrote only")
	assertReleased(t, eng)
}

func TestRun_SlaveClampsRequests(t *testing.T) {
	stdout := &bufCloser{}
	f := clipFormat(engine.FamilyYUV420, 8, 4, 10)
	eng := enginetest.New(f)

	r := newRunner(eng, nil, Options{
		Script:  "clip.avs",
		Outputs: []string{"-"},
		Slave:   true,
		Control: strings.NewReader("3\nskip\n999999\n"),
	}, stdout)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Frames)
	assert.Equal(t, expectedStream("YUV4MPEG2 W8 H4 F30000:1001 Ip A0:0 C420mpeg2\n", f, 3, 9), stdout.Bytes())
	assertReleased(t, eng)
}

func TestRun_SlaveFlushesEachFrame(t *testing.T) {
	stdout := &bufCloser{}
	path := filepath.Join(t.TempDir(), "out.y4m")
	f := clipFormat(engine.FamilyYUV420, 8, 4, 10)
	eng := enginetest.New(f)

	type sizes struct{ stdout, file int64 }
	var seen []sizes
	ctl := &lineReader{
		lines: []string{"2\n", "5\n", "7\n"},
		before: func(int) {
			fi, err := os.Stat(path)
			require.NoError(t, err)
			seen = append(seen, sizes{int64(stdout.Len()), fi.Size()})
		},
	}

	r := newRunner(eng, nil, Options{
		Script:  "clip.avs",
		Outputs: []string{"-", path},
		Slave:   true,
		Control: ctl,
	}, stdout)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, sum.Frames)

	header := int64(len("YUV4MPEG2 W8 H4 F30000:1001 Ip A0:0 C420mpeg2\n"))
	frame := int64(len(y4m.FrameMarker) + 48)
	want := []sizes{
		{header, header},
		{header + frame, header + frame},
		{header + 2*frame, header + 2*frame},
	}
	assert.Equal(t, want, seen)
	assertReleased(t, eng)
}

func TestRun_ZeroFrameClip(t *testing.T) {
	stdout := &bufCloser{}
	eng := enginetest.New(clipFormat(engine.FamilyYUV420, 8, 4, 0))

	r := newRunner(eng, nil, Options{Script: "clip.avs", Outputs: []string{"-"}}, stdout)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Frames)
	assert.Equal(t, "YUV4MPEG2 W8 H4 F30000:1001 Ip A0:0 C420mpeg2\n", stdout.String())
	assertReleased(t, eng)
}

func TestRun_SlaveZeroFrameClip(t *testing.T) {
	eng := enginetest.New(clipFormat(engine.FamilyYUV420, 8, 4, 0))

	r := newRunner(eng, nil, Options{
		Script:  "clip.avs",
		Outputs: []string{"-"},
		Slave:   true,
		Control: strings.NewReader("0\n"),
	}, &bufCloser{})
	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, failure.FrameRead)
	assertReleased(t, eng)
}

func TestRun_RangeSelection(t *testing.T) {
	stdout := &bufCloser{}
	f := clipFormat(engine.FamilyGray, 6, 3, 10)
	eng := enginetest.New(f)

	r := newRunner(eng, nil, Options{Script: "clip.avs", Outputs: []string{"-"}, Seek: 4, Frames: 3}, stdout)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Frames)
	assert.Equal(t, expectedStream("YUV4MPEG2 W6 H3 F30000:1001 Ip A0:0 Cmono\n", f, 4, 5, 6), stdout.Bytes())
}

func TestRun_FieldBasedInputIsWoven(t *testing.T) {
	stdout := &bufCloser{}
	f := clipFormat(engine.FamilyYUV420, 8, 4, 4)
	f.FieldBased = true
	f.FieldOrder = engine.TopFieldFirst
	eng := enginetest.New(f)

	r := newRunner(eng, nil, Options{
		Script:  "clip.avs",
		Outputs: []string{"-"},
		Target:  colorspace.Target{Chroma: engine.Chroma444},
	}, stdout)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, eng.Weaves)
	require.Len(t, eng.Conversions, 1)
	assert.True(t, eng.Conversions[0].Interlaced)
	assert.Equal(t, engine.TopFieldFirst, sum.Header.FieldOrder)
	assert.Equal(t, 8, sum.Header.Height)
	assert.Equal(t, 2, sum.Frames)
	assert.True(t, strings.HasPrefix(stdout.String(), "YUV4MPEG2 W8 H8 F30000:1001 It A0:0 C444\n"))
	assertReleased(t, eng)
}

func TestRun_FieldBasedDefaultsToBottomFirst(t *testing.T) {
	f := clipFormat(engine.FamilyYUV420, 8, 4, 2)
	f.FieldBased = true
	eng := enginetest.New(f)

	r := newRunner(eng, nil, Options{Script: "clip.avs", Verbose: true}, nil)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.BottomFieldFirst, sum.Header.FieldOrder)
}

func TestRun_WeaveFailure(t *testing.T) {
	f := clipFormat(engine.FamilyYUV420, 8, 4, 2)
	f.FieldBased = true
	eng := enginetest.New(f)
	eng.WeaveErr = errors.New("no Weave")

	r := newRunner(eng, nil, Options{Script: "clip.avs", Verbose: true}, nil)
	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, failure.Script)
	assertReleased(t, eng)
}

func TestRun_Distributor(t *testing.T) {
	for _, tt := range []struct {
		name string
		noMT bool
		cfg  bool
		want int
	}{
		{"applied", false, true, 1},
		{"disabled by flag", true, true, 0},
		{"disabled by config", false, false, 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			eng := enginetest.New(clipFormat(engine.FamilyYUV420, 8, 4, 1))
			eng.MT = true
			cfg := DefaultConfig()
			cfg.Engine.MT = &tt.cfg

			r := newRunner(eng, cfg, Options{Script: "clip.avs", Verbose: true, NoMT: tt.noMT}, nil)
			_, err := r.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, eng.Distributed)
			assertReleased(t, eng)
		})
	}
}

func TestRun_NoVideo(t *testing.T) {
	eng := enginetest.New(clipFormat(engine.FamilyOther, 0, 0, 0))
	r := newRunner(eng, nil, Options{Script: "audio.avs", Verbose: true}, nil)
	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, failure.Script)
	assert.Contains(t, err.Error(), "has no video data")
	assertReleased(t, eng)
}

func TestRun_ImportError(t *testing.T) {
	eng := enginetest.New(clipFormat(engine.FamilyYUV420, 8, 4, 1))
	eng.ImportErr = errors.New("Script error: there is no function named Foo")

	r := newRunner(eng, nil, Options{Script: "broken.avs", Verbose: true}, nil)
	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, failure.Script)
	assert.Contains(t, err.Error(), "no function named Foo")
	assertReleased(t, eng)
}

func TestRun_EngineLoadError(t *testing.T) {
	r := NewRunner(nil, Options{Script: "clip.avs", Verbose: true},
		WithLogger(zerolog.Nop()),
		WithOpener(func(string) (engine.Engine, error) {
			return nil, failure.New(failure.KindEngineLoad, "failed to load avisynth")
		}),
	)
	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, failure.EngineLoad)
	assert.Equal(t, StateClosed, r.State())
}

func TestRun_FrameReadError(t *testing.T) {
	dir := t.TempDir()
	eng := enginetest.New(clipFormat(engine.FamilyYUV420, 8, 4, 5))
	eng.FailAt = map[int]error{2: errors.New("filter crashed")}

	r := newRunner(eng, nil, Options{Script: "clip.avs", Outputs: []string{filepath.Join(dir, "o.y4m")}}, nil)
	sum, err := r.Run(context.Background())
	require.ErrorIs(t, err, failure.FrameRead)
	assert.Equal(t, "error reading frame (frame 2): filter crashed", err.Error())
	assert.Equal(t, 2, sum.Frames)
	assertReleased(t, eng)
}

func TestRun_HeaderOverrides(t *testing.T) {
	stdout := &bufCloser{}
	eng := enginetest.New(clipFormat(engine.FamilyYUV420, 8, 4, 1))

	r := newRunner(eng, nil, Options{
		Script:  "clip.avs",
		Outputs: []string{"-"},
		FPS:     engine.Rational{Num: 24000, Den: 1001},
		SAR:     engine.Rational{Num: 10, Den: 11},
	}, stdout)
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout.String(), "YUV4MPEG2 W8 H4 F24000:1001 Ip A10:11 C420mpeg2\n"))
}

func TestRun_StackedHighDepth(t *testing.T) {
	stdout := &bufCloser{}
	f := clipFormat(engine.FamilyYUV420, 16, 4, 1)
	eng := enginetest.New(f)

	r := newRunner(eng, nil, Options{
		Script:  "clip.avs",
		Outputs: []string{"-"},
		Target:  colorspace.Target{Depth: 16},
	}, stdout)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, sum.Stacked)
	assert.Equal(t, expectedStream("YUV4MPEG2 W8 H4 F30000:1001 Ip A0:0 C420p16\n", f, 0), stdout.Bytes())
}

func TestRun_StackingNeedsEngineWithoutHighDepth(t *testing.T) {
	eng := enginetest.New(clipFormat(engine.FamilyYUV420, 16, 4, 1))
	eng.Caps = engine.Capabilities{HighBitDepth: true}

	r := newRunner(eng, nil, Options{
		Script:  "clip.avs",
		Outputs: []string{"-"},
		Target:  colorspace.Target{Depth: 16},
	}, &bufCloser{})
	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, failure.Format)
	assertReleased(t, eng)
}

func TestRun_FloatClipRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.y4m")
	f := clipFormat(engine.FamilyYUV420, 64, 32, 2)
	f.BitDepth = 32
	eng := enginetest.New(f)
	eng.Caps = engine.Capabilities{HighBitDepth: true}

	r := newRunner(eng, nil, Options{Script: "clip.avs", Outputs: []string{path}}, nil)
	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, failure.Format)
	assert.Contains(t, err.Error(), "unsupported input bit depth 32")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no output created")
	assert.Zero(t, eng.Acquired())
	assertReleased(t, eng)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng := enginetest.New(clipFormat(engine.FamilyYUV420, 8, 4, 5))

	r := newRunner(eng, nil, Options{Script: "clip.avs", Outputs: []string{"-"}}, &bufCloser{})
	sum, err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sum.Frames)
	assertReleased(t, eng)
}

func TestRun_UsageErrorsBeforeEngine(t *testing.T) {
	opened := false
	r := NewRunner(nil, Options{Script: "clip.avs"},
		WithLogger(zerolog.Nop()),
		WithOpener(func(string) (engine.Engine, error) {
			opened = true
			return nil, errors.New("unexpected")
		}),
	)
	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, failure.Usage)
	assert.Equal(t, 2, failure.ExitCode(err))
	assert.False(t, opened)
}

func TestRun_RunnerIsSingleUse(t *testing.T) {
	eng := enginetest.New(clipFormat(engine.FamilyYUV420, 8, 4, 1))
	r := newRunner(eng, nil, Options{Script: "clip.avs", Verbose: true}, nil)
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	assert.Error(t, err)
}

func TestRun_WritesMetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avs2yuv.prom")
	eng := enginetest.New(clipFormat(engine.FamilyYUV420, 8, 4, 3))
	cfg := DefaultConfig()
	cfg.Metrics.File = path

	r := newRunner(eng, cfg, Options{Script: "clip.avs", Outputs: []string{"-"}}, &bufCloser{})
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "avs2yuv_frames_written_total 3")
	assert.Contains(t, string(data), `avs2yuv_bytes_written_total{sink="-"}`)
}
