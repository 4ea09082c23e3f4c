// Package convert drives a conversion run: it evaluates the script, settles
// the output format, opens the sinks and streams the scheduled frames.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/video-system/go-avs2yuv/internal/ffmpeg"
	xlog "github.com/video-system/go-avs2yuv/internal/log"
	"github.com/video-system/go-avs2yuv/internal/metrics"
	"github.com/video-system/go-avs2yuv/pkg/avisynth"
	"github.com/video-system/go-avs2yuv/pkg/colorspace"
	"github.com/video-system/go-avs2yuv/pkg/engine"
	"github.com/video-system/go-avs2yuv/pkg/failure"
	"github.com/video-system/go-avs2yuv/pkg/output"
	"github.com/video-system/go-avs2yuv/pkg/schedule"
	"github.com/video-system/go-avs2yuv/pkg/serialize"
	"github.com/video-system/go-avs2yuv/pkg/y4m"
)

// Opener loads the script engine from a library name.
type Opener func(library string) (engine.Engine, error)

func openAviSynth(library string) (engine.Engine, error) {
	e, err := avisynth.Open(library)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// RunnerOption customises a Runner
type RunnerOption func(*Runner)

// WithOpener replaces the engine loader.
func WithOpener(fn Opener) RunnerOption {
	return func(r *Runner) { r.open = fn }
}

// WithOutputOptions passes options through to the output manager.
func WithOutputOptions(opts ...output.Option) RunnerOption {
	return func(r *Runner) { r.outputOpts = append(r.outputOpts, opts...) }
}

// WithLogger sets the logger runs derive from.
func WithLogger(logger zerolog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// Summary describes a finished run
type Summary struct {
	RunID      string
	Frames     int
	Bytes      int64 // frame payload across all sinks, framing excluded
	Header     y4m.Header
	Conversion string
	Stacked    bool
	Duration   time.Duration
}

// Runner executes one conversion
type Runner struct {
	cfg        *Config
	opts       Options
	logger     zerolog.Logger
	open       Opener
	outputOpts []output.Option
	metrics    *metrics.Run

	state State

	// resources owned by the run, released by teardown
	eng   engine.Engine
	clips []engine.Clip
	sinks *output.Manager
}

// NewRunner prepares a run of opts under cfg. A nil cfg means DefaultConfig.
func NewRunner(cfg *Config, opts Options, ropts ...RunnerOption) *Runner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	r := &Runner{
		cfg:     cfg,
		opts:    opts,
		logger:  xlog.WithComponent("convert"),
		open:    openAviSynth,
		metrics: metrics.NewRun(),
	}
	for _, o := range ropts {
		o(r)
	}
	return r
}

// Metrics returns the run's metric set.
func (r *Runner) Metrics() *metrics.Run {
	return r.metrics
}

// State returns the current run state.
func (r *Runner) State() State {
	return r.state
}

// Run executes the conversion. Every resource acquired along the way is
// released before Run returns, whatever the outcome.
func (r *Runner) Run(ctx context.Context) (sum *Summary, err error) {
	if r.state != StateIdle {
		return nil, fmt.Errorf("runner already used")
	}
	start := time.Now()
	sum = &Summary{RunID: uuid.NewString()}
	r.logger = r.logger.With().Str(xlog.FieldRunID, sum.RunID).Logger()

	defer func() {
		if err != nil {
			r.transition(StateAborted)
		}
		if tErr := r.teardown(); tErr != nil {
			if err == nil {
				err = tErr
			} else {
				r.logger.Warn().Err(tErr).Msg("teardown failed after run error")
			}
		}
		r.transition(StateClosed)
		if err == nil && r.opts.Transcode != "" {
			r.checkTranscode(ctx, sum.Frames)
		}
		sum.Duration = time.Since(start)
		r.finishMetrics(sum, err)
	}()

	if err := r.opts.Validate(); err != nil {
		return sum, err
	}
	if !r.opts.HasScriptExtension() {
		r.logger.Warn().Str(xlog.FieldScript, r.opts.Script).Msg("script name does not end in .avs")
	}

	r.transition(StateNegotiating)
	res, interlaced, order, err := r.negotiate(ctx)
	if err != nil {
		return sum, err
	}
	sum.Conversion = res.Conversion
	sum.Stacked = res.Stacked

	header := y4m.Header{
		Width:      res.HeaderWidth,
		Height:     res.Layout.Height,
		FPS:        res.Clip.Format().FPS,
		FieldOrder: order,
		SAR:        r.opts.SAR,
		Chroma:     res.Layout.Chroma,
		Depth:      res.Depth,
	}
	if !r.opts.FPS.IsZero() {
		header.FPS = r.opts.FPS
	}
	if header.SAR.IsZero() {
		header.SAR = res.Clip.Format().SAR
	}
	if err := header.Validate(); err != nil {
		return sum, failure.Wrap(failure.KindFormat, err, "invalid stream header")
	}
	sum.Header = header

	sched, err := r.schedule(res.Clip.Format().NumFrames)
	if err != nil {
		return sum, err
	}

	r.transition(StateSinksOpen)
	if err := r.openSinks(ctx, header); err != nil {
		return sum, err
	}

	r.transition(StateStreaming)
	if err := r.stream(ctx, res, interlaced, sched, sum); err != nil {
		return sum, err
	}

	r.transition(StateDraining)
	if err := r.sinks.Flush(); err != nil {
		return sum, err
	}
	return sum, nil
}

// negotiate loads the engine, evaluates the script and settles the output
// format. Every clip it creates is held for teardown.
func (r *Runner) negotiate(ctx context.Context) (*colorspace.Result, bool, engine.FieldOrder, error) {
	eng, err := r.open(r.cfg.Engine.Library)
	if err != nil {
		return nil, false, engine.Progressive, err
	}
	r.eng = eng

	clip, err := eng.Import(ctx, r.opts.Script)
	if err != nil {
		if failure.KindOf(err) == failure.KindUnknown {
			err = failure.Wrap(failure.KindScript, err, "couldn't import %s", r.opts.Script)
		}
		return nil, false, engine.Progressive, err
	}
	r.hold(clip)

	if probe, ok := eng.(engine.ThreadingProbe); ok && r.cfg.Engine.MTEnabled() && !r.opts.NoMT && probe.NeedsDistributor(clip) {
		r.logger.Info().Msg("multi-threaded script detected, appending Distributor")
		dist, err := probe.Distribute(clip)
		if err != nil {
			return nil, false, engine.Progressive, failure.Wrap(failure.KindScript, err, "couldn't apply Distributor")
		}
		r.hold(dist)
		clip = dist
	}

	f := clip.Format()
	if !f.HasVideo() {
		return nil, false, engine.Progressive, failure.New(failure.KindScript, "'%s' has no video data", r.opts.Script)
	}

	interlaced := false
	order := engine.Progressive
	if f.FieldBased {
		r.logger.Info().Msg("detected field-based input, weaving to frames")
		woven, err := clip.Weave()
		if err != nil {
			return nil, false, engine.Progressive, failure.Wrap(failure.KindScript, err, "couldn't weave fields into frames")
		}
		r.hold(woven)
		clip = woven
		f = clip.Format()
		interlaced = true
		order = engine.BottomFieldFirst
		if f.FieldOrder == engine.TopFieldFirst {
			order = engine.TopFieldFirst
		}
	}

	r.logger.Info().
		Str(xlog.FieldScript, r.opts.Script).
		Str(xlog.FieldResolution, fmt.Sprintf("%dx%d", f.Width, f.Height)).
		Str(xlog.FieldFPS, f.FPS.String()).
		Int(xlog.FieldFrames, f.NumFrames).
		Str("family", f.Family.String()).
		Int(xlog.FieldDepth, f.Depth()).
		Msg("script loaded")

	res, err := colorspace.NewNegotiator(r.logger, r.eng.Capabilities()).Negotiate(clip, r.opts.Target, interlaced)
	if err != nil {
		return nil, false, engine.Progressive, err
	}
	if res.Converted() {
		r.hold(res.Clip)
	}
	r.logger.Debug().
		Str(xlog.FieldColorspace, res.Layout.Chroma.String()).
		Int(xlog.FieldDepth, res.Depth).
		Bool("stacked", res.Stacked).
		Int64("frame_bytes", res.Layout.FrameBytes()).
		Msg("output format settled")
	return res, interlaced, order, nil
}

func (r *Runner) schedule(total int) (schedule.Scheduler, error) {
	if r.opts.Slave {
		return schedule.NewSlave(r.control(), total), nil
	}
	rng, err := schedule.NewRange(r.opts.Seek, r.opts.Frames, total)
	if err != nil {
		return nil, failure.Wrap(failure.KindUsage, err, "invalid frame range")
	}
	next, end := rng.Bounds()
	r.logger.Debug().Int("first", next).Int("end", end).Msg("frame range")
	return rng, nil
}

func (r *Runner) openSinks(ctx context.Context, header y4m.Header) error {
	mgr, err := output.NewManager(output.Config{
		BufferSize: r.cfg.Output.BufferSize,
		Raw:        r.opts.Raw,
		Transcode: ffmpeg.TranscodeConfig{
			Output: r.opts.Transcode,
			Codec:  r.cfg.Transcode.Codec,
			Format: r.cfg.Transcode.Format,
			Args:   r.cfg.Transcode.Args,
		},
		FFmpeg: r.cfg.Transcode.FFmpeg,
	}, r.logger, r.outputOpts...)
	if err != nil {
		return err
	}
	r.sinks = mgr
	if err := mgr.Open(ctx, r.opts.Outputs); err != nil {
		return err
	}
	return mgr.WriteHeader(header)
}

func (r *Runner) stream(ctx context.Context, res *colorspace.Result, interlaced bool, sched schedule.Scheduler, sum *Summary) error {
	writers := r.sinks.Writers()
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("conversion interrupted after %d frames: %w", sum.Frames, err)
		}
		n, ok, err := sched.Next()
		if err != nil {
			return failure.Wrap(failure.KindFrameRead, err, "couldn't read frame request")
		}
		if !ok {
			return nil
		}

		began := time.Now()
		wrote, err := r.writeFrame(res, n, writers)
		sum.Bytes += wrote
		if err != nil {
			return err
		}
		if sched.Interactive() {
			if err := r.sinks.Flush(); err != nil {
				return err
			}
		}
		r.metrics.ObserveFrame(time.Since(began))
		sum.Frames++

		r.logger.Debug().
			Str(xlog.FieldEvent, "frame.written").
			Int(xlog.FieldFrame, n).
			Bool("interlaced", interlaced).
			Msg("frame written")
	}
}

func (r *Runner) writeFrame(res *colorspace.Result, n int, writers []io.Writer) (int64, error) {
	frame, err := res.Clip.Frame(n)
	if err != nil {
		return 0, failure.AtFrame(n, err)
	}
	defer frame.Release()

	if err := r.sinks.BeginFrame(); err != nil {
		return 0, err
	}
	wrote, err := serialize.WriteFrame(frame, res.Layout, writers)
	if err != nil {
		var fe *failure.Error
		if errors.As(err, &fe) && fe.Frame == failure.NoFrame {
			fe.Frame = n
		}
		return wrote, err
	}
	return wrote, nil
}

// control returns the reader slave requests come from.
func (r *Runner) control() io.Reader {
	if r.opts.Control != nil {
		return r.opts.Control
	}
	return strings.NewReader("")
}

// hold registers a clip for release at teardown.
func (r *Runner) hold(c engine.Clip) {
	r.clips = append(r.clips, c)
}

// teardown closes sinks, releases clips newest first and unloads the engine.
// It only touches what the run actually acquired.
func (r *Runner) teardown() error {
	var errs []error
	if r.sinks != nil {
		errs = append(errs, r.sinks.Close())
		for _, s := range r.sinks.Sinks() {
			r.metrics.AddBytes(s.Name(), s.Written())
		}
		r.sinks = nil
	}
	for i := len(r.clips) - 1; i >= 0; i-- {
		r.clips[i].Release()
	}
	r.clips = nil
	if r.eng != nil {
		if err := r.eng.Close(); err != nil {
			errs = append(errs, failure.Wrap(failure.KindEngineLoad, err, "couldn't close engine"))
		}
		r.eng = nil
	}
	return errors.Join(errs...)
}

// checkTranscode compares the frame count ffprobe reports for the
// transcoded file with what was written. A mismatch is only logged.
func (r *Runner) checkTranscode(ctx context.Context, written int) {
	ff, err := ffmpeg.New(r.cfg.Transcode.FFmpeg)
	if err != nil || !ff.CanProbe() {
		return
	}
	info, err := ff.GetVideoInfo(ctx, r.opts.Transcode)
	if err != nil {
		r.logger.Debug().Err(err).Str(xlog.FieldPath, r.opts.Transcode).Msg("skipping transcode check")
		return
	}
	ev := r.logger.Info()
	if info.Frames != 0 && info.Frames != written {
		ev = r.logger.Warn()
	}
	ev.Str(xlog.FieldPath, r.opts.Transcode).
		Str("codec", info.Codec).
		Str(xlog.FieldResolution, info.Resolution()).
		Int(xlog.FieldFrames, info.Frames).
		Int("written", written).
		Msg("transcode output probed")
}

func (r *Runner) transition(to State) {
	from := r.state
	if from == to {
		return
	}
	if !canTransition(from, to) {
		r.logger.Error().Str(xlog.FieldOldState, from.String()).Str(xlog.FieldNewState, to.String()).
			Msg("illegal state transition")
		return
	}
	r.state = to
	r.logger.Debug().
		Str(xlog.FieldEvent, "state.changed").
		Str(xlog.FieldOldState, from.String()).
		Str(xlog.FieldNewState, to.String()).
		Msg("run state changed")
}

func (r *Runner) finishMetrics(sum *Summary, err error) {
	r.metrics.Duration.Set(sum.Duration.Seconds())
	if err != nil {
		r.metrics.Fail(failure.KindOf(err).String())
	}
	if r.cfg.Metrics.File == "" {
		return
	}
	if wErr := r.metrics.WriteTextfile(r.cfg.Metrics.File); wErr != nil {
		r.logger.Warn().Err(wErr).Str(xlog.FieldPath, r.cfg.Metrics.File).Msg("failed to write metrics")
	}
}
