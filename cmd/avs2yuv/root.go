package main

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"

	xlog "github.com/video-system/go-avs2yuv/internal/log"
	"github.com/video-system/go-avs2yuv/pkg/colorspace"
	"github.com/video-system/go-avs2yuv/pkg/convert"
	"github.com/video-system/go-avs2yuv/pkg/engine"
	"github.com/video-system/go-avs2yuv/pkg/failure"
)

// deps are the process resources the command reads from
type deps struct {
	stdin      io.Reader
	runnerOpts []convert.RunnerOption
}

type rootFlags struct {
	outputs     []string
	verbose     bool
	seek        int
	frames      int
	slave       bool
	raw         bool
	csp         string
	depth       int
	fps         string
	par         string
	hfyu        string
	noMT        bool
	configPath  string
	logLevel    string
	metricsFile string
}

func newRootCmd(d deps) *cobra.Command {
	var f rootFlags
	cmd := &cobra.Command{
		Use:   "avs2yuv [flags] script.avs [output ...]",
		Short: "Convert an AviSynth script to raw planar YUV or YUV4MPEG2",
		Long: "avs2yuv evaluates an AviSynth script and writes its frames as planar YUV.\n" +
			"Outputs are file paths or - for stdout; each gets a YUV4MPEG2 header\n" +
			"unless --raw is given. --hfyu pipes the stream through ffmpeg into a\n" +
			"lossless AVI.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				return failure.New(failure.KindUsage, "no input script")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), d, f, args)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return failure.Wrap(failure.KindUsage, err, "invalid arguments")
	})

	fl := cmd.Flags()
	fl.StringArrayVarP(&f.outputs, "output", "o", nil, "output file, - for stdout (repeatable)")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "log every frame written")
	fl.IntVar(&f.seek, "seek", 0, "first frame to write")
	fl.IntVar(&f.frames, "frames", 0, "number of frames to write, 0 for all")
	fl.BoolVar(&f.slave, "slave", false, "read frame numbers from stdin, one per line")
	fl.BoolVar(&f.raw, "raw", false, "write raw planes without YUV4MPEG2 framing")
	fl.StringVar(&f.csp, "csp", "auto", "output colorspace: auto, i400, i420, i422, i444")
	fl.IntVar(&f.depth, "depth", 0, "output bit depth 8-16, 0 keeps the clip depth")
	fl.StringVar(&f.fps, "fps", "", "override frame rate: int, decimal, num/den or num:den")
	fl.StringVar(&f.par, "par", "", "pixel aspect ratio written to the header, w:h")
	fl.StringVar(&f.hfyu, "hfyu", "", "also encode to a HuffYUV AVI through ffmpeg")
	fl.BoolVar(&f.noMT, "no-mt", false, "don't append Distributor to multi-threaded scripts")
	fl.StringVar(&f.configPath, "config", "", "path to YAML config file")
	fl.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write run metrics in Prometheus text format")
	return cmd
}

func run(ctx context.Context, d deps, f rootFlags, args []string) error {
	cfg := convert.DefaultConfig()
	if f.configPath != "" {
		loaded, err := convert.LoadConfig(f.configPath)
		if err != nil {
			return failure.Wrap(failure.KindUsage, err, "couldn't load config")
		}
		cfg = loaded
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.verbose {
		cfg.Log.Level = "debug"
	}
	if f.metricsFile != "" {
		cfg.Metrics.File = f.metricsFile
	}
	xlog.Configure(xlog.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logger := xlog.WithComponent("avs2yuv")

	opts, err := buildOptions(f, args)
	if err != nil {
		return err
	}
	opts.Control = d.stdin

	runner := convert.NewRunner(cfg, opts, d.runnerOpts...)
	sum, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info().
		Str(xlog.FieldRunID, sum.RunID).
		Int(xlog.FieldFrames, sum.Frames).
		Int64("bytes", sum.Bytes).
		Dur("elapsed", sum.Duration).
		Msg("conversion finished")
	return nil
}

func buildOptions(f rootFlags, args []string) (convert.Options, error) {
	opts := convert.Options{
		Script:    args[0],
		Outputs:   append(append([]string{}, f.outputs...), args[1:]...),
		Transcode: f.hfyu,
		Verbose:   f.verbose,
		Raw:       f.raw,
		Slave:     f.slave,
		NoMT:      f.noMT,
		Seek:      f.seek,
		Frames:    f.frames,
		Target:    colorspace.Target{Depth: f.depth},
	}

	chroma, err := engine.ParseChroma(strings.ToLower(f.csp))
	if err != nil {
		return opts, failure.Wrap(failure.KindUsage, err, "invalid --csp")
	}
	opts.Target.Chroma = chroma

	if f.fps != "" {
		if opts.FPS, err = engine.ParseRational(f.fps); err != nil {
			return opts, failure.Wrap(failure.KindUsage, err, "invalid --fps")
		}
	}
	if f.par != "" {
		if !strings.ContainsAny(f.par, ":/") {
			return opts, failure.New(failure.KindUsage, "invalid --par %q: expected w:h", f.par)
		}
		if opts.SAR, err = engine.ParseRational(f.par); err != nil {
			return opts, failure.Wrap(failure.KindUsage, err, "invalid --par")
		}
	}
	return opts, nil
}
