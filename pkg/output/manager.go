// Package output manages the set of sinks a converted stream is written to:
// files, standard output and an ffmpeg transcode branch.
package output

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/video-system/go-avs2yuv/internal/ffmpeg"
	xlog "github.com/video-system/go-avs2yuv/internal/log"
	"github.com/video-system/go-avs2yuv/pkg/failure"
	"github.com/video-system/go-avs2yuv/pkg/y4m"
)

// Config holds sink options
type Config struct {
	BufferSize int  // bytes per sink, 0 means DefaultBufferSize
	Raw        bool // omit stream header and frame markers on file and stdout sinks

	// Transcode, when Output is set, adds an ffmpeg sink after all targets.
	Transcode ffmpeg.TranscodeConfig
	FFmpeg    string // ffmpeg binary, empty means search PATH
}

// StdoutFunc returns the writer standard output sinks use.
type StdoutFunc func() (io.WriteCloser, error)

// TranscodeFunc starts a transcode subprocess and returns its stdin.
type TranscodeFunc func(ctx context.Context, binary string, cfg ffmpeg.TranscodeConfig) (io.WriteCloser, error)

// Option customises a Manager
type Option func(*Manager)

// WithStdout replaces the standard output opener.
func WithStdout(fn StdoutFunc) Option {
	return func(m *Manager) { m.stdout = fn }
}

// WithTranscoder replaces the ffmpeg launcher.
func WithTranscoder(fn TranscodeFunc) Option {
	return func(m *Manager) { m.transcode = fn }
}

// Manager owns every open sink of a run
type Manager struct {
	cfg       Config
	logger    zerolog.Logger
	stdout    StdoutFunc
	transcode TranscodeFunc

	sinks      []*Sink
	stdoutUsed bool
	closed     bool
}

// NewManager validates cfg and returns a Manager with no sinks open.
func NewManager(cfg Config, logger zerolog.Logger, opts ...Option) (*Manager, error) {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.BufferSize < 0 {
		return nil, failure.New(failure.KindSink, "couldn't allocate output buffer of %d bytes", cfg.BufferSize)
	}
	m := &Manager{
		cfg:    cfg,
		logger: logger,
		stdout: openStdout,
	}
	m.transcode = m.startFFmpeg
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) startFFmpeg(ctx context.Context, binary string, cfg ffmpeg.TranscodeConfig) (io.WriteCloser, error) {
	ff, err := ffmpeg.New(binary)
	if err != nil {
		return nil, err
	}
	if ev := m.logger.Debug(); ev.Enabled() {
		version, err := ff.Version(ctx)
		if err != nil {
			version = "unknown"
		}
		ev.Str(xlog.FieldPath, ff.Path()).Str("version", version).Msg("using ffmpeg")
	}
	proc, err := ff.StartTranscoder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	m.logger.Debug().Int("pid", proc.Pid()).Str(xlog.FieldPath, cfg.Output).Msg("transcoder started")
	return proc, nil
}

// Open opens targets in order, then the transcode sink if configured. On
// error the sinks opened so far stay registered so Close can release them.
func (m *Manager) Open(ctx context.Context, targets []string) error {
	for _, target := range targets {
		if err := m.openTarget(target); err != nil {
			return err
		}
	}
	if m.cfg.Transcode.Output == "" {
		return nil
	}
	wc, err := m.transcode(ctx, m.cfg.FFmpeg, m.cfg.Transcode)
	if err != nil {
		return failure.Wrap(failure.KindSink, err, "couldn't start transcoder for %s", m.cfg.Transcode.Output)
	}
	m.add(newSink(m.cfg.Transcode.Output, KindTranscode, true, wc, m.cfg.BufferSize))
	return nil
}

func (m *Manager) openTarget(target string) error {
	if target == StdoutToken {
		if m.stdoutUsed {
			return failure.New(failure.KindSink, "stdout can only be used once")
		}
		wc, err := m.stdout()
		if err != nil {
			return failure.Wrap(failure.KindSink, err, "couldn't open stdout")
		}
		m.stdoutUsed = true
		m.add(newSink(target, KindStdout, !m.cfg.Raw, wc, m.cfg.BufferSize))
		return nil
	}
	f, err := os.Create(target)
	if err != nil {
		return failure.Wrap(failure.KindSink, err, "couldn't open output file %s", target)
	}
	m.add(newSink(target, KindFile, !m.cfg.Raw, f, m.cfg.BufferSize))
	return nil
}

func (m *Manager) add(s *Sink) {
	m.sinks = append(m.sinks, s)
	m.logger.Debug().
		Str(xlog.FieldEvent, "sink.opened").
		Str(xlog.FieldSink, s.kind.String()).
		Str(xlog.FieldPath, s.name).
		Bool("header", s.header).
		Msg("output opened")
}

// Sinks returns the open sinks in write order.
func (m *Manager) Sinks() []*Sink {
	return m.sinks
}

// Writers returns the open sinks as writers, in write order.
func (m *Manager) Writers() []io.Writer {
	ws := make([]io.Writer, len(m.sinks))
	for i, s := range m.sinks {
		ws[i] = s
	}
	return ws
}

// WriteHeader writes h to every header sink and flushes it.
func (m *Manager) WriteHeader(h y4m.Header) error {
	line := h.String()
	for _, s := range m.sinks {
		if !s.header {
			continue
		}
		if _, err := io.WriteString(s, line); err != nil {
			return failure.Wrap(failure.KindSink, err, "couldn't write header to %s", s.name)
		}
		if err := s.Flush(); err != nil {
			return failure.Wrap(failure.KindSink, err, "couldn't write header to %s", s.name)
		}
	}
	return nil
}

// BeginFrame writes the frame marker to every header sink.
func (m *Manager) BeginFrame() error {
	for _, s := range m.sinks {
		if !s.header {
			continue
		}
		if _, err := io.WriteString(s, y4m.FrameMarker); err != nil {
			return failure.Wrap(failure.KindSink, err, "couldn't write frame marker to %s", s.name)
		}
	}
	return nil
}

// Flush flushes every sink.
func (m *Manager) Flush() error {
	for _, s := range m.sinks {
		if err := s.Flush(); err != nil {
			return failure.Wrap(failure.KindSink, err, "couldn't flush %s", s.name)
		}
	}
	return nil
}

// Close closes the transcode sink first, waiting for the subprocess, then
// flushes and closes the others. Every sink is closed even when some fail.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for _, s := range m.sinks {
		if s.kind == KindTranscode {
			errs = append(errs, m.closeSink(s))
		}
	}
	for _, s := range m.sinks {
		if s.kind != KindTranscode {
			errs = append(errs, m.closeSink(s))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) closeSink(s *Sink) error {
	if err := s.close(); err != nil {
		return failure.Wrap(failure.KindSink, err, "couldn't close %s output", s.kind)
	}
	m.logger.Debug().
		Str(xlog.FieldEvent, "sink.closed").
		Str(xlog.FieldSink, s.kind.String()).
		Str(xlog.FieldPath, s.name).
		Int64("bytes", s.written).
		Msg("output closed")
	return nil
}
