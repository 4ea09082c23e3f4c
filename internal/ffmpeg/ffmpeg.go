package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// FFmpeg wraps FFmpeg binary execution
type FFmpeg struct {
	binaryPath string
	probePath  string // empty when ffprobe is not installed
}

// New locates ffmpeg. binary may name an explicit executable; empty means
// search PATH and the usual install locations. ffprobe is optional.
func New(binary string) (*FFmpeg, error) {
	name := binary
	if name == "" {
		name = "ffmpeg"
	}
	ffmpegPath, err := findBinary(name)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	probePath, _ := findBinary("ffprobe")

	return &FFmpeg{
		binaryPath: ffmpegPath,
		probePath:  probePath,
	}, nil
}

// findBinary locates a binary in PATH or common locations
func findBinary(name string) (string, error) {
	// Try PATH first
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	// Common locations by OS
	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/opt/homebrew/bin/" + name,
			"/usr/local/bin/" + name,
		}
	case "linux":
		paths = []string{
			"/usr/bin/" + name,
			"/usr/local/bin/" + name,
		}
	case "windows":
		paths = []string{
			"C:\\ffmpeg\\bin\\" + name + ".exe",
			"C:\\Program Files\\ffmpeg\\bin\\" + name + ".exe",
		}
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%s not found in PATH or common locations", name)
}

// Path returns the resolved ffmpeg executable.
func (f *FFmpeg) Path() string {
	return f.binaryPath
}

// CanProbe reports whether ffprobe was found.
func (f *FFmpeg) CanProbe() bool {
	return f.probePath != ""
}

// Version returns the FFmpeg version string
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, f.binaryPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}
	return "", fmt.Errorf("no version output")
}

// TranscodeConfig configures the y4m-to-container branch
type TranscodeConfig struct {
	Output string // destination file
	Codec  string // video codec, default ffvhuff
	Format string // container, default avi
	Args   []string
}

// buildTranscodeArgs builds the pipeline reading YUV4MPEG2 from stdin
func buildTranscodeArgs(cfg TranscodeConfig) []string {
	codec := cfg.Codec
	if codec == "" {
		codec = "ffvhuff"
	}
	format := cfg.Format
	if format == "" {
		format = "avi"
	}

	args := []string{
		"-loglevel", "quiet",
		"-v", "0",
		"-y", // Overwrite output

		// Input
		"-f", "yuv4mpegpipe",
		"-i", "-", // Read from stdin

		"-vcodec", codec,
		"-an",
	}
	args = append(args, cfg.Args...)
	return append(args, "-f", format, cfg.Output)
}

// StartTranscoder starts FFmpeg reading a YUV4MPEG2 stream on stdin and
// writing cfg.Output.
func (f *FFmpeg) StartTranscoder(ctx context.Context, cfg TranscodeConfig) (*Process, error) {
	if cfg.Output == "" {
		return nil, fmt.Errorf("transcode output path is empty")
	}
	return start(ctx, f.binaryPath, buildTranscodeArgs(cfg)...)
}

// Process represents a running FFmpeg process
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tail
	group  *errgroup.Group

	mu     sync.Mutex
	closed bool
	err    error
}

func start(ctx context.Context, name string, args ...string) (*Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	// Get stdin for piping frames
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("get stdin pipe: %w", err)
	}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	proc := &Process{
		cmd:    cmd,
		stdin:  stdin,
		stderr: &tail{max: 4096},
		group:  &errgroup.Group{},
	}

	// stderr must be drained before Wait
	proc.group.Go(func() error {
		_, err := io.Copy(proc.stderr, stderrPipe)
		return err
	})

	return proc, nil
}

// Write writes stream data to FFmpeg stdin
func (p *Process) Write(data []byte) (int, error) {
	return p.stdin.Write(data)
}

// Close closes stdin and waits for FFmpeg to finish. It is safe to call
// more than once; later calls return the first result.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return p.err
	}
	p.closed = true

	closeErr := p.stdin.Close()
	drainErr := p.group.Wait()
	waitErr := p.cmd.Wait()

	switch {
	case waitErr != nil:
		if msg := p.stderr.String(); msg != "" {
			p.err = fmt.Errorf("%s: %w: %s", p.cmd.Path, waitErr, msg)
		} else {
			p.err = fmt.Errorf("%s: %w", p.cmd.Path, waitErr)
		}
	case drainErr != nil:
		p.err = fmt.Errorf("read stderr: %w", drainErr)
	case closeErr != nil:
		p.err = fmt.Errorf("close stdin: %w", closeErr)
	}
	return p.err
}

// Pid returns the process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// tail keeps the last max bytes written to it
type tail struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(bytes.TrimSpace(t.buf))
}
