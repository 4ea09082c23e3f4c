package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	xlog "github.com/video-system/go-avs2yuv/internal/log"
	"github.com/video-system/go-avs2yuv/pkg/failure"
)

const version = "0.24"

func main() {
	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	cmd := newRootCmd(deps{stdin: os.Stdin})
	err := cmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		reportError(os.Stderr, xlog.WithComponent("avs2yuv"), cmd.UsageString(), err)
	}
	os.Exit(failure.ExitCode(err))
}

// reportError prints usage errors with the usage text and logs the rest.
func reportError(w io.Writer, logger zerolog.Logger, usage string, err error) {
	if failure.KindOf(err) == failure.KindUsage {
		fmt.Fprintf(w, "error: %v\n\n%s", err, usage)
		return
	}
	logger.Error().Err(err).Str("kind", failure.KindOf(err).String()).Msg("conversion failed")
}
