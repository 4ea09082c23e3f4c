//go:build !avisynth || !cgo

package avisynth

import (
	"context"

	"github.com/video-system/go-avs2yuv/pkg/engine"
	"github.com/video-system/go-avs2yuv/pkg/failure"
)

// Engine is unavailable in this build
type Engine struct{}

var _ engine.Engine = (*Engine)(nil)

// Open always fails: the binary was built without the avisynth tag.
func Open(library string) (*Engine, error) {
	if library == "" {
		library = DefaultLibrary()
	}
	return nil, failure.New(failure.KindEngineLoad, "failed to load %s: built without AviSynth support (rebuild with -tags avisynth)", library)
}

func (e *Engine) Import(context.Context, string) (engine.Clip, error) {
	return nil, failure.New(failure.KindEngineLoad, "AviSynth not available")
}

func (e *Engine) Capabilities() engine.Capabilities { return engine.Capabilities{} }

func (e *Engine) Close() error { return nil }
