package failure

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"usage", New(KindUsage, "-seek needs an argument"), 2},
		{"wrapped usage", fmt.Errorf("cli: %w", New(KindUsage, "bad")), 2},
		{"format", New(KindFormat, "odd width"), 1},
		{"short write", Short(10, 20, io.ErrShortWrite), 1},
		{"plain error", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestSentinelMatching(t *testing.T) {
	err := fmt.Errorf("negotiate: %w", New(KindFormat, "input clip width not divisible by 2 (721x480)"))

	assert.ErrorIs(t, err, Format)
	assert.NotErrorIs(t, err, Sink)
	assert.Equal(t, KindFormat, KindOf(err))
}

func TestErrorMessages(t *testing.T) {
	fe := AtFrame(42, errors.New("script threw"))
	assert.Equal(t, "error reading frame (frame 42): script threw", fe.Error())
	assert.ErrorIs(t, fe, FrameRead)

	se := Short(100, 300, nil)
	assert.Equal(t, "wrote only 100 of 300 bytes", se.Error())
	assert.Equal(t, int64(100), se.Written)
	assert.Equal(t, int64(300), se.Expected)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "short_write", KindShortWrite.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}
