// Package schedule decides which frames a run requests, either a contiguous
// range or indices read one line at a time from a controlling process.
package schedule

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Scheduler yields frame indices
type Scheduler interface {
	// Next returns the next frame index. ok is false once the schedule is
	// exhausted; err is set only for failures of the control input.
	Next() (n int, ok bool, err error)

	// Interactive reports whether every frame must reach the sinks before the
	// next index is requested.
	Interactive() bool
}

// Range iterates [seek, end)
type Range struct {
	next int
	end  int
}

// NewRange builds the range schedule for a clip of total frames. A frames
// count of 0 or less, or one reaching past the clip, runs to the last frame.
func NewRange(seek, frames, total int) (*Range, error) {
	if seek < 0 {
		return nil, fmt.Errorf("seek must not be negative, got %d", seek)
	}
	end := seek + frames
	if end <= seek || end > total {
		end = total
	}
	return &Range{next: seek, end: end}, nil
}

func (r *Range) Next() (int, bool, error) {
	if r.next >= r.end {
		return 0, false, nil
	}
	n := r.next
	r.next++
	return n, true, nil
}

func (r *Range) Interactive() bool { return false }

// Len is the number of frames left.
func (r *Range) Len() int {
	if r.end <= r.next {
		return 0
	}
	return r.end - r.next
}

// Bounds returns the first index still to come and the exclusive end.
func (r *Range) Bounds() (next, end int) {
	return r.next, r.end
}

// ErrNoFrames is returned by a slave schedule over an empty clip.
var ErrNoFrames = errors.New("clip has no frames to serve")

// Slave reads frame requests from a control stream
type Slave struct {
	r     *bufio.Reader
	total int
}

// NewSlave reads requests from r for a clip of total frames.
func NewSlave(r io.Reader, total int) *Slave {
	return &Slave{r: bufio.NewReader(r), total: total}
}

// Next blocks until a line with a non-negative index arrives. Lines without
// one are skipped. Indices past the end of the clip select its last frame.
func (s *Slave) Next() (int, bool, error) {
	for {
		line, err := s.r.ReadString('\n')
		if line == "" && err != nil {
			if errors.Is(err, io.EOF) {
				return 0, false, nil
			}
			return 0, false, fmt.Errorf("read control input: %w", err)
		}
		n, ok := ParseIndex(line)
		if !ok || n < 0 {
			if err != nil {
				return 0, false, nil
			}
			continue
		}
		if s.total <= 0 {
			return 0, false, ErrNoFrames
		}
		if n >= s.total {
			n = s.total - 1
		}
		return n, true, nil
	}
}

func (s *Slave) Interactive() bool { return true }

// ParseIndex returns the first integer token on line.
func ParseIndex(line string) (int, bool) {
	for _, tok := range strings.Fields(line) {
		end := 0
		if tok[0] == '-' || tok[0] == '+' {
			end = 1
		}
		digits := end
		for end < len(tok) && tok[end] >= '0' && tok[end] <= '9' {
			end++
		}
		if end == digits {
			continue
		}
		n, err := strconv.Atoi(tok[:end])
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}
