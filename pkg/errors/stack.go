package errors

import (
	"fmt"
	"runtime"
	"strings"
)

const maxStackDepth = 32

type stack []uintptr

// callers skips runtime.Callers, callers itself and the reporter frame.
func callers() stack {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(3, pcs)
	return pcs[:n]
}

func (s stack) frames() []runtime.Frame {
	iter := runtime.CallersFrames(s)
	out := make([]runtime.Frame, 0, len(s))
	for {
		frame, more := iter.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			out = append(out, frame)
		}
		if !more {
			return out
		}
	}
}

// fullStack renders each frame as "function file:line".
func (s stack) fullStack() []string {
	frames := s.frames()
	lines := make([]string, 0, len(frames))
	for _, f := range frames {
		lines = append(lines, formatFrame(f))
	}
	return lines
}

// origin is the first frame raised outside this package, used as the throttling key.
func (s stack) origin() string {
	for _, f := range s.frames() {
		if strings.Contains(f.File, "/pkg/errors/") && !strings.HasSuffix(f.File, "_test.go") {
			continue
		}
		return formatFrame(f)
	}
	return ""
}

func formatFrame(f runtime.Frame) string {
	return fmt.Sprintf("%s %s:%d", f.Function, f.File, f.Line)
}
