package app

import (
	"errors"
	"fmt"
	"strings"

	"strideos/kernel"
)

// installPanicHandler logs a kernel halt with its stack. Running out of tasks
// is the normal end of a run and is not treated as a panic.
func installPanicHandler(s *System) {
	s.k.SetPanicHandler(func(info kernel.PanicInfo) {
		if err, ok := info.Value.(error); ok && errors.Is(err, kernel.ErrNoRunnableTask) {
			return
		}
		l := s.h.Logger()
		if l == nil {
			return
		}
		l.WriteLineString(fmt.Sprintf("strideos panic: pid=%d panic=%v", info.TaskID, info.Value))
		for _, line := range strings.Split(string(info.Stack), "\n") {
			if line == "" {
				continue
			}
			l.WriteLineString(line)
		}
	})
}
