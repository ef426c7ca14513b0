package hal

import "time"

// hostTime reads the host monotonic clock.
type hostTime struct {
	start time.Time
}

func newHostTime() *hostTime { return &hostTime{start: time.Now()} }

func (t *hostTime) Micros() uint64 {
	return uint64(time.Since(t.start).Microseconds())
}
