package extract

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// Timer records named splits for coarse per-bundle performance
// accounting. Not safe for concurrent use; each rank keeps its own.
type Timer struct {
	start time.Time
	last  time.Time
	names []string
	times []time.Duration
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	now := time.Now()
	return &Timer{start: now, last: now}
}

// Split records the elapsed time since the previous split under name.
func (t *Timer) Split(name string) {
	now := time.Now()
	t.names = append(t.names, name)
	t.times = append(t.times, now.Sub(t.last))
	t.last = now
}

// LogSplits emits all recorded splits and the total as one log line.
func (t *Timer) LogSplits(prefix string) {
	var b strings.Builder
	for i, name := range t.names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%.3fs", name, t.times[i].Seconds())
	}
	log.Printf("%s: %s, total=%.3fs", prefix, b.String(), time.Since(t.start).Seconds())
}
