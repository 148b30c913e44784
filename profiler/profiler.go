// Package profiler - Times the stages of a detection run. The clock records
// wall time and allocation growth per stage so the run summary can say where
// a slow scene spent its time.
package profiler

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"
)

// StageTiming is the record for one completed stage.
type StageTiming struct {
	// Stage is the stage name, e.g. "scene" or "inference".
	Stage string
	// Started is when the stage began.
	Started time.Time
	// Duration is the stage wall time.
	Duration time.Duration
	// Allocated is the number of heap bytes allocated process-wide while
	// the stage ran. A cumulative counter delta, so garbage collection
	// cannot drive it negative.
	Allocated uint64
}

// StageClock collects stage timings in completion order.
//
// The clock is thread-safe, but allocation attribution assumes stages run one
// at a time: concurrent stages would each absorb the other's allocations.
type StageClock struct {
	mu      sync.Mutex
	timings []StageTiming
}

// NewStageClock creates an empty clock.
func NewStageClock() *StageClock {
	return &StageClock{}
}

// Start begins timing a stage.
//
// Arguments:
//   - stage: The name to record the stage under
//
// Returns:
//   - A function to call when the stage completes
func (c *StageClock) Start(stage string) func() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	started := time.Now()
	before := mem.TotalAlloc

	return func() {
		duration := time.Since(started)
		runtime.ReadMemStats(&mem)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.timings = append(c.timings, StageTiming{
			Stage:     stage,
			Started:   started,
			Duration:  duration,
			Allocated: mem.TotalAlloc - before,
		})
	}
}

// Time runs fn as the named stage, recording it even when fn fails.
func (c *StageClock) Time(stage string, fn func() error) error {
	stop := c.Start(stage)
	defer stop()
	return fn()
}

// Timings returns a copy of the completed stage records.
func (c *StageClock) Timings() []StageTiming {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]StageTiming, len(c.timings))
	copy(out, c.timings)
	return out
}

// Total returns the summed wall time of all completed stages.
func (c *StageClock) Total() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, t := range c.timings {
		total += t.Duration
	}
	return total
}

// Report writes a per-stage timing table.
func (c *StageClock) Report(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(w, "STAGE TIMINGS\n")
	var total time.Duration
	for _, t := range c.timings {
		fmt.Fprintf(w, "  %-12s %10v  alloc=%s\n",
			t.Stage, t.Duration.Truncate(time.Microsecond), FormatBytes(t.Allocated))
		total += t.Duration
	}
	fmt.Fprintf(w, "  %-12s %10v\n", "total", total.Truncate(time.Microsecond))
}

// FormatBytes formats byte counts in human-readable format.
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
