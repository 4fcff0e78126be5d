package evolution

import (
	"context"
	"fmt"
	"time"
)

// Benchmarker measures a version's throughput as average nanoseconds per
// Process call over a fixed input battery. Before and after versions are
// always measured against the same battery in the same process, so the
// numbers are comparable even though they are not absolute.
type Benchmarker struct {
	iterations int
}

// NewBenchmarker returns a Benchmarker running each battery the given
// number of times. Iterations below 1 are clamped to 1.
func NewBenchmarker(iterations int) *Benchmarker {
	if iterations < 1 {
		iterations = 1
	}
	return &Benchmarker{iterations: iterations}
}

// Measure runs the battery through v and returns ns per Process call.
// A panicking version is reported as an error, never a measurement.
func (b *Benchmarker) Measure(ctx context.Context, v *Version, battery []string) (nsPerOp float64, err error) {
	if len(battery) == 0 {
		return 0, fmt.Errorf("empty benchmark battery")
	}
	defer func() {
		if rec := recover(); rec != nil {
			nsPerOp, err = 0, fmt.Errorf("benchmark panic: %v", rec)
		}
	}()

	// Warm-up pass so interpreter setup cost does not land on the first
	// measured call.
	for _, input := range battery {
		v.Invoke(input)
	}

	calls := 0
	start := time.Now()
	for i := 0; i < b.iterations; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		for _, input := range battery {
			v.Invoke(input)
			calls++
		}
	}
	elapsed := time.Since(start)
	return float64(elapsed.Nanoseconds()) / float64(calls), nil
}
