package scan

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// stats tracks progress with atomic counters so hashing workers can update
// it without going through the accumulator.
type stats struct {
	files     atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	bytes     atomic.Int64
	startTime time.Time
}

func newStats() *stats {
	return &stats{startTime: time.Now()}
}

func (s *stats) record(fp Fingerprint, size int64) int64 {
	switch fp.Status {
	case Skipped:
		s.skipped.Add(1)
	case Failed:
		s.failed.Add(1)
	default:
		s.bytes.Add(size)
	}
	return s.files.Add(1)
}

func (s *stats) String() string {
	return fmt.Sprintf("Scanned %d files (%s hashed, %d skipped, %d failed) in %.1fs",
		s.files.Load(), humanize.IBytes(uint64(s.bytes.Load())),
		s.skipped.Load(), s.failed.Load(),
		time.Since(s.startTime).Seconds())
}

// String renders the summary in one line for logs and reports.
func (s Summary) String() string {
	return fmt.Sprintf("%d files (%s), %d hashed, %d skipped, %d failed, %d duplicates wasting %s, %s",
		s.Files, humanize.IBytes(uint64(s.Bytes)), s.Hashed, s.Skipped, s.Failed,
		s.Duplicates, humanize.IBytes(uint64(s.Wasted)), s.Elapsed.Round(time.Millisecond))
}
