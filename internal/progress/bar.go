package progress

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// BarSpinnerProgressTracker draws a terminal spinner with a running file count.
type BarSpinnerProgressTracker struct {
	bar *progressbar.ProgressBar
}

var _ SpinnerProgressTracker = (*BarSpinnerProgressTracker)(nil)

func NewBarSpinnerProgressTracker(w io.Writer, description string) *BarSpinnerProgressTracker {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	return &BarSpinnerProgressTracker{bar: bar}
}

func (b *BarSpinnerProgressTracker) SetMessage(msg string) {
	b.bar.Describe(msg)
}

func (b *BarSpinnerProgressTracker) SetDone(n int) {
	b.bar.Set(n)
}

func (b *BarSpinnerProgressTracker) SetError(err error) {
	b.bar.Describe("error: " + err.Error())
}

func (b *BarSpinnerProgressTracker) MarkFinished() {
	b.bar.Finish()
}
