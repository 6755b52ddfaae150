package progress

// SpinnerProgressTracker reports progress for work whose total is unknown up
// front, such as a directory walk.
type SpinnerProgressTracker interface {
	SetMessage(msg string)
	SetDone(n int)
	SetError(err error)
	MarkFinished()
}

type NoopSpinnerProgressTracker struct{}

var _ SpinnerProgressTracker = NoopSpinnerProgressTracker{}

func (n NoopSpinnerProgressTracker) SetMessage(msg string) {}
func (n NoopSpinnerProgressTracker) SetDone(n2 int)        {}
func (n NoopSpinnerProgressTracker) SetError(err error)    {}
func (n NoopSpinnerProgressTracker) MarkFinished()         {}
