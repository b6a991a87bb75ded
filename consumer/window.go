package consumer

import "time"

// Window bounds a batch by message count and by elapsed wall-clock time.
// Either bound may be left at zero to disable it; with both disabled the
// window never signals full. Set field values before use. Not safe for
// concurrent use.
type Window struct {
	// Maximum messages per batch. 0 disables the count bound.
	MaxCount int
	// Maximum elapsed time since the batch's first ShouldContinue check.
	// 0 disables the time bound.
	MaxDuration time.Duration
	//
	consumed int
	start    time.Time
	now      func() time.Time
}

func (w *Window) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}

// hasTimeBudget stamps the window start lazily on the first call after a
// reset. When the budget is exceeded it clears the start time so the next
// batch's timer starts fresh on its own first check.
func (w *Window) hasTimeBudget() bool {
	if w.MaxDuration <= 0 {
		return true
	}
	if w.start.IsZero() {
		w.start = w.clock()
		return true
	}
	if w.clock().Sub(w.start) < w.MaxDuration {
		return true
	}
	w.start = time.Time{}
	return false
}

// hasCountBudget widens the configured ceiling by multiplier, which lets a
// caller temporarily allow a larger batch (a recovery pass) without changing
// configuration. multiplier < 1 is treated as 1.
func (w *Window) hasCountBudget(multiplier int) bool {
	if w.MaxCount <= 0 {
		return true
	}
	if multiplier < 1 {
		multiplier = 1
	}
	return w.consumed < w.MaxCount*multiplier
}

// ShouldContinue is true while the batch has both count and time budget
// left.
func (w *Window) ShouldContinue(multiplier int) bool {
	return w.hasCountBudget(multiplier) && w.hasTimeBudget()
}

// RecordConsumed counts one consumed message against the batch.
func (w *Window) RecordConsumed() { w.consumed++ }

// Consumed is the number of messages counted since the last Reset.
func (w *Window) Consumed() int { return w.consumed }

// Reset clears the consumed count and the window start time.
func (w *Window) Reset() {
	w.consumed = 0
	w.start = time.Time{}
}
