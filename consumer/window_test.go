package consumer

import (
	"testing"
	"time"
)

func TestUnitWindowCountBudget(t *testing.T) {
	w := &Window{MaxCount: 5}
	for i := 0; i < 5; i++ {
		if !w.ShouldContinue(1) {
			t.Fatal(i)
		}
		w.RecordConsumed()
	}
	if w.ShouldContinue(1) {
		t.Fatal("expected count budget spent")
	}
	// multiplier widens the ceiling without changing configuration
	if !w.ShouldContinue(2) {
		t.Fatal("expected budget under multiplier")
	}
	w.Reset()
	if !w.ShouldContinue(1) {
		t.Fatal("expected budget after reset")
	}
	if w.Consumed() != 0 {
		t.Fatal(w.Consumed())
	}
}

func TestUnitWindowTimeBudget(t *testing.T) {
	now := time.Unix(0, 0)
	w := &Window{MaxDuration: 10 * time.Second, now: func() time.Time { return now }}
	if !w.ShouldContinue(1) { // stamps the start time at t=0
		t.Fatal("expected time budget at t=0")
	}
	now = now.Add(9 * time.Second)
	if !w.ShouldContinue(1) {
		t.Fatal("expected time budget at t=9")
	}
	now = now.Add(2 * time.Second)
	if w.ShouldContinue(1) {
		t.Fatal("expected time budget spent at t=11")
	}
	// the failed check cleared the start time, so the next batch's timer
	// starts fresh at its own first check
	if w.start != (time.Time{}) {
		t.Fatal(w.start)
	}
	if !w.ShouldContinue(1) {
		t.Fatal("expected fresh timer")
	}
	if w.start != now {
		t.Fatal(w.start)
	}
}

func TestUnitWindowUnbounded(t *testing.T) {
	w := &Window{}
	for i := 0; i < 1000; i++ {
		w.RecordConsumed()
	}
	if !w.ShouldContinue(1) {
		t.Fatal("unbounded window must never signal full")
	}
}
