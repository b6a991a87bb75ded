// Package offsets implements per-batch offset range bookkeeping. A Tracker
// records, for every topic partition touched within a batch, the offset of
// the first message seen (where a rollback rewinds to) and the offset of the
// most recent message seen (what a commit advances past).
package offsets

import "github.com/ptoraskar/fluvii"

// Tracker keeps the consumed offset range per topic partition for the
// current batch. The zero value is ready to use. Not safe for concurrent
// use; it is owned by a single engine instance.
type Tracker struct {
	starts map[fluvii.TopicPartition]int64
	ends   map[fluvii.TopicPartition]int64
}

// RecordStart sets the batch start offset for the partition. Only the first
// call per partition per batch takes effect; subsequent calls are ignored
// until Reset.
func (t *Tracker) RecordStart(topic string, partition int32, offset int64) {
	if t.starts == nil {
		t.starts = make(map[fluvii.TopicPartition]int64)
	}
	tp := fluvii.TopicPartition{Topic: topic, Partition: partition}
	if _, ok := t.starts[tp]; ok {
		return
	}
	t.starts[tp] = offset
}

// RecordEnd overwrites the batch end offset for the partition.
func (t *Tracker) RecordEnd(topic string, partition int32, offset int64) {
	if t.ends == nil {
		t.ends = make(map[fluvii.TopicPartition]int64)
	}
	t.ends[fluvii.TopicPartition{Topic: topic, Partition: partition}] = offset
}

// Starts returns a snapshot of the tracked start offsets. Iteration order of
// the returned map is not stable.
func (t *Tracker) Starts() map[fluvii.TopicPartition]int64 {
	return snapshot(t.starts)
}

// Ends returns a snapshot of the tracked end offsets.
func (t *Tracker) Ends() map[fluvii.TopicPartition]int64 {
	return snapshot(t.ends)
}

// Next returns, per partition, the offset to resume consumption from after
// the batch commits: tracked end + 1.
func (t *Tracker) Next() map[fluvii.TopicPartition]int64 {
	next := make(map[fluvii.TopicPartition]int64, len(t.ends))
	for tp, offset := range t.ends {
		next[tp] = offset + 1
	}
	return next
}

// Empty is true when no offsets have been recorded since the last Reset.
func (t *Tracker) Empty() bool {
	return len(t.ends) == 0 && len(t.starts) == 0
}

// Reset clears all tracked ranges. Called when a batch is finalized.
func (t *Tracker) Reset() {
	t.starts = nil
	t.ends = nil
}

func snapshot(m map[fluvii.TopicPartition]int64) map[fluvii.TopicPartition]int64 {
	out := make(map[fluvii.TopicPartition]int64, len(m))
	for tp, offset := range m {
		out[tp] = offset
	}
	return out
}
