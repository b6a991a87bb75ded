package consumer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ptoraskar/fluvii"
	"github.com/ptoraskar/fluvii/offsets"
)

// DefaultCommitTimeout bounds the wait for the producer's transaction
// commit when CommitTimeout is not set.
const DefaultCommitTimeout = 30 * time.Second

// Transactional consumes messages in bounded batches and finalizes each
// batch either by committing the consumed offset range atomically with the
// caller's produced writes, or by rolling the read position back to the
// start of the batch. Exactly one batch is in flight at a time. Set public
// field values before use. Not safe for concurrent use.
type Transactional struct {
	Consumer
	// Batch bounds. Zero-value Window disables both bounds.
	Window Window
	// Retain every message of the batch, not just the most recent one.
	RetainMessages bool
	// Bound on the transaction commit wait. <= 0 means
	// DefaultCommitTimeout.
	CommitTimeout time.Duration
	//
	tracker  offsets.Tracker
	messages []*fluvii.Message
}

// Consume returns the next message of the current batch. It returns
// ErrBatchExhausted, without touching the network, once the window's count
// or time budget is spent; multiplier >= 1 temporarily widens the count
// ceiling. An empty poll on a batch that already holds tracked offsets is
// also reported as ErrBatchExhausted: the partition is caught up, so the
// batch ends rather than surfacing a bare empty poll. An empty poll on an
// empty batch stays ErrNoMessage.
func (c *Transactional) Consume(timeout time.Duration, multiplier int) (*fluvii.Message, error) {
	if !c.Window.ShouldContinue(multiplier) {
		return nil, ErrBatchExhausted
	}
	m, err := c.Consumer.Consume(timeout)
	if err != nil {
		if errors.Is(err, ErrNoMessage) && !c.tracker.Empty() {
			return nil, ErrBatchExhausted
		}
		return nil, err
	}
	c.tracker.RecordStart(m.Topic, m.Partition, m.Offset)
	c.tracker.RecordEnd(m.Topic, m.Partition, m.Offset)
	c.Window.RecordConsumed()
	if c.RetainMessages {
		c.messages = append(c.messages, m)
	}
	return m, nil
}

// Commit finalizes the batch through the producer's transaction. The
// tracked end offsets, advanced by one, are attached to the transaction
// (opening one if the producer has none active) against this consumer's
// group identity, and the transaction is committed with a bounded wait. If
// the producer already has a transaction open from the caller's own writes
// it is committed even when this batch tracked nothing. On success all
// batch state is reset. On failure batch state is left intact so the caller
// may retry the commit or fall back to Rollback. Commit with an empty
// tracker and no active transaction only resets state.
func (c *Transactional) Commit(ctx context.Context, producer TxnProducer) error {
	next := c.tracker.Next()
	if len(next) > 0 {
		if !producer.ActiveTransaction() {
			if err := producer.BeginTransaction(); err != nil {
				return err
			}
		}
		meta, err := c.Client.GroupMetadata()
		if err != nil {
			return err
		}
		if err := producer.SendOffsetsToTransaction(ctx, next, meta); err != nil {
			return err
		}
	}
	if producer.ActiveTransaction() {
		timeout := c.CommitTimeout
		if timeout <= 0 {
			timeout = DefaultCommitTimeout
		}
		commitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := producer.CommitTransaction(commitCtx); err != nil {
			return err
		}
	}
	c.reset()
	return nil
}

// Rollback discards the batch by repositioning the read cursor to each
// tracked start offset. Partitions revoked by a concurrent rebalance are
// skipped: seeking a partition this instance no longer owns would affect its
// new owner. The skip is logged at Warn because the new owner may already
// have advanced past the rollback point. Rollback never touches the
// producer; aborting (or never opening) the transaction for the discarded
// batch is the caller's responsibility.
func (c *Transactional) Rollback() error {
	c.logger().Info("rolling back to earliest uncommitted offsets")
	assigned, err := c.Client.Assignment()
	if err != nil {
		return err
	}
	for tp, offset := range c.tracker.Starts() {
		if !assigned[tp] {
			c.logger().Warn("skipping rollback of revoked partition",
				zap.String("topic", tp.Topic),
				zap.Int32("partition", tp.Partition),
				zap.Int64("offset", offset),
			)
			continue
		}
		if err := c.Client.Seek(tp.Topic, tp.Partition, offset); err != nil {
			return fluvii.Errorf("seeking %s partition %d to offset %d: %w",
				tp.Topic, tp.Partition, offset, err)
		}
		position, err := c.Client.Position(tp.Topic, tp.Partition)
		if err != nil {
			return err
		}
		c.logger().Info("partition rolled back",
			zap.String("topic", tp.Topic),
			zap.Int32("partition", tp.Partition),
			zap.Int64("position", position),
		)
	}
	c.reset()
	return nil
}

// PendingCommits is true iff at least one message has been consumed since
// the last Commit or Rollback.
func (c *Transactional) PendingCommits() bool {
	return c.Window.Consumed() > 0
}

// Messages is the retained batch when RetainMessages is set, otherwise the
// currently held message.
func (c *Transactional) Messages() []*fluvii.Message {
	if c.RetainMessages {
		return c.messages
	}
	return c.Consumer.Messages()
}

func (c *Transactional) reset() {
	c.held = nil
	c.tracker.Reset()
	c.Window.Reset()
	c.messages = nil
}
