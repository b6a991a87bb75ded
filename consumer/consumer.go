package consumer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ptoraskar/fluvii"
)

// ErrNoMessage is returned by Consume when the poll times out with nothing
// available. It is a control signal, not a failure: retry or treat as idle.
var ErrNoMessage = fluvii.Errorf("no message available")

// ErrBatchExhausted is returned by Transactional.Consume when the current
// batch has reached a boundary. It is a control signal, not a failure:
// commit or roll back, then start a new batch.
var ErrBatchExhausted = fluvii.Errorf("batch exhausted")

// GroupMetadata is the opaque consumer-group identity blob obtained from the
// broker client and handed to the producer's transaction. The engines never
// inspect it.
type GroupMetadata interface{}

// Client is the broker client capability set the engines consume. The
// client package implements it on confluent-kafka-go; it is an interface to
// keep the contract narrow and to make mocking out tests easier.
type Client interface {
	// Poll returns the next fetched message, or (nil, nil) when nothing
	// arrived within timeout.
	Poll(timeout time.Duration) (*fluvii.Message, error)
	// Seek repositions the read cursor for a partition this client owns.
	Seek(topic string, partition int32, offset int64) error
	// Assignment is the set of partitions currently owned by this client.
	Assignment() (map[fluvii.TopicPartition]bool, error)
	// Position is the offset of the next message to be fetched.
	Position(topic string, partition int32) (int64, error)
	// StoreOffset marks the message's offset as safe to resume from on
	// the next group commit. No network round trip.
	StoreOffset(m *fluvii.Message) error
	GroupMetadata() (GroupMetadata, error)
}

// Metrics is the optional metrics collaborator notified on every
// consumption.
type Metrics interface {
	SetSecondsBehind(seconds int64)
	IncMessagesConsumed(n int, topic string)
}

// TxnProducer is the transactional producer capability set used by
// Transactional.Commit. Aborting a transaction is deliberately absent: the
// engine never aborts, that is the caller's job alongside Rollback.
type TxnProducer interface {
	ActiveTransaction() bool
	BeginTransaction() error
	SendOffsetsToTransaction(ctx context.Context, offsets map[fluvii.TopicPartition]int64, meta GroupMetadata) error
	CommitTransaction(ctx context.Context) error
}

// Consumer drives single-message fetch-and-validate cycles. It holds at most
// one message at a time: the one returned by the latest Consume, until
// Commit clears it or the next Consume replaces it. Set public field values
// before use. Not safe for concurrent use.
type Consumer struct {
	Client Client
	// Optional.
	Metrics Metrics
	// Optional, nop when nil.
	Logger *zap.Logger
	// Used when Consume is called with timeout <= 0.
	PollTimeout time.Duration
	//
	held *fluvii.Message
	now  func() time.Time
}

func (c *Consumer) logger() *zap.Logger {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c.Logger
}

func (c *Consumer) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// Consume polls the client for one message. timeout <= 0 means PollTimeout.
// An empty poll returns ErrNoMessage. A fetched message is held, validated
// (a corrupt record surfaces as *fluvii.CorruptMessageError, any other
// transport error passes through), observed by the metrics collaborator, and
// returned.
func (c *Consumer) Consume(timeout time.Duration) (*fluvii.Message, error) {
	if timeout <= 0 {
		timeout = c.PollTimeout
	}
	m, err := c.Client.Poll(timeout)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNoMessage
	}
	c.held = m
	if err := m.Validate(); err != nil {
		return nil, err
	}
	c.observe(m)
	return m, nil
}

func (c *Consumer) observe(m *fluvii.Message) {
	if c.Metrics != nil {
		c.Metrics.SetSecondsBehind(c.clock().Unix() - m.Timestamp/1000)
		c.Metrics.IncMessagesConsumed(1, m.Topic)
	}
	if m.IsChangelog() {
		// changelog traffic is routine and noisy
		return
	}
	c.logger().Info("message consumed",
		zap.String("topic", m.Topic),
		zap.Int32("partition", m.Partition),
		zap.Int64("offset", m.Offset),
		zap.String("guid", m.GUID()),
	)
	c.logger().Debug("consumed message key", zap.ByteString("key", m.Key))
}

// Commit marks the held message's offset as safe to resume from (store
// only, no forced network round trip) and releases the message. Commit with
// no held message is a nop.
func (c *Consumer) Commit() error {
	if c.held == nil {
		return nil
	}
	if err := c.Client.StoreOffset(c.held); err != nil {
		return err
	}
	c.held = nil
	return nil
}

// Message is the currently held message, nil when none is held.
func (c *Consumer) Message() *fluvii.Message { return c.held }

// Messages is the held message as a one-element slice, for callers that
// treat single-message and batch consumption uniformly.
func (c *Consumer) Messages() []*fluvii.Message {
	if c.held == nil {
		return nil
	}
	return []*fluvii.Message{c.held}
}

// Key returns a copy of the held message's key. Valid only while a message
// is held; returns nil otherwise.
func (c *Consumer) Key() []byte {
	if c.held == nil {
		return nil
	}
	return c.held.KeyCopy()
}

// Value returns a copy of the held message's value. Valid only while a
// message is held; returns nil otherwise.
func (c *Consumer) Value() []byte {
	if c.held == nil {
		return nil
	}
	return c.held.ValueCopy()
}

// Headers returns a deep copy of the held message's headers. Valid only
// while a message is held; returns nil otherwise.
func (c *Consumer) Headers() []fluvii.Header {
	if c.held == nil {
		return nil
	}
	return c.held.HeadersCopy()
}
