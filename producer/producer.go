// Package producer implements the transactional kafka producer the batch
// engine commits through. Produced writes and the consumed offset range are
// attached to one transaction, so both become visible together or not at
// all.
package producer

import (
	"context"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ptoraskar/fluvii"
	"github.com/ptoraskar/fluvii/config"
	"github.com/ptoraskar/fluvii/consumer"
)

// Producer wraps an idempotent, transaction-enabled kafka producer and
// tracks whether a transaction is currently open. Not safe for concurrent
// use; it is owned by one caller/engine pair.
type Producer struct {
	producer *kafka.Producer
	logger   *zap.Logger
	active   bool
}

var _ consumer.TxnProducer = &Producer{}

func configMap(cfg *config.Config) *kafka.ConfigMap {
	m := kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(cfg.Bootstrap, ","),
		"transactional.id":   cfg.TransactionalID,
		"enable.idempotence": true,
	}
	if a := cfg.Auth; a != nil {
		m["security.protocol"] = a.Protocol
		m["sasl.mechanisms"] = a.Mechanism
		m["sasl.username"] = a.Username
		m["sasl.password"] = a.Password
	}
	return &m
}

// New connects the producer and registers its transactional id with the
// broker (fencing off any previous incarnation with the same id).
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	kp, err := kafka.NewProducer(configMap(cfg))
	if err != nil {
		return nil, fluvii.Errorf("creating producer: %w", err)
	}
	if err := kp.InitTransactions(ctx); err != nil {
		kp.Close()
		return nil, fluvii.Errorf("initializing transactions: %w", err)
	}
	logger.Info("transactional producer initialized",
		zap.String("transactional_id", cfg.TransactionalID))
	return &Producer{producer: kp, logger: logger}, nil
}

// ActiveTransaction reports whether a transaction is currently open.
func (p *Producer) ActiveTransaction() bool { return p.active }

func (p *Producer) BeginTransaction() error {
	if err := p.producer.BeginTransaction(); err != nil {
		return err
	}
	p.active = true
	p.logger.Debug("transaction started")
	return nil
}

// Produce enqueues one record within the current transaction, opening a
// transaction first if none is active. A guid header is added when the
// record does not already carry one.
func (p *Producer) Produce(topic string, key, value []byte, headers []fluvii.Header) error {
	if !p.active {
		if err := p.BeginTransaction(); err != nil {
			return err
		}
	}
	return p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            key,
		Value:          value,
		Headers:        toKafkaHeaders(headers),
	}, nil)
}

// SendOffsetsToTransaction attaches consumed offsets to the open
// transaction against the consumer's group identity.
func (p *Producer) SendOffsetsToTransaction(ctx context.Context, offsets map[fluvii.TopicPartition]int64, meta consumer.GroupMetadata) error {
	groupMeta, ok := meta.(*kafka.ConsumerGroupMetadata)
	if !ok {
		return fluvii.Errorf("unexpected group metadata type %T", meta)
	}
	return p.producer.SendOffsetsToTransaction(ctx, toKafkaOffsets(offsets), groupMeta)
}

func (p *Producer) CommitTransaction(ctx context.Context) error {
	if err := p.producer.CommitTransaction(ctx); err != nil {
		return err
	}
	p.active = false
	p.logger.Debug("transaction committed")
	return nil
}

// AbortTransaction discards the open transaction. Callers abort alongside a
// batch rollback; the engine itself never aborts.
func (p *Producer) AbortTransaction(ctx context.Context) error {
	if err := p.producer.AbortTransaction(ctx); err != nil {
		return err
	}
	p.active = false
	p.logger.Info("transaction aborted")
	return nil
}

func (p *Producer) Close() {
	p.producer.Close()
}

func toKafkaOffsets(offsets map[fluvii.TopicPartition]int64) []kafka.TopicPartition {
	tps := make([]kafka.TopicPartition, 0, len(offsets))
	for tp, offset := range offsets {
		topic := tp.Topic
		tps = append(tps, kafka.TopicPartition{
			Topic:     &topic,
			Partition: tp.Partition,
			Offset:    kafka.Offset(offset),
		})
	}
	return tps
}

func toKafkaHeaders(headers []fluvii.Header) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers)+1)
	hasGUID := false
	for _, h := range headers {
		if h.Key == "guid" {
			hasGUID = true
		}
		out = append(out, kafka.Header{Key: h.Key, Value: h.Value})
	}
	if !hasGUID {
		out = append(out, kafka.Header{Key: "guid", Value: []byte(uuid.NewString())})
	}
	return out
}
