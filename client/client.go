// Package client implements the broker client capability set on
// confluent-kafka-go. It exposes only the operations the consumption
// engines use; everything else librdkafka does (rebalancing, retries,
// compression) stays internal to the wrapped consumer.
package client

import (
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/ptoraskar/fluvii"
	"github.com/ptoraskar/fluvii/config"
	"github.com/ptoraskar/fluvii/consumer"
)

type Client struct {
	consumer *kafka.Consumer
	logger   *zap.Logger
}

var _ consumer.Client = &Client{}

// configMap assembles the librdkafka consumer configuration. Offsets are
// never auto-stored: a consumed message must not become committable before
// it is actually finished. Transactional mode additionally reads only
// committed records and disables auto commit (offsets move exclusively
// through the producer's transaction).
func configMap(cfg *config.Config, transactional bool) *kafka.ConfigMap {
	m := kafka.ConfigMap{
		"bootstrap.servers":             strings.Join(cfg.Bootstrap, ","),
		"group.id":                      cfg.GroupID,
		"enable.auto.offset.store":      false,
		"partition.assignment.strategy": "cooperative-sticky",
	}
	if transactional {
		m["isolation.level"] = "read_committed"
		m["enable.auto.commit"] = false
	}
	if a := cfg.Auth; a != nil {
		m["security.protocol"] = a.Protocol
		m["sasl.mechanisms"] = a.Mechanism
		m["sasl.username"] = a.Username
		m["sasl.password"] = a.Password
	}
	return &m
}

// New connects a consumer and, unless auto-subscribe is disabled,
// subscribes it to the configured topics. transactional selects the
// read-committed configuration used under a transactional engine.
func New(cfg *config.Config, transactional bool, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	kc, err := kafka.NewConsumer(configMap(cfg, transactional))
	if err != nil {
		return nil, fluvii.Errorf("creating consumer: %w", err)
	}
	logger.Info("consumer initialized", zap.String("group", cfg.GroupID))
	if cfg.AutoSubscribe {
		if err := kc.SubscribeTopics(cfg.Topics, nil); err != nil {
			kc.Close()
			return nil, fluvii.Errorf("subscribing to %v: %w", cfg.Topics, err)
		}
		logger.Info("consumer subscribed", zap.Strings("topics", cfg.Topics))
	}
	return &Client{consumer: kc, logger: logger}, nil
}

// Poll fetches one event from the broker. A fetched record is returned as a
// message; nothing within the timeout returns (nil, nil); broker errors are
// returned as errors. Informational events (stats, rebalance notices) are
// treated as an empty poll.
func (c *Client) Poll(timeout time.Duration) (*fluvii.Message, error) {
	ev := c.consumer.Poll(int(timeout / time.Millisecond))
	switch e := ev.(type) {
	case nil:
		return nil, nil
	case *kafka.Message:
		return fromKafka(e), nil
	case kafka.Error:
		return nil, fluvii.Errorf("poll: %w", e)
	default:
		c.logger.Debug("ignoring poll event", zap.String("event", e.String()))
		return nil, nil
	}
}

func fromKafka(m *kafka.Message) *fluvii.Message {
	msg := &fluvii.Message{
		Partition: m.TopicPartition.Partition,
		Offset:    int64(m.TopicPartition.Offset),
		Key:       m.Key,
		Value:     m.Value,
		Timestamp: m.Timestamp.UnixMilli(),
		Err:       m.TopicPartition.Error,
	}
	if m.TopicPartition.Topic != nil {
		msg.Topic = *m.TopicPartition.Topic
	}
	for _, h := range m.Headers {
		msg.Headers = append(msg.Headers, fluvii.Header{Key: h.Key, Value: h.Value})
	}
	return msg
}

func (c *Client) Seek(topic string, partition int32, offset int64) error {
	return c.consumer.Seek(kafka.TopicPartition{
		Topic:     &topic,
		Partition: partition,
		Offset:    kafka.Offset(offset),
	}, 0)
}

func (c *Client) Assignment() (map[fluvii.TopicPartition]bool, error) {
	tps, err := c.consumer.Assignment()
	if err != nil {
		return nil, err
	}
	assigned := make(map[fluvii.TopicPartition]bool, len(tps))
	for _, tp := range tps {
		if tp.Topic == nil {
			continue
		}
		assigned[fluvii.TopicPartition{Topic: *tp.Topic, Partition: tp.Partition}] = true
	}
	return assigned, nil
}

func (c *Client) Position(topic string, partition int32) (int64, error) {
	tps, err := c.consumer.Position([]kafka.TopicPartition{
		{Topic: &topic, Partition: partition},
	})
	if err != nil {
		return 0, err
	}
	if len(tps) != 1 {
		return 0, fluvii.Errorf("no position for %s partition %d", topic, partition)
	}
	return int64(tps[0].Offset), nil
}

// StoreOffset marks the message as consumed. librdkafka resumes from the
// stored offset, so the stored value is the consumed offset plus one.
func (c *Client) StoreOffset(m *fluvii.Message) error {
	topic := m.Topic
	_, err := c.consumer.StoreOffsets([]kafka.TopicPartition{{
		Topic:     &topic,
		Partition: m.Partition,
		Offset:    kafka.Offset(m.Offset + 1),
	}})
	return err
}

func (c *Client) GroupMetadata() (consumer.GroupMetadata, error) {
	return c.consumer.GetConsumerGroupMetadata()
}

func (c *Client) Close() error {
	return c.consumer.Close()
}
