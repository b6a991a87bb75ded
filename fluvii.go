package fluvii

import (
	"strings"

	"github.com/google/uuid"
)

// TopicPartition identifies one partition of one topic. It is the key for
// all per-partition offset bookkeeping.
type TopicPartition struct {
	Topic     string
	Partition int32
}

// Header is a single record header. Order of headers on a message is
// preserved as returned by the broker.
type Header struct {
	Key   string
	Value []byte
}

// Message is an immutable snapshot of one fetched record. It is owned by
// whichever engine last fetched it and is replaced wholesale on each fetch;
// do not mutate fields after creation. Err carries the transport-level error
// reported by the broker client for this record, if any.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   []Header
	// Epoch milliseconds.
	Timestamp int64
	Err       error
}

// KeyCopy returns a copy of the message key. Mutating the returned slice
// does not affect the message.
func (m *Message) KeyCopy() []byte {
	if m.Key == nil {
		return nil
	}
	k := make([]byte, len(m.Key))
	copy(k, m.Key)
	return k
}

// ValueCopy returns a copy of the message value. Value may be nil
// (tombstone).
func (m *Message) ValueCopy() []byte {
	if m.Value == nil {
		return nil
	}
	v := make([]byte, len(m.Value))
	copy(v, m.Value)
	return v
}

// HeadersCopy returns a deep copy of the message headers.
func (m *Message) HeadersCopy() []Header {
	if m.Headers == nil {
		return nil
	}
	hh := make([]Header, len(m.Headers))
	for i, h := range m.Headers {
		v := make([]byte, len(h.Value))
		copy(v, h.Value)
		hh[i] = Header{Key: h.Key, Value: v}
	}
	return hh
}

// IsChangelog is true for internal compaction-log topics. Used only to
// suppress routine per-message logging, never for correctness.
func (m *Message) IsChangelog() bool {
	return strings.Contains(m.Topic, "__changelog")
}

// GUID returns the value of the "guid" header if present and a valid UUID,
// otherwise "". Informational, used for log correlation.
func (m *Message) GUID() string {
	for _, h := range m.Headers {
		if h.Key != "guid" {
			continue
		}
		if id, err := uuid.ParseBytes(h.Value); err == nil {
			return id.String()
		}
		return string(h.Value)
	}
	return ""
}

// corruptSignature is the known transport error text for records whose
// headers could not be read. Messages carrying it are considered corrupt.
const corruptSignature = "headers inaccessible"

// CorruptMessageError indicates the broker-reported error pattern for a
// corrupt record. It must propagate to the caller; skipping a corrupt
// message silently would lose data.
type CorruptMessageError struct {
	Topic     string
	Partition int32
	Offset    int64
	Cause     error
}

func (e *CorruptMessageError) Error() string {
	return "corrupt message on topic " + e.Topic + ": " + e.Cause.Error()
}

func (e *CorruptMessageError) Unwrap() error { return e.Cause }

// Validate checks the transport error attached to the message. It returns
// *CorruptMessageError when the error carries the headers-inaccessible
// corruption signature, the transport error unchanged for anything else,
// and nil for a clean message.
func (m *Message) Validate() error {
	if m.Err == nil {
		return nil
	}
	if strings.Contains(m.Err.Error(), corruptSignature) {
		return &CorruptMessageError{
			Topic:     m.Topic,
			Partition: m.Partition,
			Offset:    m.Offset,
			Cause:     m.Err,
		}
	}
	return m.Err
}
