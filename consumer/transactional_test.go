package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ptoraskar/fluvii"
)

type mockProducer struct {
	active    bool
	begins    int
	sent      map[fluvii.TopicPartition]int64
	sentMeta  GroupMetadata
	commits   int
	beginErr  error
	sendErr   error
	commitErr error
}

func (p *mockProducer) ActiveTransaction() bool { return p.active }

func (p *mockProducer) BeginTransaction() error {
	if p.beginErr != nil {
		return p.beginErr
	}
	p.begins++
	p.active = true
	return nil
}

func (p *mockProducer) SendOffsetsToTransaction(_ context.Context, offsets map[fluvii.TopicPartition]int64, meta GroupMetadata) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = offsets
	p.sentMeta = meta
	return nil
}

func (p *mockProducer) CommitTransaction(_ context.Context) error {
	if p.commitErr != nil {
		return p.commitErr
	}
	p.commits++
	p.active = false
	return nil
}

var _ TxnProducer = &mockProducer{}

func transactional(client *mockClient) *Transactional {
	return &Transactional{Consumer: Consumer{Client: client, PollTimeout: time.Second}}
}

func TestUnitTransactionalConsumeTracksOffsets(t *testing.T) {
	client := &mockClient{queue: []*fluvii.Message{
		msg("test", 0, 10),
		msg("test", 0, 11),
		msg("test", 1, 7),
	}}
	tc := transactional(client)
	if tc.PendingCommits() {
		t.Fatal("expected no pending commits on a fresh batch")
	}
	for i := 0; i < 3; i++ {
		if _, err := tc.Consume(0, 1); err != nil {
			t.Fatal(err)
		}
	}
	if !tc.PendingCommits() {
		t.Fatal("expected pending commits")
	}
	starts := tc.tracker.Starts()
	if o := starts[fluvii.TopicPartition{Topic: "test", Partition: 0}]; o != 10 {
		t.Fatal(o)
	}
	ends := tc.tracker.Ends()
	if o := ends[fluvii.TopicPartition{Topic: "test", Partition: 0}]; o != 11 {
		t.Fatal(o)
	}
	if o := ends[fluvii.TopicPartition{Topic: "test", Partition: 1}]; o != 7 {
		t.Fatal(o)
	}
}

// tracked ends {(T,P): 41} commit as {(T,P): 42}, and a successful commit
// leaves the batch state empty
func TestUnitTransactionalCommit(t *testing.T) {
	client := &mockClient{
		queue: []*fluvii.Message{msg("test", 0, 41)},
		meta:  "group-metadata",
	}
	tc := transactional(client)
	if _, err := tc.Consume(0, 1); err != nil {
		t.Fatal(err)
	}
	producer := &mockProducer{}
	if err := tc.Commit(context.Background(), producer); err != nil {
		t.Fatal(err)
	}
	if producer.begins != 1 || producer.commits != 1 {
		t.Fatalf("%+v", producer)
	}
	if o := producer.sent[fluvii.TopicPartition{Topic: "test", Partition: 0}]; o != 42 {
		t.Fatal(o)
	}
	if producer.sentMeta != GroupMetadata("group-metadata") {
		t.Fatal(producer.sentMeta)
	}
	if tc.PendingCommits() {
		t.Fatal("expected no pending commits after commit")
	}
	if !tc.tracker.Empty() {
		t.Fatal("expected empty tracker after commit")
	}
	if tc.Message() != nil {
		t.Fatal("expected held message cleared")
	}
}

// the engine joins a transaction the caller already opened for its own
// produced writes instead of opening a second one
func TestUnitTransactionalCommitJoinsOpenTransaction(t *testing.T) {
	client := &mockClient{queue: []*fluvii.Message{msg("test", 0, 41)}}
	tc := transactional(client)
	if _, err := tc.Consume(0, 1); err != nil {
		t.Fatal(err)
	}
	producer := &mockProducer{active: true}
	if err := tc.Commit(context.Background(), producer); err != nil {
		t.Fatal(err)
	}
	if producer.begins != 0 {
		t.Fatal(producer.begins)
	}
	if producer.commits != 1 {
		t.Fatal(producer.commits)
	}
}

// commit with an empty tracker and no open transaction is a no-op besides
// state reset, idempotent under repeated calls
func TestUnitTransactionalCommitEmpty(t *testing.T) {
	tc := transactional(&mockClient{})
	producer := &mockProducer{}
	for i := 0; i < 3; i++ {
		if err := tc.Commit(context.Background(), producer); err != nil {
			t.Fatal(err)
		}
	}
	if producer.begins != 0 || producer.commits != 0 || producer.sent != nil {
		t.Fatalf("%+v", producer)
	}
}

// a failed commit leaves batch state intact so the caller may retry or fall
// back to rollback
func TestUnitTransactionalCommitFailureKeepsState(t *testing.T) {
	client := &mockClient{queue: []*fluvii.Message{msg("test", 0, 41)}}
	tc := transactional(client)
	if _, err := tc.Consume(0, 1); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("transaction coordinator fenced")
	producer := &mockProducer{commitErr: boom}
	if err := tc.Commit(context.Background(), producer); !errors.Is(err, boom) {
		t.Fatal(err)
	}
	if !tc.PendingCommits() {
		t.Fatal("expected batch state kept after failed commit")
	}
	if tc.tracker.Empty() {
		t.Fatal("expected tracker kept after failed commit")
	}
	// retry succeeds and resets
	producer.commitErr = nil
	if err := tc.Commit(context.Background(), producer); err != nil {
		t.Fatal(err)
	}
	if tc.PendingCommits() {
		t.Fatal("expected state reset after retried commit")
	}
}

// with maxCount = 5 and no time bound the 6th consume signals exhaustion
// without contacting the fetch client
func TestUnitTransactionalCountExhaustion(t *testing.T) {
	client := &mockClient{queue: []*fluvii.Message{
		msg("test", 0, 1), msg("test", 0, 2), msg("test", 0, 3),
		msg("test", 0, 4), msg("test", 0, 5), msg("test", 0, 6),
	}}
	tc := transactional(client)
	tc.Window = Window{MaxCount: 5}
	for i := 0; i < 5; i++ {
		if _, err := tc.Consume(0, 1); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := tc.Consume(0, 1); !errors.Is(err, ErrBatchExhausted) {
		t.Fatal(err)
	}
	if client.polls != 5 {
		t.Fatal(client.polls)
	}
	// a wider multiplier lets the recovery pass keep going
	if _, err := tc.Consume(0, 2); err != nil {
		t.Fatal(err)
	}
	if client.polls != 6 {
		t.Fatal(client.polls)
	}
}

// with maxDuration = 10s, first message at t=0 and the next consume at t=11
// signals exhaustion and restarts the next batch's timer
func TestUnitTransactionalTimeExhaustion(t *testing.T) {
	client := &mockClient{queue: []*fluvii.Message{msg("test", 0, 1), msg("test", 0, 2)}}
	tc := transactional(client)
	now := time.Unix(0, 0)
	tc.Window = Window{MaxDuration: 10 * time.Second, now: func() time.Time { return now }}
	if _, err := tc.Consume(0, 1); err != nil {
		t.Fatal(err)
	}
	now = now.Add(11 * time.Second)
	if _, err := tc.Consume(0, 1); !errors.Is(err, ErrBatchExhausted) {
		t.Fatal(err)
	}
	if client.polls != 1 {
		t.Fatal(client.polls)
	}
	if tc.Window.start != (time.Time{}) {
		t.Fatal(tc.Window.start)
	}
}

// empty poll on an empty batch stays ErrNoMessage; the identical poll on a
// non-empty batch means the partition is caught up and the batch ends
func TestUnitTransactionalEmptyPollReclassified(t *testing.T) {
	client := &mockClient{}
	tc := transactional(client)
	if _, err := tc.Consume(0, 1); !errors.Is(err, ErrNoMessage) {
		t.Fatal(err)
	}
	client.queue = []*fluvii.Message{msg("test", 0, 10)}
	if _, err := tc.Consume(0, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := tc.Consume(0, 1); !errors.Is(err, ErrBatchExhausted) {
		t.Fatal(err)
	}
}

// rollback seeks only partitions still assigned; revoked ones are skipped
func TestUnitTransactionalRollback(t *testing.T) {
	client := &mockClient{
		queue: []*fluvii.Message{
			msg("test", 0, 10),
			msg("test", 1, 7),
		},
		assigned: map[fluvii.TopicPartition]bool{
			{Topic: "test", Partition: 0}: true,
			// partition 1 was revoked by a rebalance
		},
		positions: map[fluvii.TopicPartition]int64{
			{Topic: "test", Partition: 0}: 10,
		},
	}
	tc := transactional(client)
	for i := 0; i < 2; i++ {
		if _, err := tc.Consume(0, 1); err != nil {
			t.Fatal(err)
		}
	}
	if err := tc.Rollback(); err != nil {
		t.Fatal(err)
	}
	if len(client.seeks) != 1 {
		t.Fatalf("%+v", client.seeks)
	}
	if s := client.seeks[0]; s != (seek{topic: "test", partition: 0, offset: 10}) {
		t.Fatalf("%+v", s)
	}
	if tc.PendingCommits() {
		t.Fatal("expected no pending commits after rollback")
	}
	if !tc.tracker.Empty() {
		t.Fatal("expected empty tracker after rollback")
	}
}

func TestUnitTransactionalRetainMessages(t *testing.T) {
	client := &mockClient{queue: []*fluvii.Message{
		msg("test", 0, 1), msg("test", 0, 2), msg("test", 0, 3),
	}}
	tc := transactional(client)
	tc.RetainMessages = true
	for i := 0; i < 3; i++ {
		if _, err := tc.Consume(0, 1); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(tc.Messages()); n != 3 {
		t.Fatal(n)
	}
	if err := tc.Commit(context.Background(), &mockProducer{}); err != nil {
		t.Fatal(err)
	}
	if tc.Messages() != nil {
		t.Fatal("expected retained messages discarded on finalize")
	}
}

// without retention only the most recent message is reachable
func TestUnitTransactionalMessagesWithoutRetention(t *testing.T) {
	client := &mockClient{queue: []*fluvii.Message{msg("test", 0, 1), msg("test", 0, 2)}}
	tc := transactional(client)
	for i := 0; i < 2; i++ {
		if _, err := tc.Consume(0, 1); err != nil {
			t.Fatal(err)
		}
	}
	mm := tc.Messages()
	if len(mm) != 1 || mm[0].Offset != 2 {
		t.Fatalf("%+v", mm)
	}
}
