// Package consumer implements the consumption engines. A Consumer drives
// single-message fetch-and-validate cycles against a broker client and owns
// no batch state. A Transactional layers batch bookkeeping on top: a Window
// bounds the batch by count and wall-clock time, an offsets.Tracker records
// the consumed range per partition, Commit attaches that range to a producer
// transaction, and Rollback rewinds the read position to the start of the
// batch.
//
// The broker client and the transactional producer are consumed through the
// Client and TxnProducer interfaces. The interfaces exist to keep the
// contract narrow (only the operations the engines actually use) and to make
// mocking out tests easier; the real implementations are in the client and
// producer packages.
//
// Consume returns two sentinel control signals that drive the caller's loop
// and are not failures: ErrNoMessage (empty poll, nothing fetched) and
// ErrBatchExhausted (the batch reached a boundary: count limit, time limit,
// or the broker is caught up with a non-empty batch). Everything else
// returned from Consume is an error that ends the current batch attempt.
package consumer
