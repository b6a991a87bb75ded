/*
Package fluvii implements transactional batch consumption on top of a kafka
client.

A consumer.Transactional groups consumed records into bounded batches,
tracks the first and last offset seen per partition within a batch, commits
the consumed range atomically together with whatever the caller produced
(through a transactional producer), and rolls the read position back to the
start of the batch when the downstream work fails. See cmd/consumer for an
example control loop.

This package holds the types shared by the subpackages: Message,
TopicPartition, Header, and the error wrapper.
*/
package fluvii
