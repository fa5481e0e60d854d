// Package outbox implements the transactional outbox pattern for relaying
// domain events from a relational store to a log-structured stream.
//
// Typical flow:
//  1. Within a business transaction, record events through a Writer backed by
//     a storage-specific Appender.
//  2. Run a Relay with a storage-specific Claimer to periodically claim
//     pending events and hand them to a Publisher.
//  3. Published events are marked SENT; failed attempts increment a retry
//     counter and events exhausting their retry budget are dead-lettered.
//
// Delivery to the stream is at-least-once: a publish that succeeds just
// before a failed batch commit is re-published on the next run. Consumers
// must deduplicate by event id.
//
// For the PostgreSQL store (SKIP LOCKED claiming) see the postgres package;
// for stream publishers see the redisstream and kafka packages.
package outbox
