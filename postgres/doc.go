// Package postgres implements the outbox event store on PostgreSQL.
//
// Events are appended inside the caller's transaction and claimed for
// relaying with SELECT ... FOR UPDATE SKIP LOCKED, so concurrent relay
// instances never receive overlapping batches. Status updates stay inside
// the claim transaction and commit as one unit with the claim locks.
package postgres
