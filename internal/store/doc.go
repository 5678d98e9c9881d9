// Package store persists users and notes in SQLite.
//
// Open(path, busyTimeout) opens the database, applies pragmas (WAL,
// busy_timeout) and runs the idempotent schema migration. All methods are
// safe for concurrent use from multiple connection handlers; writes are
// funneled through a single SQL connection because SQLite prefers a single
// writer.
//
// The REST API uses the owner-scoped methods (NoteForUser, UpdateNote,
// DeleteNote). The WebSocket hub uses Get and ApplyMutation, which are
// unscoped — the realtime channel trusts the already-authenticated session.
package store
