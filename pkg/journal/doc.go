// Package journal records oracle and exchange events for audit.
//
// Two implementations of Journal are provided:
//   - MemoryJournal: in-process, for tests, drills and deployments without a database.
//   - PostgresJournal: durable, backed by a pgx connection pool.
//
// The journal is an audit trail, not the source of truth: components write to
// it after a state change has been applied, and a failed write never undoes
// the change.
package journal
