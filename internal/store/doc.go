// Package store provides SQLite-backed run history for omtest.
//
// The store keeps two tables:
//   - runs: one row per suite execution, keyed by a UUIDv7 id
//   - case_results: one row per tested model, ordered by seq within a run
//
// Writes are idempotent (ON CONFLICT DO NOTHING) so a run can be recorded
// again after a partial failure. Reads are ordered deterministically:
// runs by started_at then id, case results by seq.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability and speed
//   - busy_timeout=5000: wait for locks held by another omtest process
//   - foreign_keys=ON: case results cannot outlive their run
package store
