// Package repositories provides the persistence layer: the cache store
// holding mirrored remote entities with TTL and LRU eviction, and the quota
// ledger tracking daily budget consumption.
//
// Both are backed by the same SQLite database opened via internal/shared and
// are accessed only from the single coordinating task, so neither takes
// in-process locks; the database file itself is protected from other
// processes by an advisory file lock.
package repositories
