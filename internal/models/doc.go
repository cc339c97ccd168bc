// Package models defines the domain entities shared across the cache, quota,
// and command layers.
//
// The package contains three categories of types:
//
// 1. Remote entities mirrored into the local cache:
//   - [Collection] : A remote playlist (or a locally-synthesized virtual one)
//   - [Item] : A video's membership in a collection, carrying its position
//
// 2. Bookkeeping records:
//   - [QuotaEntry] : Daily quota consumption against the configured budget
//
// 3. The closed command set for the reversible mutation engine:
//   - [Command] with one [Payload] variant per [CommandKind]
//   - [Clipboard] and [Selection], the staging state consumed when commands
//     are built
//
// Commands are immutable once created apart from their State field and the
// reverse-bookkeeping fields their payloads record on first application
// (remote-assigned item IDs needed to undo).
package models
