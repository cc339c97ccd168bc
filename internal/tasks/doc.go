// package tasks implements the coordinating layer between the UI/CLI and the
// persistence and gateway layers.
//
// The two core abstractions are CommandEngine, which executes reversible
// mutation commands against the remote service with quota accounting and
// undo/redo history, and SyncCoordinator, which decides between serving
// cached listings and fetching fresh ones, handling pagination, merging, and
// superseding of in-flight refreshes. Session wires both over one locked
// database and is the single entry point for callers.
//
// Long-running operations emit progress updates via channels for
// non-blocking status reporting to CLI/UI layers.
package tasks
