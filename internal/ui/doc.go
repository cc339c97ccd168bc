// Package ui implements an interactive terminal browser using bubbletea's
// Elm architecture.
//
// The TUI provides a two-level filesystem-style workflow:
//  1. [CollectionListView] : Browse collections, create or delete them
//  2. [ItemListView] : Browse one collection's items, mark, cut/copy/paste,
//     delete, and reorder
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View
// pattern. Mutations route through the session's command engine, so every
// key-driven change is undoable with u and re-appliable with ctrl+r.
// Progress updates flow through a channel from the engine, providing
// non-blocking status reporting during long commands.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, space to
// mark, x/c/p for cut/copy/paste, q to quit) with contextual help displayed
// via charmbracelet/bubbles/help. A status line shows the quota budget and
// whether the current listing is stale.
package ui
