package models

import (
	"fmt"
	"time"
)

// CommandKind enumerates the closed set of mutation commands. Every kind has
// exactly one [Payload] type; the engine dispatches on the concrete payload
// so each apply/reverse pair is checked at compile time.
type CommandKind string

const (
	CommandCut              CommandKind = "cut"
	CommandCopy             CommandKind = "copy"
	CommandPaste            CommandKind = "paste"
	CommandDelete           CommandKind = "delete"
	CommandRename           CommandKind = "rename"
	CommandReorder          CommandKind = "reorder"
	CommandCreateCollection CommandKind = "create_collection"
	CommandDeleteCollection CommandKind = "delete_collection"
)

// CommandState tracks a command through its lifecycle. Commands are created
// Pending; State is the only field that transitions after creation.
type CommandState string

const (
	StatePending          CommandState = "pending"
	StateApplied          CommandState = "applied"
	StatePartiallyApplied CommandState = "partially_applied"
	StateReversed         CommandState = "reversed"
)

// ClipMode distinguishes a cut clipboard (consumed by one paste) from a copy
// clipboard (survives repeated pastes).
type ClipMode string

const (
	ClipCut  ClipMode = "cut"
	ClipCopy ClipMode = "copy"
)

// Payload is the sealed interface implemented by exactly one payload type
// per command kind. The unexported method keeps the set closed to this
// package so engine switches over payload types are exhaustive.
type Payload interface {
	Kind() CommandKind
	commandPayload()
}

// Command is one reversible unit of work. The forward and reverse data both
// live in the payload; remote-assigned IDs needed for reversal are recorded
// in the payload the first time the command is applied.
type Command struct {
	ID          string
	Kind        CommandKind
	Description string
	CreatedAt   time.Time
	State       CommandState
	Payload     Payload
}

// NewCommand wraps a payload into a Pending command.
func NewCommand(id, description string, payload Payload) *Command {
	return &Command{
		ID:          id,
		Kind:        payload.Kind(),
		Description: description,
		CreatedAt:   time.Now().UTC(),
		State:       StatePending,
		Payload:     payload,
	}
}

func (c *Command) String() string {
	if c.Description != "" {
		return c.Description
	}
	return string(c.Kind)
}

// ItemRef carries the identifying fields of one item as a command saw it,
// enough to re-create the membership at its original position on undo.
// ItemID is rewritten when a reversal re-inserts the video, because the
// remote service assigns a fresh playlist-item ID on every insert.
type ItemRef struct {
	ItemID   string
	VideoID  string
	Title    string
	Position int
}

// CutPayload stages items on the clipboard in cut mode. Applied locally at
// zero quota cost; the remote mutation happens at paste time.
type CutPayload struct {
	SourceCollectionID string
	Items              []ItemRef
}

// CopyPayload stages items on the clipboard in copy mode.
type CopyPayload struct {
	SourceCollectionID string
	Items              []ItemRef
}

// PastePayload inserts the staged items into the target collection. In cut
// mode the source memberships are deleted afterwards, making the paste a
// compound move (insert + delete per item).
type PastePayload struct {
	Mode               ClipMode
	SourceCollectionID string
	TargetCollectionID string
	Items              []ItemRef // Source refs; positions are source positions

	// InsertedIDs records the item IDs the remote service assigned in the
	// target collection, indexed like Items. Written on first apply, needed
	// to undo.
	InsertedIDs []string
}

// DeletePayload removes item memberships from one collection. Entries keep
// original positions so undo can re-insert in place.
type DeletePayload struct {
	CollectionID string
	Items        []ItemRef
}

// RenamePayload retitles a collection. OldTitle is captured at build time so
// the rename reverses without a remote read.
type RenamePayload struct {
	CollectionID string
	OldTitle     string
	NewTitle     string
}

// ReorderPayload moves one item to a new position within its collection.
type ReorderPayload struct {
	CollectionID string
	ItemID       string
	VideoID      string
	OldPosition  int
	NewPosition  int
}

// CreateCollectionPayload creates a new remote collection. CreatedID is
// written on first apply and targeted by undo.
type CreateCollectionPayload struct {
	Title     string
	Privacy   string
	CreatedID string
}

// DeleteCollectionPayload deletes a collection and snapshots its contents so
// undo can re-create collection and memberships.
type DeleteCollectionPayload struct {
	Collection Collection
	Items      []ItemRef

	// RecreatedID holds the ID assigned when an undo re-creates the
	// collection; a later redo deletes that ID instead of the original.
	RecreatedID string
}

func (p *CutPayload) Kind() CommandKind              { return CommandCut }
func (p *CopyPayload) Kind() CommandKind             { return CommandCopy }
func (p *PastePayload) Kind() CommandKind            { return CommandPaste }
func (p *DeletePayload) Kind() CommandKind           { return CommandDelete }
func (p *RenamePayload) Kind() CommandKind           { return CommandRename }
func (p *ReorderPayload) Kind() CommandKind          { return CommandReorder }
func (p *CreateCollectionPayload) Kind() CommandKind { return CommandCreateCollection }
func (p *DeleteCollectionPayload) Kind() CommandKind { return CommandDeleteCollection }

func (p *CutPayload) commandPayload()              {}
func (p *CopyPayload) commandPayload()             {}
func (p *PastePayload) commandPayload()            {}
func (p *DeletePayload) commandPayload()           {}
func (p *RenamePayload) commandPayload()           {}
func (p *ReorderPayload) commandPayload()          {}
func (p *CreateCollectionPayload) commandPayload() {}
func (p *DeleteCollectionPayload) commandPayload() {}

// EntityScope returns the cache entity IDs a command mutates. The engine
// acquires an advisory lock over this scope so no two commands run
// concurrently against the same entities.
func (c *Command) EntityScope() []string {
	switch p := c.Payload.(type) {
	case *CutPayload, *CopyPayload:
		return nil
	case *PastePayload:
		scope := []string{p.TargetCollectionID}
		if p.Mode == ClipCut {
			scope = append(scope, p.SourceCollectionID)
		}
		for _, it := range p.Items {
			scope = append(scope, it.ItemID)
		}
		return scope
	case *DeletePayload:
		scope := []string{p.CollectionID}
		for _, it := range p.Items {
			scope = append(scope, it.ItemID)
		}
		return scope
	case *RenamePayload:
		return []string{p.CollectionID}
	case *ReorderPayload:
		return []string{p.CollectionID, p.ItemID}
	case *CreateCollectionPayload:
		return nil
	case *DeleteCollectionPayload:
		return []string{p.Collection.ID}
	default:
		panic(fmt.Sprintf("unknown command payload %T", c.Payload))
	}
}
