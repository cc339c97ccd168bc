package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytr/internal/journal"
	"github.com/desertthunder/ytr/internal/models"
	"github.com/desertthunder/ytr/internal/repositories"
	"github.com/desertthunder/ytr/internal/services"
	"github.com/desertthunder/ytr/internal/shared"
)

// CommandEngine executes reversible mutation commands.
//
// Every remote call is paid for through the quota ledger with a
// reserve / commit protocol: the full forward (or reverse) cost is reserved
// before the first call and the actually-consumed amount committed after the
// last, so a rejected command never burns budget and a partial one is
// charged only for what it did.
//
// Applied commands are pushed onto a bounded undo stack; executing a new
// command discards the redo tail. Cut and copy are clipboard-only commands:
// they cost nothing, touch no remote state, and do not enter the history.
type CommandEngine struct {
	store   *repositories.CacheStore
	ledger  *repositories.QuotaLedger
	gateway services.Gateway
	journal *journal.Journal
	logger  *log.Logger
	locks   *entityLocks

	clipboard models.Clipboard
	undo      []*models.Command
	redo      []*models.Command
	depth     int

	now func() time.Time
}

// NewCommandEngine creates an engine with the given history depth.
func NewCommandEngine(
	store *repositories.CacheStore,
	ledger *repositories.QuotaLedger,
	gateway services.Gateway,
	jrnl *journal.Journal,
	locks *entityLocks,
	depth int,
	logger *log.Logger,
) *CommandEngine {
	if depth <= 0 {
		depth = 100
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if locks == nil {
		locks = newEntityLocks()
	}

	return &CommandEngine{
		store:   store,
		ledger:  ledger,
		gateway: gateway,
		journal: jrnl,
		logger:  logger,
		locks:   locks,
		depth:   depth,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Clipboard returns the current clipboard contents.
func (e *CommandEngine) Clipboard() models.Clipboard { return e.clipboard }

// CanUndo reports whether an applied command is available to reverse.
func (e *CommandEngine) CanUndo() bool { return len(e.undo) > 0 }

// CanRedo reports whether a reversed command is available to re-apply.
func (e *CommandEngine) CanRedo() bool { return len(e.redo) > 0 }

// UndoDescription returns the description of the command Undo would reverse.
func (e *CommandEngine) UndoDescription() string {
	if len(e.undo) == 0 {
		return ""
	}
	return e.undo[len(e.undo)-1].String()
}

// RedoDescription returns the description of the command Redo would re-apply.
func (e *CommandEngine) RedoDescription() string {
	if len(e.redo) == 0 {
		return ""
	}
	return e.redo[len(e.redo)-1].String()
}

// History returns the applied commands, oldest first.
func (e *CommandEngine) History() []*models.Command {
	out := make([]*models.Command, len(e.undo))
	copy(out, e.undo)
	return out
}

// PasteFromClipboard builds a paste command targeting the given collection
// from the current clipboard. Returns [shared.ErrEmptyClipboard] when
// nothing is staged.
func (e *CommandEngine) PasteFromClipboard(targetCollectionID string) (*models.Command, error) {
	if e.clipboard.Empty() {
		return nil, shared.ErrEmptyClipboard
	}

	payload := &models.PastePayload{
		Mode:               e.clipboard.Mode,
		SourceCollectionID: e.clipboard.SourceCollectionID,
		TargetCollectionID: targetCollectionID,
		Items:              e.clipboard.Refs(),
	}

	verb := "Copy"
	if payload.Mode == models.ClipCut {
		verb = "Move"
	}
	description := fmt.Sprintf("%s %d item(s) to %s", verb, len(payload.Items), targetCollectionID)

	return models.NewCommand(shared.GenerateID(), description, payload), nil
}

// Execute validates, pays for, and applies a command. On success the command
// is Applied and pushed onto the undo stack (clipboard commands excepted).
// On total failure nothing is charged beyond attempted calls and the history
// is untouched. On partial failure the command is PartiallyApplied, the
// affected entities are flagged for verification, and a
// [shared.PartialApplyError] is returned; a partially-applied command is not
// undoable.
func (e *CommandEngine) Execute(ctx context.Context, cmd *models.Command, progress chan<- ProgressUpdate) error {
	if cmd.State != models.StatePending {
		return fmt.Errorf("%w: command %s already %s", shared.ErrValidation, cmd.ID, cmd.State)
	}
	if err := e.validate(cmd); err != nil {
		return err
	}

	// Clipboard commands apply locally and skip the remote machinery.
	switch p := cmd.Payload.(type) {
	case *models.CutPayload:
		e.stageClipboard(models.ClipCut, p.SourceCollectionID, p.Items)
		cmd.State = models.StateApplied
		e.journal.Record(cmd, "apply", nil)
		return nil
	case *models.CopyPayload:
		e.stageClipboard(models.ClipCopy, p.SourceCollectionID, p.Items)
		cmd.State = models.StateApplied
		e.journal.Record(cmd, "apply", nil)
		return nil
	}

	scope := cmd.EntityScope()
	if err := e.locks.acquire(scope); err != nil {
		return err
	}
	defer e.locks.release(scope)

	cost := forwardCost(cmd)
	if err := e.ledger.Reserve(cost); err != nil {
		return err
	}

	consumed, err := e.apply(ctx, cmd, progress)
	if commitErr := e.ledger.Commit(cost, consumed); commitErr != nil {
		e.logger.Error("failed to commit quota", "command", cmd.ID, "error", commitErr)
	}

	if err != nil {
		var partial *shared.PartialApplyError
		if errors.As(err, &partial) {
			cmd.State = models.StatePartiallyApplied
			if flagErr := e.store.FlagVerification(partial.Entities); flagErr != nil {
				e.logger.Error("failed to flag entities", "command", cmd.ID, "error", flagErr)
			}
		}
		e.journal.Record(cmd, "apply", err)
		return err
	}

	cmd.State = models.StateApplied
	e.journal.Record(cmd, "apply", nil)

	// A consumed cut clipboard does not survive its paste.
	if p, ok := cmd.Payload.(*models.PastePayload); ok && p.Mode == models.ClipCut {
		e.clipboard.Clear()
	}

	e.push(cmd)
	return nil
}

// Undo reverses the most recently applied command and moves it onto the redo
// stack, returning it. Returns [shared.ErrNothingToUndo] on an empty stack.
func (e *CommandEngine) Undo(ctx context.Context, progress chan<- ProgressUpdate) (*models.Command, error) {
	if len(e.undo) == 0 {
		return nil, shared.ErrNothingToUndo
	}
	cmd := e.undo[len(e.undo)-1]

	scope := cmd.EntityScope()
	if err := e.locks.acquire(scope); err != nil {
		return nil, err
	}
	defer e.locks.release(scope)

	cost := reverseCost(cmd)
	if err := e.ledger.Reserve(cost); err != nil {
		return nil, err
	}

	consumed, err := e.reverse(ctx, cmd, progress)
	if commitErr := e.ledger.Commit(cost, consumed); commitErr != nil {
		e.logger.Error("failed to commit quota", "command", cmd.ID, "error", commitErr)
	}

	if err != nil {
		var partial *shared.PartialApplyError
		if errors.As(err, &partial) {
			// The command is half-reversed; it can be neither undone again
			// nor redone, so it leaves the history entirely.
			cmd.State = models.StatePartiallyApplied
			e.undo = e.undo[:len(e.undo)-1]
			if flagErr := e.store.FlagVerification(partial.Entities); flagErr != nil {
				e.logger.Error("failed to flag entities", "command", cmd.ID, "error", flagErr)
			}
		}
		e.journal.Record(cmd, "undo", err)
		return nil, err
	}

	cmd.State = models.StateReversed
	e.undo = e.undo[:len(e.undo)-1]
	e.redo = append(e.redo, cmd)
	e.journal.Record(cmd, "undo", nil)
	return cmd, nil
}

// Redo re-applies the most recently reversed command and moves it back onto
// the undo stack. Returns [shared.ErrNothingToRedo] on an empty stack.
func (e *CommandEngine) Redo(ctx context.Context, progress chan<- ProgressUpdate) (*models.Command, error) {
	if len(e.redo) == 0 {
		return nil, shared.ErrNothingToRedo
	}
	cmd := e.redo[len(e.redo)-1]

	scope := cmd.EntityScope()
	if err := e.locks.acquire(scope); err != nil {
		return nil, err
	}
	defer e.locks.release(scope)

	cost := forwardCost(cmd)
	if err := e.ledger.Reserve(cost); err != nil {
		return nil, err
	}

	consumed, err := e.apply(ctx, cmd, progress)
	if commitErr := e.ledger.Commit(cost, consumed); commitErr != nil {
		e.logger.Error("failed to commit quota", "command", cmd.ID, "error", commitErr)
	}

	if err != nil {
		var partial *shared.PartialApplyError
		if errors.As(err, &partial) {
			cmd.State = models.StatePartiallyApplied
			e.redo = e.redo[:len(e.redo)-1]
			if flagErr := e.store.FlagVerification(partial.Entities); flagErr != nil {
				e.logger.Error("failed to flag entities", "command", cmd.ID, "error", flagErr)
			}
		}
		e.journal.Record(cmd, "redo", err)
		return nil, err
	}

	cmd.State = models.StateApplied
	e.redo = e.redo[:len(e.redo)-1]
	e.push(cmd)
	e.journal.Record(cmd, "redo", nil)
	return cmd, nil
}

// ClearClipboard drops any staged cut or copy.
func (e *CommandEngine) ClearClipboard() { e.clipboard.Clear() }

// push appends to the undo stack, evicting the oldest entry past the depth
// cap, and discards the redo tail.
func (e *CommandEngine) push(cmd *models.Command) {
	e.undo = append(e.undo, cmd)
	if len(e.undo) > e.depth {
		e.undo = e.undo[len(e.undo)-e.depth:]
	}
	e.redo = nil
}

// stageClipboard fills the clipboard from item refs, preferring full cached
// records when available.
func (e *CommandEngine) stageClipboard(mode models.ClipMode, sourceID string, refs []models.ItemRef) {
	items := make([]models.Item, len(refs))
	now := e.now()
	for i, ref := range refs {
		if cached, _, err := e.store.GetItem(ref.ItemID, now); err == nil {
			items[i] = cached
			continue
		}
		items[i] = models.Item{
			ID:       ref.ItemID,
			VideoID:  ref.VideoID,
			ParentID: sourceID,
			Position: ref.Position,
			Title:    ref.Title,
		}
	}
	e.clipboard.Set(mode, sourceID, items)
}

func (e *CommandEngine) validate(cmd *models.Command) error {
	switch p := cmd.Payload.(type) {
	case *models.CutPayload:
		if len(p.Items) == 0 {
			return fmt.Errorf("%w: nothing to cut", shared.ErrValidation)
		}
	case *models.CopyPayload:
		if len(p.Items) == 0 {
			return fmt.Errorf("%w: nothing to copy", shared.ErrValidation)
		}
	case *models.PastePayload:
		if len(p.Items) == 0 {
			return shared.ErrEmptyClipboard
		}
		if p.TargetCollectionID == "" {
			return fmt.Errorf("%w: paste needs a target collection", shared.ErrValidation)
		}
		if p.Mode == models.ClipCut && p.SourceCollectionID == p.TargetCollectionID {
			return fmt.Errorf("%w: cannot move items onto themselves", shared.ErrValidation)
		}
	case *models.DeletePayload:
		if len(p.Items) == 0 {
			return fmt.Errorf("%w: nothing to delete", shared.ErrValidation)
		}
	case *models.RenamePayload:
		if p.NewTitle == "" {
			return fmt.Errorf("%w: title cannot be empty", shared.ErrValidation)
		}
		if p.NewTitle == p.OldTitle {
			return fmt.Errorf("%w: title unchanged", shared.ErrValidation)
		}
	case *models.ReorderPayload:
		if p.NewPosition < 0 {
			return fmt.Errorf("%w: negative position", shared.ErrValidation)
		}
	case *models.CreateCollectionPayload:
		if p.Title == "" {
			return fmt.Errorf("%w: title cannot be empty", shared.ErrValidation)
		}
	case *models.DeleteCollectionPayload:
		if p.Collection.ID == "" {
			return fmt.Errorf("%w: missing collection", shared.ErrValidation)
		}
		if p.Collection.Kind == models.CollectionVirtual {
			return fmt.Errorf("%w: virtual collections have no remote to delete", shared.ErrValidation)
		}
	}
	return nil
}

// forwardCost returns the quota units the command's apply will reserve.
func forwardCost(cmd *models.Command) int {
	switch p := cmd.Payload.(type) {
	case *models.CutPayload, *models.CopyPayload:
		return 0
	case *models.PastePayload:
		if p.Mode == models.ClipCut {
			return services.CostMove * len(p.Items)
		}
		return services.CostWrite * len(p.Items)
	case *models.DeletePayload:
		return services.CostWrite * len(p.Items)
	case *models.RenamePayload:
		return services.CostWrite
	case *models.ReorderPayload:
		return services.CostWrite
	case *models.CreateCollectionPayload:
		return services.CostWrite
	case *models.DeleteCollectionPayload:
		return services.CostWrite
	default:
		panic(fmt.Sprintf("unknown command payload %T", cmd.Payload))
	}
}

// reverseCost returns the quota units the command's undo will reserve.
func reverseCost(cmd *models.Command) int {
	switch p := cmd.Payload.(type) {
	case *models.CutPayload, *models.CopyPayload:
		return 0
	case *models.PastePayload:
		if p.Mode == models.ClipCut {
			return services.CostMove * len(p.Items)
		}
		return services.CostWrite * len(p.Items)
	case *models.DeletePayload:
		return services.CostWrite * len(p.Items)
	case *models.RenamePayload:
		return services.CostWrite
	case *models.ReorderPayload:
		return services.CostWrite
	case *models.CreateCollectionPayload:
		return services.CostWrite
	case *models.DeleteCollectionPayload:
		// Re-create the collection, then re-insert every snapshotted item.
		return services.CostWrite * (1 + len(p.Items))
	default:
		panic(fmt.Sprintf("unknown command payload %T", cmd.Payload))
	}
}
