package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/desertthunder/ytr/internal/models"
	"github.com/desertthunder/ytr/internal/repositories"
	"github.com/desertthunder/ytr/internal/services"
	"github.com/desertthunder/ytr/internal/shared"
)

// writeCall runs one remote write. Writes are not idempotent, so a transient
// failure is retried exactly once and only when compensate is set: an earlier
// sub-call of the same command already succeeded, and giving up now would
// strand the command half-applied. Standalone writes surface the failure to
// the caller instead. Returns the number of attempts, since the provider
// charges quota per request regardless of outcome.
func writeCall(compensate bool, fn func() error) (int, error) {
	err := fn()
	if err == nil || !compensate || !errors.Is(err, shared.ErrTransient) {
		return 1, err
	}
	return 2, fn()
}

// writeCallID is writeCall for writes that return a remote-assigned ID.
func writeCallID(compensate bool, fn func() (string, error)) (string, int, error) {
	id, err := fn()
	if err == nil || !compensate || !errors.Is(err, shared.ErrTransient) {
		return id, 1, err
	}
	id, err = fn()
	return id, 2, err
}

func partialErr(cmd *models.Command, completed, total int, entities []string, err error) error {
	// With no completed sub-call nothing changed remotely; that is a plain
	// failure, not a partial application.
	if completed == 0 {
		return err
	}
	return &shared.PartialApplyError{
		CommandID: cmd.ID,
		Completed: completed,
		Total:     total,
		Entities:  entities,
		Err:       err,
	}
}

// byPosition returns index order sorted ascending by the refs' original
// positions, so sequential re-inserts land items back where they were.
func byPosition(refs []models.ItemRef) []int {
	order := make([]int, len(refs))
	for i := range refs {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return refs[order[a]].Position < refs[order[b]].Position
	})
	return order
}

// apply runs a command's forward direction, returning consumed quota units.
func (e *CommandEngine) apply(ctx context.Context, cmd *models.Command, progress chan<- ProgressUpdate) (int, error) {
	switch p := cmd.Payload.(type) {
	case *models.PastePayload:
		return e.applyPaste(ctx, cmd, p, progress)
	case *models.DeletePayload:
		return e.applyDelete(ctx, cmd, p, progress)
	case *models.RenamePayload:
		return e.applyRename(ctx, p, p.NewTitle)
	case *models.ReorderPayload:
		return e.applyReorder(ctx, p, p.NewPosition)
	case *models.CreateCollectionPayload:
		return e.applyCreateCollection(ctx, p)
	case *models.DeleteCollectionPayload:
		return e.applyDeleteCollection(ctx, p)
	default:
		panic(fmt.Sprintf("unknown command payload %T", cmd.Payload))
	}
}

// reverse runs a command's undo direction, returning consumed quota units.
func (e *CommandEngine) reverse(ctx context.Context, cmd *models.Command, progress chan<- ProgressUpdate) (int, error) {
	switch p := cmd.Payload.(type) {
	case *models.PastePayload:
		return e.reversePaste(ctx, cmd, p, progress)
	case *models.DeletePayload:
		return e.reverseDelete(ctx, cmd, p, progress)
	case *models.RenamePayload:
		return e.applyRename(ctx, p, p.OldTitle)
	case *models.ReorderPayload:
		return e.applyReorder(ctx, p, p.OldPosition)
	case *models.CreateCollectionPayload:
		return e.reverseCreateCollection(ctx, p)
	case *models.DeleteCollectionPayload:
		return e.reverseDeleteCollection(ctx, cmd, p, progress)
	default:
		panic(fmt.Sprintf("unknown command payload %T", cmd.Payload))
	}
}

// targetAppendPosition returns where an appended item lands in the cached
// view of the collection, or -1 when the collection is not cached and no
// optimistic update should be written.
func (e *CommandEngine) targetAppendPosition(collectionID string) int {
	ok, err := e.store.HasCollection(collectionID)
	if err != nil || !ok {
		return -1
	}
	children, _, err := e.store.ListChildren(collectionID, repositories.OrderByPosition, e.now())
	if err != nil {
		return -1
	}
	return len(children)
}

func (e *CommandEngine) applyPaste(ctx context.Context, cmd *models.Command, p *models.PastePayload, progress chan<- ProgressUpdate) (int, error) {
	consumed := 0
	total := len(p.Items)
	if p.Mode == models.ClipCut {
		total *= 2
	}
	step := 0

	if len(p.InsertedIDs) != len(p.Items) {
		p.InsertedIDs = make([]string, len(p.Items))
	}

	appendPos := e.targetAppendPosition(p.TargetCollectionID)

	for i, ref := range p.Items {
		step++
		sendProgress(progress, applyStepUpdate("Inserting "+ref.Title, step, total))

		videoID := ref.VideoID
		newID, attempts, err := writeCallID(step > 1, func() (string, error) {
			return e.gateway.InsertItem(ctx, p.TargetCollectionID, videoID, -1)
		})
		consumed += attempts * services.CostWrite
		if err != nil {
			entities := append([]string{}, p.InsertedIDs[:i]...)
			if p.Mode == models.ClipCut {
				for _, r := range p.Items {
					entities = append(entities, r.ItemID)
				}
			}
			return consumed, partialErr(cmd, step-1, total, entities, err)
		}
		p.InsertedIDs[i] = newID

		if appendPos >= 0 {
			e.optimisticInsert(models.Item{
				ID:       newID,
				VideoID:  ref.VideoID,
				ParentID: p.TargetCollectionID,
				Position: appendPos,
				Title:    ref.Title,
			})
			appendPos++
		}
	}

	if p.Mode == models.ClipCut {
		for i, ref := range p.Items {
			step++
			sendProgress(progress, applyStepUpdate("Removing "+ref.Title, step, total))

			itemID := ref.ItemID
			attempts, err := writeCall(step > 1, func() error {
				return e.gateway.DeleteItem(ctx, itemID)
			})
			consumed += attempts * services.CostWrite
			if err != nil {
				entities := append([]string{}, p.InsertedIDs...)
				for _, r := range p.Items[i:] {
					entities = append(entities, r.ItemID)
				}
				return consumed, partialErr(cmd, step-1, total, entities, err)
			}
			e.optimisticRemove(ref.ItemID)
		}
	}

	return consumed, nil
}

func (e *CommandEngine) reversePaste(ctx context.Context, cmd *models.Command, p *models.PastePayload, progress chan<- ProgressUpdate) (int, error) {
	consumed := 0
	total := len(p.Items)
	if p.Mode == models.ClipCut {
		total *= 2
	}
	step := 0

	for i, insertedID := range p.InsertedIDs {
		step++
		sendProgress(progress, ProgressUpdate{
			Phase: ReverseCommand, Step: step, Total: total,
			Message: fmt.Sprintf("[%d/%d] Removing %s", step, total, p.Items[i].Title),
		})

		id := insertedID
		attempts, err := writeCall(step > 1, func() error {
			return e.gateway.DeleteItem(ctx, id)
		})
		consumed += attempts * services.CostWrite
		if err != nil {
			return consumed, partialErr(cmd, step-1, total, p.InsertedIDs[i:], err)
		}
		e.optimisticRemove(insertedID)
	}

	if p.Mode == models.ClipCut {
		for _, i := range byPosition(p.Items) {
			ref := p.Items[i]
			step++
			sendProgress(progress, ProgressUpdate{
				Phase: ReverseCommand, Step: step, Total: total,
				Message: fmt.Sprintf("[%d/%d] Restoring %s", step, total, ref.Title),
			})

			newID, attempts, err := writeCallID(step > 1, func() (string, error) {
				return e.gateway.InsertItem(ctx, p.SourceCollectionID, ref.VideoID, ref.Position)
			})
			consumed += attempts * services.CostWrite
			if err != nil {
				entities := make([]string, 0, len(p.Items))
				for _, r := range p.Items {
					entities = append(entities, r.ItemID)
				}
				return consumed, partialErr(cmd, step-1, total, entities, err)
			}
			// The remote assigns a fresh membership ID on re-insert; a later
			// redo must delete the new one.
			p.Items[i].ItemID = newID
			e.optimisticInsert(models.Item{
				ID:       newID,
				VideoID:  ref.VideoID,
				ParentID: p.SourceCollectionID,
				Position: ref.Position,
				Title:    ref.Title,
			})
		}
	}

	return consumed, nil
}

func (e *CommandEngine) applyDelete(ctx context.Context, cmd *models.Command, p *models.DeletePayload, progress chan<- ProgressUpdate) (int, error) {
	consumed := 0
	total := len(p.Items)

	for i, ref := range p.Items {
		sendProgress(progress, applyStepUpdate("Deleting "+ref.Title, i+1, total))

		itemID := ref.ItemID
		attempts, err := writeCall(i > 0, func() error {
			return e.gateway.DeleteItem(ctx, itemID)
		})
		consumed += attempts * services.CostWrite
		if err != nil {
			entities := make([]string, 0, len(p.Items)-i)
			for _, r := range p.Items[i:] {
				entities = append(entities, r.ItemID)
			}
			return consumed, partialErr(cmd, i, total, entities, err)
		}
		e.optimisticRemove(ref.ItemID)
	}

	return consumed, nil
}

func (e *CommandEngine) reverseDelete(ctx context.Context, cmd *models.Command, p *models.DeletePayload, progress chan<- ProgressUpdate) (int, error) {
	consumed := 0
	total := len(p.Items)
	step := 0

	for _, i := range byPosition(p.Items) {
		ref := p.Items[i]
		step++
		sendProgress(progress, ProgressUpdate{
			Phase: ReverseCommand, Step: step, Total: total,
			Message: fmt.Sprintf("[%d/%d] Restoring %s", step, total, ref.Title),
		})

		newID, attempts, err := writeCallID(step > 1, func() (string, error) {
			return e.gateway.InsertItem(ctx, p.CollectionID, ref.VideoID, ref.Position)
		})
		consumed += attempts * services.CostWrite
		if err != nil {
			entities := make([]string, 0, len(p.Items))
			for _, r := range p.Items {
				entities = append(entities, r.ItemID)
			}
			return consumed, partialErr(cmd, step-1, total, entities, err)
		}
		p.Items[i].ItemID = newID
		e.optimisticInsert(models.Item{
			ID:       newID,
			VideoID:  ref.VideoID,
			ParentID: p.CollectionID,
			Position: ref.Position,
			Title:    ref.Title,
		})
	}

	return consumed, nil
}

func (e *CommandEngine) applyRename(ctx context.Context, p *models.RenamePayload, title string) (int, error) {
	attempts, err := writeCall(false, func() error {
		return e.gateway.UpdateTitle(ctx, p.CollectionID, title)
	})
	consumed := attempts * services.CostWrite
	if err != nil {
		return consumed, err
	}

	if err := e.store.SetCollectionTitle(p.CollectionID, title); err != nil && !errors.Is(err, shared.ErrCacheMiss) {
		e.logger.Warn("failed to update cached title", "collection", p.CollectionID, "error", err)
	}
	return consumed, nil
}

func (e *CommandEngine) applyReorder(ctx context.Context, p *models.ReorderPayload, position int) (int, error) {
	attempts, err := writeCall(false, func() error {
		return e.gateway.MoveItem(ctx, p.ItemID, p.CollectionID, p.VideoID, position)
	})
	consumed := attempts * services.CostWrite
	if err != nil {
		return consumed, err
	}

	if err := e.store.MoveItemPosition(p.ItemID, position); err != nil {
		e.logger.Warn("failed to update cached position", "item", p.ItemID, "error", err)
	}
	return consumed, nil
}

func (e *CommandEngine) applyCreateCollection(ctx context.Context, p *models.CreateCollectionPayload) (int, error) {
	var created *models.Collection
	attempts, err := writeCall(false, func() error {
		var callErr error
		created, callErr = e.gateway.CreateCollection(ctx, p.Title, p.Privacy)
		return callErr
	})
	consumed := attempts * services.CostWrite
	if err != nil {
		return consumed, err
	}

	p.CreatedID = created.ID
	if err := e.store.PutCollection(*created, e.now()); err != nil {
		e.logger.Warn("failed to cache created collection", "collection", created.ID, "error", err)
	}
	return consumed, nil
}

func (e *CommandEngine) reverseCreateCollection(ctx context.Context, p *models.CreateCollectionPayload) (int, error) {
	attempts, err := writeCall(false, func() error {
		return e.gateway.DeleteCollection(ctx, p.CreatedID)
	})
	consumed := attempts * services.CostWrite
	if err != nil {
		return consumed, err
	}

	if err := e.store.InvalidateCollection(p.CreatedID); err != nil {
		e.logger.Warn("failed to evict deleted collection", "collection", p.CreatedID, "error", err)
	}
	return consumed, nil
}

func (e *CommandEngine) applyDeleteCollection(ctx context.Context, p *models.DeleteCollectionPayload) (int, error) {
	// After an undo re-created the collection, a redo deletes the re-created
	// ID, not the long-gone original.
	id := p.Collection.ID
	if p.RecreatedID != "" {
		id = p.RecreatedID
	}

	attempts, err := writeCall(false, func() error {
		return e.gateway.DeleteCollection(ctx, id)
	})
	consumed := attempts * services.CostWrite
	if err != nil {
		return consumed, err
	}

	if err := e.store.InvalidateCollection(id); err != nil {
		e.logger.Warn("failed to evict deleted collection", "collection", id, "error", err)
	}
	return consumed, nil
}

func (e *CommandEngine) reverseDeleteCollection(ctx context.Context, cmd *models.Command, p *models.DeleteCollectionPayload, progress chan<- ProgressUpdate) (int, error) {
	consumed := 0
	total := 1 + len(p.Items)

	sendProgress(progress, ProgressUpdate{
		Phase: ReverseCommand, Step: 1, Total: total,
		Message: "Re-creating " + p.Collection.Title,
	})

	var created *models.Collection
	attempts, err := writeCall(false, func() error {
		var callErr error
		created, callErr = e.gateway.CreateCollection(ctx, p.Collection.Title, "")
		return callErr
	})
	consumed += attempts * services.CostWrite
	if err != nil {
		return consumed, err
	}
	p.RecreatedID = created.ID

	if putErr := e.store.PutCollection(*created, e.now()); putErr != nil {
		e.logger.Warn("failed to cache re-created collection", "collection", created.ID, "error", putErr)
	}

	step := 1
	inserted := make([]string, 0, len(p.Items))
	for _, i := range byPosition(p.Items) {
		ref := p.Items[i]
		step++
		sendProgress(progress, ProgressUpdate{
			Phase: ReverseCommand, Step: step, Total: total,
			Message: fmt.Sprintf("[%d/%d] Restoring %s", step, total, ref.Title),
		})

		newID, attempts, err := writeCallID(step > 1, func() (string, error) {
			return e.gateway.InsertItem(ctx, created.ID, ref.VideoID, -1)
		})
		consumed += attempts * services.CostWrite
		if err != nil {
			return consumed, partialErr(cmd, step-1, total, inserted, err)
		}
		p.Items[i].ItemID = newID
		inserted = append(inserted, newID)
		e.optimisticInsert(models.Item{
			ID:       newID,
			VideoID:  ref.VideoID,
			ParentID: created.ID,
			Position: ref.Position,
			Title:    ref.Title,
		})
	}

	return consumed, nil
}

func (e *CommandEngine) optimisticInsert(item models.Item) {
	if ok, err := e.store.HasCollection(item.ParentID); err != nil || !ok {
		return
	}
	if err := e.store.InsertItemAt(item, e.now()); err != nil {
		e.logger.Warn("failed to apply optimistic insert", "item", item.ID, "error", err)
	}
}

func (e *CommandEngine) optimisticRemove(itemID string) {
	if err := e.store.RemoveItem(itemID); err != nil {
		e.logger.Warn("failed to apply optimistic removal", "item", itemID, "error", err)
	}
}
