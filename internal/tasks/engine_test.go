package tasks

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/desertthunder/ytr/internal/models"
	"github.com/desertthunder/ytr/internal/services"
	"github.com/desertthunder/ytr/internal/shared"
	fakes "github.com/desertthunder/ytr/internal/testing"
)

// newTestSession builds a session over an in-memory database and the given
// gateway, with the journal disabled.
func newTestSession(t *testing.T, gw services.Gateway) *Session {
	t.Helper()

	cfg := shared.DefaultConfig()
	cfg.Cache.Path = ":memory:"
	cfg.Cache.TTLSeconds = 300
	cfg.Cache.MaxRecords = 0
	cfg.Quota.DailyBudget = 10000
	cfg.History.Depth = 100
	cfg.Journal.Enabled = false

	session, err := NewSessionWithGateway(cfg, gw, nil)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func seedTwoCollections(t *testing.T, gw *fakes.FakeGateway) {
	t.Helper()
	gw.Seed(models.Collection{ID: "PL1", Title: "Source", Kind: models.CollectionReal}, []models.Item{
		{ID: "pi1", VideoID: "v1", Title: "One"},
		{ID: "pi2", VideoID: "v2", Title: "Two"},
		{ID: "pi3", VideoID: "v3", Title: "Three"},
	})
	gw.Seed(models.Collection{ID: "PL2", Title: "Target", Kind: models.CollectionReal}, nil)
}

// warmCache pulls both collections into the cache so commands have local
// records to update optimistically.
func warmCache(t *testing.T, s *Session) {
	t.Helper()
	ctx := context.Background()
	if _, _, err := s.Collections(ctx, true); err != nil {
		t.Fatalf("failed to refresh collections: %v", err)
	}
	for _, id := range []string{"PL1", "PL2"} {
		if _, err := s.GetView(ctx, id, true); err != nil {
			t.Fatalf("failed to refresh %s: %v", id, err)
		}
	}
}

func cutCommand(refs []models.ItemRef) *models.Command {
	return models.NewCommand(shared.GenerateID(), "Cut items", &models.CutPayload{
		SourceCollectionID: "PL1",
		Items:              refs,
	})
}

func copyCommand(refs []models.ItemRef) *models.Command {
	return models.NewCommand(shared.GenerateID(), "Copy items", &models.CopyPayload{
		SourceCollectionID: "PL1",
		Items:              refs,
	})
}

func refsFor(t *testing.T, s *Session, collectionID string, ids ...string) []models.ItemRef {
	t.Helper()
	view, err := s.GetView(context.Background(), collectionID, false)
	if err != nil {
		t.Fatalf("failed to get view: %v", err)
	}

	var refs []models.ItemRef
	for _, id := range ids {
		for _, item := range view.Items {
			if item.ID == id {
				refs = append(refs, models.ItemRef{
					ItemID:   item.ID,
					VideoID:  item.VideoID,
					Title:    item.Title,
					Position: item.Position,
				})
			}
		}
	}
	if len(refs) != len(ids) {
		t.Fatalf("found %d of %d requested items", len(refs), len(ids))
	}
	return refs
}

func TestClipboardCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("CutStagesWithoutRemoteCalls", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		seedTwoCollections(t, gw)
		s := newTestSession(t, gw)
		warmCache(t, s)

		before, _ := s.Quota()
		refs := refsFor(t, s, "PL1", "pi1", "pi2")
		if err := s.Execute(ctx, cutCommand(refs), nil); err != nil {
			t.Fatalf("cut failed: %v", err)
		}

		clip := s.Engine().Clipboard()
		if clip.Mode != models.ClipCut || len(clip.Items) != 2 {
			t.Fatalf("clipboard not staged: %+v", clip)
		}
		if gw.CallCount("DeleteItem") != 0 || gw.CallCount("InsertItem") != 0 {
			t.Error("cut must not touch the remote")
		}
		if len(gw.ItemOrder("PL1")) != 3 {
			t.Error("cut must not mutate the source collection")
		}

		after, _ := s.Quota()
		if after.Used != before.Used {
			t.Errorf("cut consumed quota: %d -> %d", before.Used, after.Used)
		}
		if s.Engine().CanUndo() {
			t.Error("clipboard commands must not enter the history")
		}
	})

	t.Run("PasteEmptyClipboard", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		seedTwoCollections(t, gw)
		s := newTestSession(t, gw)

		if _, err := s.Engine().PasteFromClipboard("PL2"); !errors.Is(err, shared.ErrEmptyClipboard) {
			t.Fatalf("expected ErrEmptyClipboard, got %v", err)
		}
	})

	t.Run("CutPasteIntoSourceRejected", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		seedTwoCollections(t, gw)
		s := newTestSession(t, gw)
		warmCache(t, s)

		refs := refsFor(t, s, "PL1", "pi1")
		if err := s.Execute(ctx, cutCommand(refs), nil); err != nil {
			t.Fatalf("cut failed: %v", err)
		}
		cmd, err := s.Engine().PasteFromClipboard("PL1")
		if err != nil {
			t.Fatalf("failed to build paste: %v", err)
		}
		if err := s.Execute(ctx, cmd, nil); !errors.Is(err, shared.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestPasteCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("CopyPasteAndUndo", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		seedTwoCollections(t, gw)
		s := newTestSession(t, gw)
		warmCache(t, s)

		refs := refsFor(t, s, "PL1", "pi1", "pi2")
		if err := s.Execute(ctx, copyCommand(refs), nil); err != nil {
			t.Fatalf("copy failed: %v", err)
		}

		before, _ := s.Quota()
		cmd, err := s.Engine().PasteFromClipboard("PL2")
		if err != nil {
			t.Fatalf("failed to build paste: %v", err)
		}
		if err := s.Execute(ctx, cmd, nil); err != nil {
			t.Fatalf("paste failed: %v", err)
		}

		order := gw.ItemOrder("PL2")
		if len(order) != 2 || order[0] != "v1" || order[1] != "v2" {
			t.Fatalf("target order = %v, want [v1 v2]", order)
		}
		if len(gw.ItemOrder("PL1")) != 3 {
			t.Error("copy paste must not touch the source")
		}

		after, _ := s.Quota()
		if got := after.Used - before.Used; got != 2*services.CostWrite {
			t.Errorf("paste consumed %d units, want %d", got, 2*services.CostWrite)
		}

		// Copy clipboard survives its paste.
		if s.Engine().Clipboard().Empty() {
			t.Error("copy clipboard should survive a paste")
		}

		// Optimistic cache update served without a refetch.
		listCalls := gw.CallCount("ListItems")
		view, err := s.GetView(ctx, "PL2", false)
		if err != nil {
			t.Fatalf("failed to get view: %v", err)
		}
		if len(view.Items) != 2 || view.Stale {
			t.Errorf("cached view after paste = %d items stale=%v", len(view.Items), view.Stale)
		}
		if gw.CallCount("ListItems") != listCalls {
			t.Error("view after paste should come from cache")
		}

		if _, err := s.Undo(ctx, nil); err != nil {
			t.Fatalf("undo failed: %v", err)
		}
		if len(gw.ItemOrder("PL2")) != 0 {
			t.Errorf("undo should empty the target, got %v", gw.ItemOrder("PL2"))
		}
	})

	t.Run("CutPasteMovesAndUndoRestores", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		seedTwoCollections(t, gw)
		s := newTestSession(t, gw)
		warmCache(t, s)

		refs := refsFor(t, s, "PL1", "pi1", "pi3")
		if err := s.Execute(ctx, cutCommand(refs), nil); err != nil {
			t.Fatalf("cut failed: %v", err)
		}

		before, _ := s.Quota()
		cmd, err := s.Engine().PasteFromClipboard("PL2")
		if err != nil {
			t.Fatalf("failed to build paste: %v", err)
		}
		if err := s.Execute(ctx, cmd, nil); err != nil {
			t.Fatalf("paste failed: %v", err)
		}

		if got := gw.ItemOrder("PL1"); len(got) != 1 || got[0] != "v2" {
			t.Fatalf("source after move = %v, want [v2]", got)
		}
		if got := gw.ItemOrder("PL2"); len(got) != 2 || got[0] != "v1" || got[1] != "v3" {
			t.Fatalf("target after move = %v, want [v1 v3]", got)
		}

		after, _ := s.Quota()
		if got := after.Used - before.Used; got != 2*services.CostMove {
			t.Errorf("move consumed %d units, want %d", got, 2*services.CostMove)
		}
		if !s.Engine().Clipboard().Empty() {
			t.Error("cut clipboard must be consumed by its paste")
		}

		if _, err := s.Undo(ctx, nil); err != nil {
			t.Fatalf("undo failed: %v", err)
		}
		if got := gw.ItemOrder("PL1"); len(got) != 3 || got[0] != "v1" || got[1] != "v2" || got[2] != "v3" {
			t.Fatalf("source after undo = %v, want [v1 v2 v3]", got)
		}
		if len(gw.ItemOrder("PL2")) != 0 {
			t.Errorf("target after undo = %v, want empty", gw.ItemOrder("PL2"))
		}

		// Redo must delete the re-created memberships, not the stale IDs.
		if _, err := s.Redo(ctx, nil); err != nil {
			t.Fatalf("redo failed: %v", err)
		}
		if got := gw.ItemOrder("PL1"); len(got) != 1 || got[0] != "v2" {
			t.Fatalf("source after redo = %v, want [v2]", got)
		}
		if got := gw.ItemOrder("PL2"); len(got) != 2 {
			t.Fatalf("target after redo = %v, want 2 items", got)
		}
	})
}

func TestSimpleCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("RenameUndoRedo", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		seedTwoCollections(t, gw)
		s := newTestSession(t, gw)
		warmCache(t, s)

		cmd := models.NewCommand(shared.GenerateID(), "Rename Source", &models.RenamePayload{
			CollectionID: "PL1",
			OldTitle:     "Source",
			NewTitle:     "Renamed",
		})
		if err := s.Execute(ctx, cmd, nil); err != nil {
			t.Fatalf("rename failed: %v", err)
		}
		if gw.Collections["PL1"].Title != "Renamed" {
			t.Errorf("remote title = %q", gw.Collections["PL1"].Title)
		}

		if _, err := s.Undo(ctx, nil); err != nil {
			t.Fatalf("undo failed: %v", err)
		}
		if gw.Collections["PL1"].Title != "Source" {
			t.Errorf("title after undo = %q", gw.Collections["PL1"].Title)
		}

		if _, err := s.Redo(ctx, nil); err != nil {
			t.Fatalf("redo failed: %v", err)
		}
		if gw.Collections["PL1"].Title != "Renamed" {
			t.Errorf("title after redo = %q", gw.Collections["PL1"].Title)
		}
	})

	t.Run("ReorderUndo", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		seedTwoCollections(t, gw)
		s := newTestSession(t, gw)
		warmCache(t, s)

		cmd := models.NewCommand(shared.GenerateID(), "Move One to end", &models.ReorderPayload{
			CollectionID: "PL1",
			ItemID:       "pi1",
			VideoID:      "v1",
			OldPosition:  0,
			NewPosition:  2,
		})
		if err := s.Execute(ctx, cmd, nil); err != nil {
			t.Fatalf("reorder failed: %v", err)
		}
		if got := gw.ItemOrder("PL1"); got[2] != "v1" {
			t.Fatalf("order after reorder = %v", got)
		}

		if _, err := s.Undo(ctx, nil); err != nil {
			t.Fatalf("undo failed: %v", err)
		}
		if got := gw.ItemOrder("PL1"); got[0] != "v1" {
			t.Fatalf("order after undo = %v", got)
		}
	})

	t.Run("DeleteItemsUndoRestoresPositions", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		seedTwoCollections(t, gw)
		s := newTestSession(t, gw)
		warmCache(t, s)

		refs := refsFor(t, s, "PL1", "pi3", "pi1") // Deliberately unsorted
		cmd := models.NewCommand(shared.GenerateID(), "Delete 2 items", &models.DeletePayload{
			CollectionID: "PL1",
			Items:        refs,
		})
		if err := s.Execute(ctx, cmd, nil); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if got := gw.ItemOrder("PL1"); len(got) != 1 || got[0] != "v2" {
			t.Fatalf("order after delete = %v, want [v2]", got)
		}

		if _, err := s.Undo(ctx, nil); err != nil {
			t.Fatalf("undo failed: %v", err)
		}
		if got := gw.ItemOrder("PL1"); len(got) != 3 || got[0] != "v1" || got[1] != "v2" || got[2] != "v3" {
			t.Fatalf("order after undo = %v, want [v1 v2 v3]", got)
		}
	})

	t.Run("CreateAndDeleteCollection", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		s := newTestSession(t, gw)

		create := models.NewCommand(shared.GenerateID(), "Create Mix", &models.CreateCollectionPayload{
			Title: "Mix",
		})
		if err := s.Execute(ctx, create, nil); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		payload := create.Payload.(*models.CreateCollectionPayload)
		if payload.CreatedID == "" {
			t.Fatal("CreatedID not recorded")
		}
		if _, ok := gw.Collections[payload.CreatedID]; !ok {
			t.Fatal("collection not created remotely")
		}

		if _, err := s.Undo(ctx, nil); err != nil {
			t.Fatalf("undo failed: %v", err)
		}
		if _, ok := gw.Collections[payload.CreatedID]; ok {
			t.Fatal("undo should delete the created collection")
		}
	})

	t.Run("DeleteCollectionUndoRebuildsContents", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		seedTwoCollections(t, gw)
		s := newTestSession(t, gw)
		warmCache(t, s)

		refs := refsFor(t, s, "PL1", "pi1", "pi2", "pi3")
		cmd := models.NewCommand(shared.GenerateID(), "Delete Source", &models.DeleteCollectionPayload{
			Collection: models.Collection{ID: "PL1", Title: "Source", Kind: models.CollectionReal},
			Items:      refs,
		})
		if err := s.Execute(ctx, cmd, nil); err != nil {
			t.Fatalf("delete collection failed: %v", err)
		}
		if _, ok := gw.Collections["PL1"]; ok {
			t.Fatal("collection not deleted remotely")
		}

		if _, err := s.Undo(ctx, nil); err != nil {
			t.Fatalf("undo failed: %v", err)
		}
		payload := cmd.Payload.(*models.DeleteCollectionPayload)
		if payload.RecreatedID == "" {
			t.Fatal("RecreatedID not recorded")
		}
		if got := gw.ItemOrder(payload.RecreatedID); len(got) != 3 || got[0] != "v1" || got[2] != "v3" {
			t.Fatalf("rebuilt contents = %v, want [v1 v2 v3]", got)
		}

		// Redo targets the re-created collection.
		if _, err := s.Redo(ctx, nil); err != nil {
			t.Fatalf("redo failed: %v", err)
		}
		if _, ok := gw.Collections[payload.RecreatedID]; ok {
			t.Fatal("redo should delete the re-created collection")
		}
	})

	t.Run("VirtualCollectionNotDeletable", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		s := newTestSession(t, gw)

		cmd := models.NewCommand(shared.GenerateID(), "Delete virtual", &models.DeleteCollectionPayload{
			Collection: models.Collection{ID: "virt", Title: "History", Kind: models.CollectionVirtual},
		})
		if err := s.Execute(ctx, cmd, nil); !errors.Is(err, shared.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestQuotaAccounting(t *testing.T) {
	ctx := context.Background()

	t.Run("PreFlightRejectionChargesNothing", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		seedTwoCollections(t, gw)

		cfg := shared.DefaultConfig()
		cfg.Cache.Path = ":memory:"
		cfg.Quota.DailyBudget = services.CostWrite - 1
		cfg.Journal.Enabled = false
		s, err := NewSessionWithGateway(cfg, gw, nil)
		if err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
		defer s.Close()

		cmd := models.NewCommand(shared.GenerateID(), "Rename", &models.RenamePayload{
			CollectionID: "PL1", OldTitle: "Source", NewTitle: "X",
		})
		err = s.Execute(ctx, cmd, nil)
		if !errors.Is(err, shared.ErrQuotaExceeded) {
			t.Fatalf("expected ErrQuotaExceeded, got %v", err)
		}

		var quotaErr *shared.QuotaError
		if !errors.As(err, &quotaErr) {
			t.Fatalf("expected *shared.QuotaError, got %T", err)
		}
		if gw.CallCount("UpdateTitle") != 0 {
			t.Error("rejected command must not reach the remote")
		}
		status, _ := s.Quota()
		if status.Used != 0 {
			t.Errorf("rejected command consumed %d units", status.Used)
		}
		if cmd.State != models.StatePending {
			t.Errorf("rejected command state = %s, want pending", cmd.State)
		}
	})

	t.Run("ReadsCostOneUnitPerPage", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		gw.PageSize = 2
		seedTwoCollections(t, gw)
		s := newTestSession(t, gw)

		if _, err := s.GetView(ctx, "PL1", true); err != nil {
			t.Fatalf("failed to refresh: %v", err)
		}
		// 3 items at 2 per page is 2 pages.
		status, _ := s.Quota()
		if status.Used != 2*services.CostRead {
			t.Errorf("used = %d, want %d", status.Used, 2*services.CostRead)
		}
	})
}

func TestPartialApplication(t *testing.T) {
	ctx := context.Background()
	errBoom := fmt.Errorf("%w: connection reset", shared.ErrTransient)

	t.Run("StandaloneWriteNotRetried", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		seedTwoCollections(t, gw)
		s := newTestSession(t, gw)
		warmCache(t, s)

		// Writes are not idempotent; a lone rename surfaces its transient
		// failure instead of being resent.
		gw.Fail("UpdateTitle", errBoom)
		cmd := models.NewCommand(shared.GenerateID(), "Rename", &models.RenamePayload{
			CollectionID: "PL1", OldTitle: "Source", NewTitle: "Renamed",
		})
		before, _ := s.Quota()
		err := s.Execute(ctx, cmd, nil)
		if !errors.Is(err, shared.ErrTransient) {
			t.Fatalf("expected the transient failure to surface, got %v", err)
		}
		if gw.CallCount("UpdateTitle") != 1 {
			t.Errorf("UpdateTitle called %d times, want 1", gw.CallCount("UpdateTitle"))
		}
		if cmd.State != models.StatePending {
			t.Errorf("state = %s, want pending", cmd.State)
		}
		if s.Engine().CanUndo() {
			t.Error("a failed command must not enter the history")
		}

		// The attempt that went out is still charged.
		after, _ := s.Quota()
		if got := after.Used - before.Used; got != services.CostWrite {
			t.Errorf("consumed %d units, want %d", got, services.CostWrite)
		}
	})

	t.Run("CompensatingRetryRecovers", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		seedTwoCollections(t, gw)
		s := newTestSession(t, gw)
		warmCache(t, s)

		refs := refsFor(t, s, "PL1", "pi1", "pi2")
		if err := s.Execute(ctx, copyCommand(refs), nil); err != nil {
			t.Fatalf("copy failed: %v", err)
		}
		cmd, err := s.Engine().PasteFromClipboard("PL2")
		if err != nil {
			t.Fatalf("failed to build paste: %v", err)
		}

		// First insert passes untouched; the second fails once after it, so
		// the command is mid-flight and gets its one compensating retry.
		gw.Fail("InsertItem", nil)
		gw.Fail("InsertItem", errBoom)

		before, _ := s.Quota()
		if err := s.Execute(ctx, cmd, nil); err != nil {
			t.Fatalf("compensating retry should have recovered: %v", err)
		}
		if gw.CallCount("InsertItem") != 3 {
			t.Errorf("InsertItem called %d times, want 3", gw.CallCount("InsertItem"))
		}
		if got := gw.ItemOrder("PL2"); len(got) != 2 {
			t.Errorf("target = %v, want both items", got)
		}

		// Every attempted call is charged, the failed one included.
		after, _ := s.Quota()
		if got := after.Used - before.Used; got != 3*services.CostWrite {
			t.Errorf("consumed %d units, want %d", got, 3*services.CostWrite)
		}
	})

	t.Run("NoProgressFailureIsPlain", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		seedTwoCollections(t, gw)
		s := newTestSession(t, gw)
		warmCache(t, s)

		// The very first sub-call fails: nothing changed remotely, so no
		// retry, no partial state, and no verification flags.
		gw.Fail("DeleteItem", errBoom)
		refs := refsFor(t, s, "PL1", "pi1", "pi2")
		cmd := models.NewCommand(shared.GenerateID(), "Delete 2 item(s)", &models.DeletePayload{
			CollectionID: "PL1", Items: refs,
		})

		err := s.Execute(ctx, cmd, nil)
		if !errors.Is(err, shared.ErrTransient) {
			t.Fatalf("expected a plain transient failure, got %v", err)
		}
		var partial *shared.PartialApplyError
		if errors.As(err, &partial) {
			t.Fatal("zero completed sub-calls must not report a partial application")
		}
		if gw.CallCount("DeleteItem") != 1 {
			t.Errorf("DeleteItem called %d times, want 1", gw.CallCount("DeleteItem"))
		}
		if cmd.State != models.StatePending {
			t.Errorf("state = %s, want pending", cmd.State)
		}
		if got := gw.ItemOrder("PL1"); len(got) != 3 {
			t.Errorf("source = %v, want untouched", got)
		}
	})

	t.Run("CutPastePartialFailure", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		seedTwoCollections(t, gw)
		s := newTestSession(t, gw)
		warmCache(t, s)

		refs := refsFor(t, s, "PL1", "pi1", "pi2")
		if err := s.Execute(ctx, cutCommand(refs), nil); err != nil {
			t.Fatalf("cut failed: %v", err)
		}
		cmd, err := s.Engine().PasteFromClipboard("PL2")
		if err != nil {
			t.Fatalf("failed to build paste: %v", err)
		}

		// Both inserts succeed; the first source delete fails twice, so the
		// compensating retry is exhausted.
		gw.Fail("DeleteItem", errBoom)
		gw.Fail("DeleteItem", errBoom)

		err = s.Execute(ctx, cmd, nil)
		var partial *shared.PartialApplyError
		if !errors.As(err, &partial) {
			t.Fatalf("expected PartialApplyError, got %v", err)
		}
		if partial.Completed != 2 || partial.Total != 4 {
			t.Errorf("completed %d/%d, want 2/4", partial.Completed, partial.Total)
		}
		if cmd.State != models.StatePartiallyApplied {
			t.Errorf("state = %s, want partially_applied", cmd.State)
		}
		if s.Engine().CanUndo() {
			t.Error("a partially applied command must not be undoable")
		}

		// The inserts happened and the source survives: items exist in both
		// collections until a verification refresh reconciles them.
		if len(gw.ItemOrder("PL2")) != 2 {
			t.Errorf("target = %v, want both inserted", gw.ItemOrder("PL2"))
		}
		if len(gw.ItemOrder("PL1")) != 3 {
			t.Errorf("source = %v, want untouched", gw.ItemOrder("PL1"))
		}

		// Affected source items carry the verification flag.
		view, err := s.GetView(ctx, "PL1", false)
		if err != nil {
			t.Fatalf("failed to get view: %v", err)
		}
		flagged := 0
		for _, item := range view.Items {
			if item.NeedsVerification {
				flagged++
			}
		}
		if flagged == 0 {
			t.Error("partial failure should flag affected items for verification")
		}
	})
}

func TestHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("UndoEmpty", func(t *testing.T) {
		s := newTestSession(t, fakes.NewFakeGateway())
		if _, err := s.Undo(ctx, nil); !errors.Is(err, shared.ErrNothingToUndo) {
			t.Fatalf("expected ErrNothingToUndo, got %v", err)
		}
		if _, err := s.Redo(ctx, nil); !errors.Is(err, shared.ErrNothingToRedo) {
			t.Fatalf("expected ErrNothingToRedo, got %v", err)
		}
	})

	t.Run("DepthCapDropsOldest", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		cfg := shared.DefaultConfig()
		cfg.Cache.Path = ":memory:"
		cfg.History.Depth = 2
		cfg.Journal.Enabled = false
		s, err := NewSessionWithGateway(cfg, gw, nil)
		if err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
		defer s.Close()

		for _, title := range []string{"A", "B", "C"} {
			cmd := models.NewCommand(shared.GenerateID(), "Create "+title, &models.CreateCollectionPayload{Title: title})
			if err := s.Execute(ctx, cmd, nil); err != nil {
				t.Fatalf("create %s failed: %v", title, err)
			}
		}

		if got := len(s.Engine().History()); got != 2 {
			t.Fatalf("history length = %d, want 2", got)
		}
		if _, err := s.Undo(ctx, nil); err != nil {
			t.Fatalf("first undo failed: %v", err)
		}
		if _, err := s.Undo(ctx, nil); err != nil {
			t.Fatalf("second undo failed: %v", err)
		}
		if _, err := s.Undo(ctx, nil); !errors.Is(err, shared.ErrNothingToUndo) {
			t.Fatalf("oldest command should have been dropped, got %v", err)
		}
	})

	t.Run("NewCommandTruncatesRedo", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		s := newTestSession(t, gw)

		a := models.NewCommand(shared.GenerateID(), "Create A", &models.CreateCollectionPayload{Title: "A"})
		if err := s.Execute(ctx, a, nil); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if _, err := s.Undo(ctx, nil); err != nil {
			t.Fatalf("undo failed: %v", err)
		}
		if !s.Engine().CanRedo() {
			t.Fatal("redo should be available after undo")
		}

		b := models.NewCommand(shared.GenerateID(), "Create B", &models.CreateCollectionPayload{Title: "B"})
		if err := s.Execute(ctx, b, nil); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if s.Engine().CanRedo() {
			t.Error("a new command must discard the redo tail")
		}
		if _, err := s.Redo(ctx, nil); !errors.Is(err, shared.ErrNothingToRedo) {
			t.Fatalf("expected ErrNothingToRedo, got %v", err)
		}
	})
}

func TestEntityLocks(t *testing.T) {
	ctx := context.Background()

	t.Run("AllOrNothing", func(t *testing.T) {
		locks := newEntityLocks()
		if err := locks.acquire([]string{"a", "b"}); err != nil {
			t.Fatalf("acquire failed: %v", err)
		}
		if err := locks.acquire([]string{"c", "b"}); !errors.Is(err, shared.ErrEntityBusy) {
			t.Fatalf("expected ErrEntityBusy, got %v", err)
		}
		// The failed acquisition must not have taken "c".
		if err := locks.acquire([]string{"c"}); err != nil {
			t.Fatalf("partial acquisition leaked: %v", err)
		}
		locks.release([]string{"a", "b"})
		if err := locks.acquire([]string{"b"}); err != nil {
			t.Fatalf("release did not free: %v", err)
		}
	})

	t.Run("BusyEntityRejectsCommand", func(t *testing.T) {
		gw := fakes.NewFakeGateway()
		seedTwoCollections(t, gw)
		s := newTestSession(t, gw)
		warmCache(t, s)

		if err := s.engine.locks.acquire([]string{"PL1"}); err != nil {
			t.Fatalf("failed to hold entity: %v", err)
		}
		defer s.engine.locks.release([]string{"PL1"})

		cmd := models.NewCommand(shared.GenerateID(), "Rename", &models.RenamePayload{
			CollectionID: "PL1", OldTitle: "Source", NewTitle: "X",
		})
		if err := s.Execute(ctx, cmd, nil); !errors.Is(err, shared.ErrEntityBusy) {
			t.Fatalf("expected ErrEntityBusy, got %v", err)
		}
		if gw.CallCount("UpdateTitle") != 0 {
			t.Error("busy rejection must not reach the remote")
		}
	})
}
