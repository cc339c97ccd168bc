package journal

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/desertthunder/ytr/internal/models"
	"github.com/desertthunder/ytr/internal/shared"
)

func listEntries(t *testing.T, root string) [][]byte {
	t.Helper()

	var entries [][]byte
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		entries = append(entries, data)
		return nil
	})
	if err != nil {
		t.Fatalf("failed to walk journal dir: %v", err)
	}
	return entries
}

func TestJournal(t *testing.T) {
	t.Run("records command transitions", func(t *testing.T) {
		dir := t.TempDir()
		jrnl, err := New(dir, shared.NewLogger(nil))
		if err != nil {
			t.Fatalf("failed to open journal: %v", err)
		}

		cmd := models.NewCommand("cmd-1", "Rename to Archive", &models.RenamePayload{
			CollectionID: "PL1",
			OldTitle:     "Source",
			NewTitle:     "Archive",
		})
		cmd.State = models.StateApplied

		jrnl.Record(cmd, "apply", nil)
		jrnl.Record(cmd, "undo", nil)

		entries := listEntries(t, dir)
		if len(entries) != 2 {
			t.Fatalf("expected 2 journal entries, got %d", len(entries))
		}

		var entry Entry
		if err := json.Unmarshal(entries[0], &entry); err != nil {
			t.Fatalf("failed to decode entry: %v", err)
		}
		if entry.CommandID != "cmd-1" {
			t.Errorf("expected command ID cmd-1, got %s", entry.CommandID)
		}
		if entry.Action != "apply" {
			t.Errorf("expected action apply, got %s", entry.Action)
		}
		if entry.State != string(models.StateApplied) {
			t.Errorf("expected applied state, got %s", entry.State)
		}
		if entry.Error != "" {
			t.Errorf("expected no error recorded, got %q", entry.Error)
		}
		if entry.RecordedAt.IsZero() {
			t.Error("expected a recorded timestamp")
		}
	})

	t.Run("captures command errors", func(t *testing.T) {
		dir := t.TempDir()
		jrnl, err := New(dir, shared.NewLogger(nil))
		if err != nil {
			t.Fatalf("failed to open journal: %v", err)
		}

		cmd := models.NewCommand("cmd-2", "Delete items", &models.DeletePayload{
			CollectionID: "PL1",
			Items:        []models.ItemRef{{ItemID: "pi1", VideoID: "v1"}},
		})
		jrnl.Record(cmd, "apply", shared.ErrTransient)

		entries := listEntries(t, dir)
		if len(entries) != 1 {
			t.Fatalf("expected 1 journal entry, got %d", len(entries))
		}

		var entry Entry
		if err := json.Unmarshal(entries[0], &entry); err != nil {
			t.Fatalf("failed to decode entry: %v", err)
		}
		if entry.Error == "" {
			t.Error("expected the command error to be recorded")
		}
	})

	t.Run("nil journal is a no-op", func(t *testing.T) {
		var jrnl *Journal

		cmd := models.NewCommand("cmd-3", "Rename", &models.RenamePayload{CollectionID: "PL1", NewTitle: "X"})
		jrnl.Record(cmd, "apply", nil) // must not panic
	})
}
