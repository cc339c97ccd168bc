// Package journal writes an append-only audit trail of executed commands to
// a local key-value store, one record per command transition. The journal is
// diagnostic: nothing reads it back at runtime, and a journal write failure
// never fails the command that triggered it.
package journal

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/peterbourgon/diskv/v3"

	"github.com/desertthunder/ytr/internal/models"
	"github.com/desertthunder/ytr/internal/shared"
)

// Entry is one journaled command transition.
type Entry struct {
	CommandID   string    `json:"command_id"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Action      string    `json:"action"` // apply, undo, or redo
	State       string    `json:"state"`  // Resulting command state
	Error       string    `json:"error,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Journal persists entries under timestamp-prefixed keys so a directory
// listing reads in execution order.
type Journal struct {
	store  *diskv.Diskv
	logger *log.Logger
	seq    int
}

// New opens (creating if needed) a journal rooted at path.
func New(path string, logger *log.Logger) (*Journal, error) {
	expanded, err := shared.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve journal path: %w", err)
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	store := diskv.New(diskv.Options{
		BasePath: expanded,
		Transform: func(key string) []string {
			// Shard by day so one directory never grows unbounded.
			if len(key) >= 10 {
				return []string{key[:10]}
			}
			return []string{}
		},
		CacheSizeMax: 0,
	})

	return &Journal{store: store, logger: logger}, nil
}

// Record appends one transition. Failures are logged and swallowed.
func (j *Journal) Record(cmd *models.Command, action string, cmdErr error) {
	if j == nil {
		return
	}

	entry := Entry{
		CommandID:   cmd.ID,
		Kind:        string(cmd.Kind),
		Description: cmd.Description,
		Action:      action,
		State:       string(cmd.State),
		RecordedAt:  time.Now().UTC(),
	}
	if cmdErr != nil {
		entry.Error = cmdErr.Error()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		j.logger.Warn("failed to encode journal entry", "command", cmd.ID, "error", err)
		return
	}

	j.seq++
	key := fmt.Sprintf("%s_%06d_%s", entry.RecordedAt.Format("2006-01-02T15-04-05"), j.seq, sanitize(cmd.ID))
	if err := j.store.Write(key, data); err != nil {
		j.logger.Warn("failed to write journal entry", "command", cmd.ID, "error", err)
	}
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}
