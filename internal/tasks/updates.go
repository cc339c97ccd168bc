package tasks

import "fmt"

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase, 0 when unknown
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchCollections Phase = iota
	FetchItems
	MergeCache
	ApplyCommand
	ReverseCommand
)

func (p Phase) String() string {
	switch p {
	case FetchCollections:
		return "fetch_collections"
	case FetchItems:
		return "fetch_items"
	case MergeCache:
		return "merge_cache"
	case ApplyCommand:
		return "apply_command"
	case ReverseCommand:
		return "reverse_command"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func fetchCollectionsUpdate(page int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchCollections,
		Step:    page,
		Message: fmt.Sprintf("Fetching collections (page %d)...", page),
	}
}

func fetchItemsUpdate(collectionID string, page, fetched int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchItems,
		Step:    page,
		Message: fmt.Sprintf("Fetching %s (page %d, %d items)...", collectionID, page, fetched),
	}
}

func mergeUpdate(collectionID string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MergeCache,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Merged %d items for %s", count, collectionID),
	}
}

func applyStepUpdate(description string, step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ApplyCommand,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, description),
	}
}
