package models

// Clipboard holds the pending cut/copy payload consumed when a paste command
// is built. It lives only in memory: an explicit clear or a process restart
// empties it.
type Clipboard struct {
	Mode               ClipMode
	SourceCollectionID string
	Items              []Item
}

// Set replaces the clipboard contents. Items are copied so later cache
// merges cannot mutate a staged payload.
func (c *Clipboard) Set(mode ClipMode, sourceCollectionID string, items []Item) {
	c.Mode = mode
	c.SourceCollectionID = sourceCollectionID
	c.Items = make([]Item, len(items))
	copy(c.Items, items)
}

// Clear empties the clipboard.
func (c *Clipboard) Clear() {
	c.Mode = ""
	c.SourceCollectionID = ""
	c.Items = nil
}

// Empty reports whether there is nothing staged. The value receiver lets
// callers ask a copied clipboard directly.
func (c Clipboard) Empty() bool {
	return len(c.Items) == 0
}

// Refs converts the staged items into command item references.
func (c *Clipboard) Refs() []ItemRef {
	refs := make([]ItemRef, len(c.Items))
	for i, it := range c.Items {
		refs[i] = ItemRef{
			ItemID:   it.ID,
			VideoID:  it.VideoID,
			Title:    it.Title,
			Position: it.Position,
		}
	}
	return refs
}

// Selection is an insertion-ordered set of marked item IDs.
type Selection struct {
	order []string
	set   map[string]struct{}
}

// NewSelection creates an empty selection.
func NewSelection() *Selection {
	return &Selection{set: make(map[string]struct{})}
}

// Mark adds an item ID, keeping first-marked order. Marking twice is a no-op.
func (s *Selection) Mark(id string) {
	if _, ok := s.set[id]; ok {
		return
	}
	s.set[id] = struct{}{}
	s.order = append(s.order, id)
}

// Unmark removes an item ID if present.
func (s *Selection) Unmark(id string) {
	if _, ok := s.set[id]; !ok {
		return
	}
	delete(s.set, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Toggle flips an item's marked state and reports the new state.
func (s *Selection) Toggle(id string) bool {
	if _, ok := s.set[id]; ok {
		s.Unmark(id)
		return false
	}
	s.Mark(id)
	return true
}

// Marked reports whether the item ID is currently marked.
func (s *Selection) Marked(id string) bool {
	_, ok := s.set[id]
	return ok
}

// IDs returns the marked IDs in insertion order.
func (s *Selection) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of marked items.
func (s *Selection) Len() int { return len(s.order) }

// Clear removes all marks.
func (s *Selection) Clear() {
	s.order = nil
	s.set = make(map[string]struct{})
}
