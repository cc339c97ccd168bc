package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/ytr/internal/models"
)

var (
	_ list.Item = collectionItem{}
	_ list.Item = videoItem{}
)

// collectionItem wraps [models.Collection] to implement [list.Item].
type collectionItem struct {
	collection models.Collection
}

func (i collectionItem) FilterValue() string { return i.collection.Title }
func (i collectionItem) Title() string       { return i.collection.Title }
func (i collectionItem) Description() string {
	desc := fmt.Sprintf("%d items", i.collection.ItemCount)
	if i.collection.Kind == models.CollectionVirtual {
		desc += " (virtual)"
	}
	return desc
}

// videoItem wraps [models.Item] to implement [list.Item], decorating the
// title with mark and verification state.
type videoItem struct {
	item   models.Item
	marked bool
}

func (i videoItem) FilterValue() string { return i.item.Title }
func (i videoItem) Title() string {
	title := i.item.Title
	if i.marked {
		title = "● " + title
	}
	if i.item.NeedsVerification {
		title += " ⚠"
	}
	return title
}
func (i videoItem) Description() string {
	if i.item.Duration != "" {
		return fmt.Sprintf("%s • %s", i.item.VideoID, i.item.Duration)
	}
	return i.item.VideoID
}
