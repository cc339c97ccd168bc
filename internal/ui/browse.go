package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/ytr/internal/models"
	"github.com/desertthunder/ytr/internal/shared"
	"github.com/desertthunder/ytr/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	CollectionListView ViewState = iota
	ItemListView
)

// Model represents the TUI application state.
type Model struct {
	ctx     context.Context
	session *tasks.Session
	view    ViewState
	width   int
	height  int

	collectionList list.Model
	collections    []models.Collection
	itemList       list.Model
	current        *models.View
	selection      *models.Selection

	quota  models.QuotaEntry
	status string
	err    error
	help   help.Model
	keys   keyMap
}

type collectionsFetchedMsg struct {
	collections []models.Collection
	stale       bool
	err         error
}

type viewFetchedMsg struct {
	view *models.View
	err  error
}

type commandDoneMsg struct {
	label string
	err   error
}

// NewModel creates a new TUI model over an open session.
func NewModel(ctx context.Context, session *tasks.Session) *Model {
	return &Model{
		ctx:       ctx,
		session:   session,
		view:      CollectionListView,
		selection: models.NewSelection(),
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

// Init initializes the TUI by fetching the collection listing.
func (m *Model) Init() tea.Cmd {
	return m.fetchCollections(false)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.collectionList.Width() == 0 {
			m.collectionList.SetSize(msg.Width-4, msg.Height-8)
		}
		if m.itemList.Width() == 0 {
			m.itemList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case CollectionListView:
			return m.handleCollectionKeys(msg)
		case ItemListView:
			return m.handleItemKeys(msg)
		}

	case collectionsFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.collections = msg.collections
		items := make([]list.Item, len(msg.collections))
		for i, c := range msg.collections {
			items[i] = collectionItem{collection: c}
		}
		m.collectionList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.collectionList.Title = "Collections"
		if msg.stale {
			m.collectionList.Title = "Collections (stale)"
		}
		m.collectionList.SetSize(m.width-4, m.height-8)
		m.refreshQuota()
		return m, nil

	case viewFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.view = CollectionListView
			return m, nil
		}
		m.err = nil
		m.current = msg.view
		m.rebuildItemList()
		m.view = ItemListView
		m.refreshQuota()
		return m, nil

	case commandDoneMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.status = msg.label
		}
		m.refreshQuota()
		// Reload whatever is on screen from the cache.
		if m.view == ItemListView && m.current != nil {
			return m, m.fetchView(m.current.CollectionID, false)
		}
		return m, m.fetchCollections(false)
	}

	return m.updateLists(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case CollectionListView:
		body = m.collectionList.View()
	case ItemListView:
		body = m.itemList.View()
	}

	return fmt.Sprintf("%s\n\n%s\n%s", body, m.statusLine(), m.helpLine())
}

func (m *Model) statusLine() string {
	line := styles.dim.Render(fmt.Sprintf("quota %d/%d", m.quota.Used, m.quota.Budget))
	clip := m.session.Engine().Clipboard()
	if !clip.Empty() {
		line += fmt.Sprintf(" • clipboard: %d %s", len(clip.Items), clip.Mode)
	}
	if m.current != nil && m.view == ItemListView && m.current.Stale {
		line += " • " + styles.warn.Render("stale")
	}
	if m.err != nil {
		return line + " • " + styles.err.Render(m.err.Error())
	}
	if m.status != "" {
		line += " • " + styles.ok.Render(m.status)
	}
	return line
}

func (m *Model) helpLine() string {
	if m.view == CollectionListView {
		return m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.refresh, m.keys.undo, m.keys.quit})
	}
	return m.help.ShortHelpView([]key.Binding{
		m.keys.mark, m.keys.cut, m.keys.copy, m.keys.paste, m.keys.del, m.keys.undo, m.keys.back,
	})
}

func (m *Model) handleCollectionKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if selected, ok := m.collectionList.SelectedItem().(collectionItem); ok {
			m.selection.Clear()
			return m, m.fetchView(selected.collection.ID, false)
		}
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchCollections(true)
	case key.Matches(msg, m.keys.paste):
		if selected, ok := m.collectionList.SelectedItem().(collectionItem); ok {
			return m, m.paste(selected.collection.ID)
		}
	case key.Matches(msg, m.keys.undo):
		return m, m.undo()
	case key.Matches(msg, m.keys.redo):
		return m, m.redo()
	}

	var cmd tea.Cmd
	m.collectionList, cmd = m.collectionList.Update(msg)
	return m, cmd
}

func (m *Model) handleItemKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = CollectionListView
		return m, m.fetchCollections(false)
	case key.Matches(msg, m.keys.mark):
		if selected, ok := m.itemList.SelectedItem().(videoItem); ok {
			m.selection.Toggle(selected.item.ID)
			m.rebuildItemList()
		}
		return m, nil
	case key.Matches(msg, m.keys.cut):
		return m, m.stage(models.ClipCut)
	case key.Matches(msg, m.keys.copy):
		return m, m.stage(models.ClipCopy)
	case key.Matches(msg, m.keys.paste):
		if m.current != nil {
			return m, m.paste(m.current.CollectionID)
		}
	case key.Matches(msg, m.keys.del):
		return m, m.deleteMarked()
	case key.Matches(msg, m.keys.undo):
		return m, m.undo()
	case key.Matches(msg, m.keys.redo):
		return m, m.redo()
	case key.Matches(msg, m.keys.refresh):
		if m.current != nil {
			return m, m.fetchView(m.current.CollectionID, true)
		}
	}

	var cmd tea.Cmd
	m.itemList, cmd = m.itemList.Update(msg)
	return m, cmd
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case CollectionListView:
		m.collectionList, cmd = m.collectionList.Update(msg)
	case ItemListView:
		m.itemList, cmd = m.itemList.Update(msg)
	}
	return m, cmd
}

func (m *Model) rebuildItemList() {
	if m.current == nil {
		return
	}
	items := make([]list.Item, len(m.current.Items))
	for i, item := range m.current.Items {
		items[i] = videoItem{item: item, marked: m.selection.Marked(item.ID)}
	}
	m.itemList = list.New(items, list.NewDefaultDelegate(), 0, 0)
	m.itemList.Title = m.current.CollectionID
	for _, c := range m.collections {
		if c.ID == m.current.CollectionID {
			m.itemList.Title = c.Title
		}
	}
	m.itemList.SetSize(m.width-4, m.height-8)
}

func (m *Model) refreshQuota() {
	if quota, err := m.session.Quota(); err == nil {
		m.quota = quota
	}
}

// markedRefs returns the refs of the marked items, falling back to the
// cursor item when nothing is marked.
func (m *Model) markedRefs() []models.ItemRef {
	if m.current == nil {
		return nil
	}

	var refs []models.ItemRef
	for _, item := range m.current.Items {
		if m.selection.Marked(item.ID) {
			refs = append(refs, models.ItemRef{
				ItemID:   item.ID,
				VideoID:  item.VideoID,
				Title:    item.Title,
				Position: item.Position,
			})
		}
	}
	if len(refs) == 0 {
		if selected, ok := m.itemList.SelectedItem().(videoItem); ok {
			refs = append(refs, models.ItemRef{
				ItemID:   selected.item.ID,
				VideoID:  selected.item.VideoID,
				Title:    selected.item.Title,
				Position: selected.item.Position,
			})
		}
	}
	return refs
}

func (m *Model) fetchCollections(force bool) tea.Cmd {
	return func() tea.Msg {
		collections, stale, err := m.session.Collections(m.ctx, force)
		return collectionsFetchedMsg{collections: collections, stale: stale, err: err}
	}
}

func (m *Model) fetchView(collectionID string, force bool) tea.Cmd {
	return func() tea.Msg {
		view, err := m.session.GetView(m.ctx, collectionID, force)
		return viewFetchedMsg{view: view, err: err}
	}
}

func (m *Model) stage(mode models.ClipMode) tea.Cmd {
	refs := m.markedRefs()
	if len(refs) == 0 || m.current == nil {
		return nil
	}
	source := m.current.CollectionID
	m.selection.Clear()

	return func() tea.Msg {
		var payload models.Payload
		verb := "copied"
		if mode == models.ClipCut {
			payload = &models.CutPayload{SourceCollectionID: source, Items: refs}
			verb = "cut"
		} else {
			payload = &models.CopyPayload{SourceCollectionID: source, Items: refs}
		}

		cmd := models.NewCommand(shared.GenerateID(), fmt.Sprintf("%d item(s) %s", len(refs), verb), payload)
		err := m.session.Execute(m.ctx, cmd, nil)
		return commandDoneMsg{label: cmd.Description, err: err}
	}
}

func (m *Model) paste(targetCollectionID string) tea.Cmd {
	return func() tea.Msg {
		cmd, err := m.session.Engine().PasteFromClipboard(targetCollectionID)
		if err != nil {
			return commandDoneMsg{err: err}
		}
		err = m.session.Execute(m.ctx, cmd, nil)
		return commandDoneMsg{label: cmd.Description, err: err}
	}
}

func (m *Model) deleteMarked() tea.Cmd {
	refs := m.markedRefs()
	if len(refs) == 0 || m.current == nil {
		return nil
	}
	collectionID := m.current.CollectionID
	m.selection.Clear()

	return func() tea.Msg {
		cmd := models.NewCommand(
			shared.GenerateID(),
			fmt.Sprintf("Delete %d item(s)", len(refs)),
			&models.DeletePayload{CollectionID: collectionID, Items: refs},
		)
		err := m.session.Execute(m.ctx, cmd, nil)
		return commandDoneMsg{label: cmd.Description, err: err}
	}
}

func (m *Model) undo() tea.Cmd {
	return func() tea.Msg {
		cmd, err := m.session.Undo(m.ctx, nil)
		if err != nil {
			return commandDoneMsg{err: err}
		}
		return commandDoneMsg{label: "Undid: " + cmd.String()}
	}
}

func (m *Model) redo() tea.Cmd {
	return func() tea.Msg {
		cmd, err := m.session.Redo(m.ctx, nil)
		if err != nil {
			return commandDoneMsg{err: err}
		}
		return commandDoneMsg{label: "Redid: " + cmd.String()}
	}
}
