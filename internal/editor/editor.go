// Package editor implements the 10x10 character grid editing engine: the grid
// store, drag sessions, multi-select, replace confirmation, click-to-place and
// the save/load codec.
//
// An Editor is not safe for concurrent use; callers feed it events one at a
// time, in arrival order.
package editor

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ClickResult reports what a cell click did.
type ClickResult string

const (
	ClickIgnored    ClickResult = "ignored"
	ClickPlaced     ClickResult = "placed"
	ClickPeek       ClickResult = "peek"
	ClickOpenDetail ClickResult = "open_detail"
)

// Editor is one editing session over a grid.
type Editor struct {
	grid      *Grid
	drag      *DragController
	selection *SelectionController
	conflicts *ConflictResolver

	selected *Character
	meta     Meta
	now      func() time.Time
}

// Option configures an Editor.
type Option func(*Editor)

// WithClock sets the clock used for generated ids.
func WithClock(now func() time.Time) Option {
	return func(e *Editor) { e.now = now }
}

// New creates an editor over an empty grid.
func New(opts ...Option) *Editor {
	g := NewGrid()
	r := NewConflictResolver(g)
	e := &Editor{
		grid:      g,
		drag:      NewDragController(g, r),
		selection: NewSelectionController(g),
		conflicts: r,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now reads the editor's clock.
func (e *Editor) Now() time.Time { return e.now() }

// Grid returns the underlying grid store.
func (e *Editor) Grid() *Grid { return e.grid }

// --- Drag and drop ---

// StartDrag begins a drag. Grid-sourced drags take their character from the
// origin cell and are refused while multi-select is active.
func (e *Editor) StartDrag(src Source) error {
	if src.Kind == SourceGrid {
		if e.selection.Mode() == ModeMulti {
			return ErrGridDragDisabled
		}
		c, occupied, err := e.grid.At(src.Origin)
		if err != nil {
			return err
		}
		if !occupied {
			return fmt.Errorf("%w: %d", ErrEmptyCell, src.Origin)
		}
		src.Character = c
	}
	return e.drag.Start(src)
}

// Hover updates the drag's hover target.
func (e *Editor) Hover(t Target) error { return e.drag.Hover(t) }

// Drop commits the drag on t.
func (e *Editor) Drop(t Target) (Outcome, error) { return e.drag.Drop(t) }

// CancelDrag discards the drag.
func (e *Editor) CancelDrag() { e.drag.Cancel() }

// ConfirmReplace commits the pending replace.
func (e *Editor) ConfirmReplace() error { return e.conflicts.Confirm() }

// DismissReplace drops the pending replace.
func (e *Editor) DismissReplace() { e.conflicts.Dismiss() }

// --- Multi-select ---

// EnterMultiSelect switches to multi-select mode. It is refused mid-drag.
func (e *Editor) EnterMultiSelect() error {
	if e.drag.Active() {
		return ErrMultiSelectDuringDrag
	}
	e.selection.EnterMultiSelect()
	return nil
}

// ExitMultiSelect leaves multi-select and clears the selection.
func (e *Editor) ExitMultiSelect() { e.selection.ExitMultiSelect() }

// PointerDownOnCell starts a drag-select gesture at i.
func (e *Editor) PointerDownOnCell(i int) error { return e.selection.PointerDown(i) }

// PointerEnterCell extends the drag-select gesture to i.
func (e *Editor) PointerEnterCell(i int) error { return e.selection.PointerEnter(i) }

// PointerUp ends the drag-select gesture.
func (e *Editor) PointerUp() { e.selection.PointerUp() }

// BulkFill fills the selected cells with the character selected for placement.
// On success the placement selection is cleared as well.
func (e *Editor) BulkFill() (int, error) {
	n, err := e.selection.BulkFill(e.selected)
	if err != nil {
		return 0, err
	}
	e.selected = nil
	return n, nil
}

// BulkDelete empties the selected cells.
func (e *Editor) BulkDelete() (int, error) { return e.selection.BulkDelete() }

// --- Click to place ---

// SelectCharacterForPlacement sets (or, with nil, clears) the character used by
// click-to-place and bulk fill.
func (e *Editor) SelectCharacterForPlacement(c *Character) {
	if c == nil {
		e.selected = nil
		return
	}
	cp := *c
	e.selected = &cp
}

// Selected returns the character selected for placement.
func (e *Editor) Selected() (Character, bool) {
	if e.selected == nil {
		return Character{}, false
	}
	return *e.selected, true
}

// ClickCell places the selected character into an empty cell. Clicking an
// occupied cell never replaces it: with a selection it switches the selection
// to the occupant, without one it asks for the occupant's detail view.
func (e *Editor) ClickCell(i int) (ClickResult, error) {
	occupant, occupied, err := e.grid.At(i)
	if err != nil {
		return ClickIgnored, err
	}
	if e.selection.Mode() == ModeMulti {
		return ClickIgnored, nil
	}
	switch {
	case e.selected != nil && !occupied:
		if err := e.grid.Place(i, *e.selected); err != nil {
			return ClickIgnored, err
		}
		return ClickPlaced, nil
	case e.selected != nil && occupied:
		e.selected = &occupant
		return ClickPeek, nil
	case occupied:
		return ClickOpenDetail, nil
	}
	return ClickIgnored, nil
}

// RenameSelected renames the selected character and every grid occupant that
// shares its override image. A blank name keeps the current one.
func (e *Editor) RenameSelected(name string) error {
	if e.selected == nil {
		return ErrNoCharacterSelected
	}
	if !e.selected.Provenance.NameEditable() {
		return fmt.Errorf("%w: provenance %q", ErrNameNotEditable, e.selected.Provenance)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	e.grid.UpdateMatching(e.selected.OverrideImageURL, func(c *Character) { c.Name = name })
	e.selected.Name = name
	return nil
}

// SetSelectedOverride changes the selected character's override image and
// carries the change to grid occupants that shared the previous override.
func (e *Editor) SetSelectedOverride(url string) error {
	if e.selected == nil {
		return ErrNoCharacterSelected
	}
	url = strings.TrimSpace(url)
	e.grid.UpdateMatching(e.selected.OverrideImageURL, func(c *Character) { c.OverrideImageURL = url })
	e.selected.OverrideImageURL = url
	return nil
}

// --- Metadata ---

// Meta returns the grid's metadata.
func (e *Editor) Meta() Meta { return e.meta }

// SetTitle sets the grid title.
func (e *Editor) SetTitle(title string) { e.meta.Title = strings.TrimSpace(title) }

// SetVerdict attaches an analysis verdict and resets its feedback.
func (e *Editor) SetVerdict(v *Verdict) {
	e.meta.Verdict = v
	e.meta.VerdictFeedback = ""
}

// SetVerdictFeedback records the user's reaction to the verdict.
func (e *Editor) SetVerdictFeedback(f string) { e.meta.VerdictFeedback = f }

// --- Persistence ---

// Export serializes the grid and its metadata.
func (e *Editor) Export() Document {
	return Encode(e.grid.Snapshot(), e.meta)
}

// Load replaces the grid with the decoded input and reports how many entries
// were loaded and skipped. On any error the grid and metadata are left untouched.
func (e *Editor) Load(input []byte) (*Decoded, error) {
	return e.apply(Decoder{Now: e.now}.Decode(input))
}

// LoadRecord replaces the grid with a stored share record's grid and metadata.
// It fails like Load.
func (e *Editor) LoadRecord(grid json.RawMessage, meta Meta) (*Decoded, error) {
	return e.apply(Decoder{Now: e.now}.DecodeRecord(grid, meta))
}

func (e *Editor) apply(d *Decoded, err error) (*Decoded, error) {
	if err != nil {
		return nil, err
	}
	e.drag.Cancel()
	e.conflicts.Dismiss()
	e.selection.ExitMultiSelect()
	e.grid.Replace(d.Cells)
	if d.Meta.Title != "" {
		e.meta.Title = d.Meta.Title
	}
	if d.Meta.Verdict != nil {
		e.meta.Verdict = d.Meta.Verdict
		e.meta.VerdictFeedback = d.Meta.VerdictFeedback
	}
	return d, nil
}

// --- Output ---

// CellState is one rendered cell.
type CellState struct {
	Index     int        `json:"index"`
	Character *Character `json:"character"`
	Selected  bool       `json:"selected,omitempty"`
}

// State is everything a renderer needs.
type State struct {
	Cells             []CellState     `json:"cells"`
	Count             int             `json:"count"`
	Drag              *DragSession    `json:"drag,omitempty"`
	Mode              Mode            `json:"mode"`
	SelectedIndices   []int           `json:"selectedIndices"`
	PendingReplace    *PendingReplace `json:"pendingReplace,omitempty"`
	SelectedCharacter *Character      `json:"selectedCharacter,omitempty"`
	Title             string          `json:"title,omitempty"`
	Verdict           *Verdict        `json:"verdict,omitempty"`
	VerdictFeedback   string          `json:"verdictFeedback,omitempty"`
}

// State returns a snapshot of the session.
func (e *Editor) State() State {
	snap := e.grid.Snapshot()
	st := State{
		Cells:           make([]CellState, Size),
		Count:           snap.Count(),
		Mode:            e.selection.Mode(),
		SelectedIndices: e.selection.Selected(),
		Title:           e.meta.Title,
		Verdict:         e.meta.Verdict,
		VerdictFeedback: e.meta.VerdictFeedback,
	}
	for i, c := range snap {
		st.Cells[i] = CellState{Index: i, Character: c, Selected: e.selection.IsSelected(i)}
	}
	if s, ok := e.drag.Session(); ok {
		st.Drag = &s
	}
	if p, ok := e.conflicts.Pending(); ok {
		st.PendingReplace = &p
	}
	if c, ok := e.Selected(); ok {
		st.SelectedCharacter = &c
	}
	return st
}
