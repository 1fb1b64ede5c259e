package editor

import "sort"

// Mode is the grid interaction mode.
type Mode string

const (
	ModeNone  Mode = "none"
	ModeMulti Mode = "multi-select"
)

type gestureAction int

const (
	gestureIdle gestureAction = iota
	gestureAdd
	gestureRemove
)

// SelectionController owns multi-select mode, the selected index set and the
// drag-select gesture.
type SelectionController struct {
	grid     *Grid
	mode     Mode
	selected map[int]struct{}
	gesture  gestureAction
}

// NewSelectionController creates a controller in ModeNone.
func NewSelectionController(g *Grid) *SelectionController {
	return &SelectionController{grid: g, mode: ModeNone, selected: make(map[int]struct{})}
}

// Mode returns the current mode.
func (s *SelectionController) Mode() Mode { return s.mode }

// Gesturing reports whether a drag-select gesture is in progress.
func (s *SelectionController) Gesturing() bool { return s.gesture != gestureIdle }

// Selected returns the selected indices in ascending order.
func (s *SelectionController) Selected() []int {
	out := make([]int, 0, len(s.selected))
	for i := range s.selected {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// IsSelected reports whether i is selected.
func (s *SelectionController) IsSelected(i int) bool {
	_, ok := s.selected[i]
	return ok
}

// EnterMultiSelect switches to multi-select mode.
func (s *SelectionController) EnterMultiSelect() {
	s.mode = ModeMulti
}

// ExitMultiSelect leaves multi-select mode and clears the selection.
func (s *SelectionController) ExitMultiSelect() {
	s.mode = ModeNone
	s.gesture = gestureIdle
	clear(s.selected)
}

// PointerDown toggles i and starts a drag-select gesture whose action is fixed
// by i's prior membership.
func (s *SelectionController) PointerDown(i int) error {
	if err := checkIndex(i); err != nil {
		return err
	}
	if s.mode != ModeMulti {
		return nil
	}
	if s.IsSelected(i) {
		s.gesture = gestureRemove
	} else {
		s.gesture = gestureAdd
	}
	s.apply(i)
	return nil
}

// PointerEnter applies the gesture's action to i.
func (s *SelectionController) PointerEnter(i int) error {
	if err := checkIndex(i); err != nil {
		return err
	}
	if s.mode != ModeMulti || s.gesture == gestureIdle {
		return nil
	}
	s.apply(i)
	return nil
}

// PointerUp ends the gesture. The mode is unchanged.
func (s *SelectionController) PointerUp() {
	s.gesture = gestureIdle
}

func (s *SelectionController) apply(i int) {
	switch s.gesture {
	case gestureAdd:
		s.selected[i] = struct{}{}
	case gestureRemove:
		delete(s.selected, i)
	}
}

// BulkFill fills every selected cell with c, then clears the selection and
// leaves multi-select. A nil c fails with ErrNoCharacterSelected and changes nothing.
func (s *SelectionController) BulkFill(c *Character) (int, error) {
	if c == nil {
		return 0, ErrNoCharacterSelected
	}
	idx := s.Selected()
	if err := s.grid.BulkFill(idx, *c); err != nil {
		return 0, err
	}
	s.ExitMultiSelect()
	return len(idx), nil
}

// BulkDelete clears every selected cell without confirmation, then clears the
// selection and leaves multi-select.
func (s *SelectionController) BulkDelete() (int, error) {
	idx := s.Selected()
	if err := s.grid.BulkClear(idx); err != nil {
		return 0, err
	}
	s.ExitMultiSelect()
	return len(idx), nil
}
