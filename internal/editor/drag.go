package editor

import (
	"encoding/json"
	"fmt"
)

// SourceKind identifies where a dragged character comes from.
type SourceKind string

const (
	SourceSearch  SourceKind = "search-sidebar"
	SourceGallery SourceKind = "gallery"
	SourceGrid    SourceKind = "grid"
)

// Source is the origin of a drag. Origin is only meaningful for grid sources.
type Source struct {
	Kind      SourceKind `json:"kind"`
	Character Character  `json:"character"`
	Origin    int        `json:"originIndex"`
}

// TargetKind identifies what a drag is over.
type TargetKind string

const (
	TargetNone  TargetKind = ""
	TargetCell  TargetKind = "cell"
	TargetTrash TargetKind = "trash"
)

// Target is a drop or hover target. The zero value means no target.
type Target struct {
	Kind  TargetKind `json:"kind,omitempty"`
	Index int        `json:"index"`
}

// CellTarget returns a target for grid cell i.
func CellTarget(i int) Target { return Target{Kind: TargetCell, Index: i} }

// TrashTarget returns the trash drop-zone target.
func TrashTarget() Target { return Target{Kind: TargetTrash} }

// DragSession is the state of an in-progress drag.
type DragSession struct {
	Source Source  `json:"source"`
	Hover  *Target `json:"hover,omitempty"`
}

// Outcome reports what a drop did.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomePlaced
	OutcomeSwapped
	OutcomeRemoved
	OutcomeConflict
)

var outcomeNames = [...]string{"none", "placed", "swapped", "removed", "conflict"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// DragController runs the idle -> dragging -> idle state machine and commits
// drops into the grid.
type DragController struct {
	grid     *Grid
	resolver *ConflictResolver
	session  *DragSession
}

// NewDragController creates a controller committing into g, raising conflicts on r.
func NewDragController(g *Grid, r *ConflictResolver) *DragController {
	return &DragController{grid: g, resolver: r}
}

// Session returns the active drag, if any.
func (d *DragController) Session() (DragSession, bool) {
	if d.session == nil {
		return DragSession{}, false
	}
	s := *d.session
	if s.Hover != nil {
		h := *s.Hover
		s.Hover = &h
	}
	return s, true
}

// Active reports whether a drag is in progress.
func (d *DragController) Active() bool { return d.session != nil }

// Start begins a drag from src.
func (d *DragController) Start(src Source) error {
	if d.session != nil {
		return ErrDragActive
	}
	switch src.Kind {
	case SourceGrid:
		if err := checkIndex(src.Origin); err != nil {
			return err
		}
	case SourceSearch, SourceGallery:
		if src.Character.ID == "" && src.Character.Name == "" && src.Character.DisplayImage() == "" {
			return ErrNoCharacter
		}
		src.Origin = 0
	default:
		return fmt.Errorf("unknown drag source %q", src.Kind)
	}
	d.session = &DragSession{Source: src}
	return nil
}

// Hover records the current target. It never touches the grid.
func (d *DragController) Hover(t Target) error {
	if d.session == nil {
		return ErrNoDrag
	}
	if t.Kind == TargetNone {
		d.session.Hover = nil
		return nil
	}
	d.session.Hover = &t
	return nil
}

// Cancel discards the drag without any grid mutation.
func (d *DragController) Cancel() {
	d.session = nil
}

// Drop ends the drag on t and commits it. The session is consumed even when
// the commit fails.
func (d *DragController) Drop(t Target) (Outcome, error) {
	if d.session == nil {
		return OutcomeNone, ErrNoDrag
	}
	src := d.session.Source
	d.session = nil

	fromGrid := src.Kind == SourceGrid

	switch t.Kind {
	case TargetTrash, TargetNone:
		// Dropping off the grid deletes like the trash zone does.
		if !fromGrid {
			return OutcomeNone, nil
		}
		if _, occupied, err := d.grid.At(src.Origin); err != nil || !occupied {
			return OutcomeNone, err
		}
		if err := d.grid.Remove(src.Origin); err != nil {
			return OutcomeNone, err
		}
		return OutcomeRemoved, nil

	case TargetCell:
		if err := checkIndex(t.Index); err != nil {
			return OutcomeNone, err
		}
		if fromGrid {
			if src.Origin == t.Index {
				return OutcomeNone, nil
			}
			if err := d.grid.Swap(src.Origin, t.Index); err != nil {
				return OutcomeNone, err
			}
			return OutcomeSwapped, nil
		}
		occupant, occupied, err := d.grid.At(t.Index)
		if err != nil {
			return OutcomeNone, err
		}
		if occupied {
			d.resolver.Raise(PendingReplace{
				Index:    t.Index,
				Incoming: src.Character,
				Occupant: occupant,
			})
			return OutcomeConflict, nil
		}
		if err := d.grid.Place(t.Index, src.Character); err != nil {
			return OutcomeNone, err
		}
		return OutcomePlaced, nil
	}
	return OutcomeNone, fmt.Errorf("unknown drop target %q", t.Kind)
}
