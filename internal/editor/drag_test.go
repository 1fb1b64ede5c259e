package editor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDrag() (*Grid, *ConflictResolver, *DragController) {
	g := NewGrid()
	r := NewConflictResolver(g)
	return g, r, NewDragController(g, r)
}

func TestDragStateMachine(t *testing.T) {
	_, _, d := newDrag()

	_, err := d.Drop(CellTarget(0))
	assert.ErrorIs(t, err, ErrNoDrag)
	assert.ErrorIs(t, d.Hover(CellTarget(0)), ErrNoDrag)

	require.NoError(t, d.Start(Source{Kind: SourceSearch, Character: char("A")}))
	assert.True(t, d.Active())
	assert.ErrorIs(t, d.Start(Source{Kind: SourceSearch, Character: char("B")}), ErrDragActive)

	require.NoError(t, d.Hover(CellTarget(4)))
	s, ok := d.Session()
	require.True(t, ok)
	require.NotNil(t, s.Hover)
	assert.Equal(t, CellTarget(4), *s.Hover)

	require.NoError(t, d.Hover(Target{}))
	s, _ = d.Session()
	assert.Nil(t, s.Hover)

	d.Cancel()
	assert.False(t, d.Active())
}

func TestDragUnknownSource(t *testing.T) {
	_, _, d := newDrag()
	assert.Error(t, d.Start(Source{Kind: "clipboard"}))
	assert.ErrorIs(t, d.Start(Source{Kind: SourceGrid, Origin: 100}), ErrOutOfRange)
}

func TestDragRejectsEmptyCharacter(t *testing.T) {
	g, _, d := newDrag()
	for _, kind := range []SourceKind{SourceSearch, SourceGallery} {
		assert.ErrorIs(t, d.Start(Source{Kind: kind}), ErrNoCharacter, kind)
		assert.False(t, d.Active())
	}
	_, err := d.Drop(CellTarget(5))
	assert.ErrorIs(t, err, ErrNoDrag)
	assert.Zero(t, g.Count())
}

func TestDropSearchOnEmptyCellPlaces(t *testing.T) {
	g, _, d := newDrag()
	require.NoError(t, d.Start(Source{Kind: SourceSearch, Character: char("A")}))

	out, err := d.Drop(CellTarget(12))
	require.NoError(t, err)
	assert.Equal(t, OutcomePlaced, out)
	got, ok, _ := g.At(12)
	require.True(t, ok)
	assert.Equal(t, "A", got.ID)
	assert.False(t, d.Active())
}

func TestDropOnOccupiedCellRaisesPendingReplace(t *testing.T) {
	g, r, d := newDrag()
	require.NoError(t, g.Place(10, char("old")))
	before := g.Snapshot()

	require.NoError(t, d.Start(Source{Kind: SourceSearch, Character: char("Y")}))
	out, err := d.Drop(CellTarget(10))
	require.NoError(t, err)
	assert.Equal(t, OutcomeConflict, out)
	if diff := cmp.Diff(before, g.Snapshot()); diff != "" {
		t.Fatalf("conflicting drop mutated the grid:\n%s", diff)
	}

	p, ok := r.Pending()
	require.True(t, ok)
	assert.Equal(t, PendingReplace{Index: 10, Incoming: char("Y"), Occupant: char("old")}, p)

	require.NoError(t, r.Confirm())
	got, _, _ := g.At(10)
	assert.Equal(t, "Y", got.ID)
	_, ok = r.Pending()
	assert.False(t, ok)
}

func TestDismissLeavesCellUnchanged(t *testing.T) {
	g, r, d := newDrag()
	require.NoError(t, g.Place(10, char("old")))

	require.NoError(t, d.Start(Source{Kind: SourceGallery, Character: char("Y")}))
	_, err := d.Drop(CellTarget(10))
	require.NoError(t, err)

	r.Dismiss()
	got, _, _ := g.At(10)
	assert.Equal(t, "old", got.ID)
	_, ok := r.Pending()
	assert.False(t, ok)
	assert.ErrorIs(t, r.Confirm(), ErrNoPendingReplace)
}

func TestGridDragSwapsAndSelfDropIsNoop(t *testing.T) {
	g, _, d := newDrag()
	require.NoError(t, g.Place(1, char("A")))
	require.NoError(t, g.Place(2, char("B")))

	require.NoError(t, d.Start(Source{Kind: SourceGrid, Origin: 1, Character: char("A")}))
	out, err := d.Drop(CellTarget(2))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSwapped, out)
	a, _, _ := g.At(1)
	b, _, _ := g.At(2)
	assert.Equal(t, "B", a.ID)
	assert.Equal(t, "A", b.ID)

	before := g.Snapshot()
	require.NoError(t, d.Start(Source{Kind: SourceGrid, Origin: 2, Character: char("A")}))
	out, err = d.Drop(CellTarget(2))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNone, out)
	assert.Equal(t, before, g.Snapshot())
}

func TestGridDragOntoOccupiedCellNeverConflicts(t *testing.T) {
	g, r, d := newDrag()
	require.NoError(t, g.Place(1, char("A")))
	require.NoError(t, g.Place(2, char("B")))

	require.NoError(t, d.Start(Source{Kind: SourceGrid, Origin: 1}))
	_, err := d.Drop(CellTarget(2))
	require.NoError(t, err)
	_, pending := r.Pending()
	assert.False(t, pending)
}

func TestTrashDrop(t *testing.T) {
	g, _, d := newDrag()
	require.NoError(t, g.Place(8, char("A")))

	require.NoError(t, d.Start(Source{Kind: SourceSearch, Character: char("B")}))
	out, err := d.Drop(TrashTarget())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNone, out)
	assert.Equal(t, 1, g.Count())

	require.NoError(t, d.Start(Source{Kind: SourceGrid, Origin: 8}))
	out, err = d.Drop(TrashTarget())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRemoved, out)
	assert.Zero(t, g.Count())
}

func TestDropOffGridDeletesOnlyGridSourced(t *testing.T) {
	g, _, d := newDrag()
	require.NoError(t, g.Place(3, char("A")))
	before := g.Snapshot()

	require.NoError(t, d.Start(Source{Kind: SourceSearch, Character: char("B")}))
	out, err := d.Drop(Target{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNone, out)
	assert.Equal(t, before, g.Snapshot())

	require.NoError(t, d.Start(Source{Kind: SourceGrid, Origin: 3}))
	out, err = d.Drop(Target{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRemoved, out)
	_, ok, _ := g.At(3)
	assert.False(t, ok)
}

func TestCancelNeverMutates(t *testing.T) {
	g, _, d := newDrag()
	require.NoError(t, g.Place(3, char("A")))
	before := g.Snapshot()

	require.NoError(t, d.Start(Source{Kind: SourceGrid, Origin: 3}))
	require.NoError(t, d.Hover(TrashTarget()))
	d.Cancel()

	assert.Equal(t, before, g.Snapshot())
	_, err := d.Drop(TrashTarget())
	assert.ErrorIs(t, err, ErrNoDrag)
}

func TestDropOutOfRangeConsumesSession(t *testing.T) {
	_, _, d := newDrag()
	require.NoError(t, d.Start(Source{Kind: SourceSearch, Character: char("A")}))
	_, err := d.Drop(CellTarget(-3))
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.False(t, d.Active())
}

func TestSecondConflictReplacesPending(t *testing.T) {
	g, r, d := newDrag()
	require.NoError(t, g.Place(1, char("one")))
	require.NoError(t, g.Place(2, char("two")))

	require.NoError(t, d.Start(Source{Kind: SourceSearch, Character: char("X")}))
	_, err := d.Drop(CellTarget(1))
	require.NoError(t, err)

	// A drop onto an empty cell proceeds while the conflict is open.
	require.NoError(t, d.Start(Source{Kind: SourceSearch, Character: char("Z")}))
	out, err := d.Drop(CellTarget(50))
	require.NoError(t, err)
	assert.Equal(t, OutcomePlaced, out)

	require.NoError(t, d.Start(Source{Kind: SourceGallery, Character: char("Y")}))
	_, err = d.Drop(CellTarget(2))
	require.NoError(t, err)

	p, ok := r.Pending()
	require.True(t, ok)
	assert.Equal(t, 2, p.Index)
	assert.Equal(t, "Y", p.Incoming.ID)

	require.NoError(t, r.Confirm())
	first, _, _ := g.At(1)
	assert.Equal(t, "one", first.ID, "displaced conflict must not be applied")
}

func TestOutcomeJSON(t *testing.T) {
	b, err := OutcomeConflict.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"conflict"`, string(b))
	assert.Equal(t, "outcome(42)", Outcome(42).String())
}
