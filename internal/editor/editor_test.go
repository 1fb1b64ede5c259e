package editor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClickToPlaceEmptyCell(t *testing.T) {
	e := New()
	a := char("A")
	e.SelectCharacterForPlacement(&a)

	res, err := e.ClickCell(0)
	require.NoError(t, err)
	assert.Equal(t, ClickPlaced, res)
	got, ok, _ := e.Grid().At(0)
	require.True(t, ok)
	assert.Equal(t, "A", got.ID)
}

func TestClickOccupiedCellNeverReplaces(t *testing.T) {
	e := New()
	require.NoError(t, e.Grid().Place(3, char("occupant")))
	a := char("A")
	e.SelectCharacterForPlacement(&a)

	res, err := e.ClickCell(3)
	require.NoError(t, err)
	assert.Equal(t, ClickPeek, res)

	got, _, _ := e.Grid().At(3)
	assert.Equal(t, "occupant", got.ID)
	sel, ok := e.Selected()
	require.True(t, ok)
	assert.Equal(t, "occupant", sel.ID)
}

func TestClickWithoutSelection(t *testing.T) {
	e := New()
	require.NoError(t, e.Grid().Place(3, char("occupant")))

	res, err := e.ClickCell(3)
	require.NoError(t, err)
	assert.Equal(t, ClickOpenDetail, res)

	res, err = e.ClickCell(4)
	require.NoError(t, err)
	assert.Equal(t, ClickIgnored, res)

	_, err = e.ClickCell(100)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestClickIgnoredInMultiSelect(t *testing.T) {
	e := New()
	a := char("A")
	e.SelectCharacterForPlacement(&a)
	require.NoError(t, e.EnterMultiSelect())

	res, err := e.ClickCell(0)
	require.NoError(t, err)
	assert.Equal(t, ClickIgnored, res)
	assert.Zero(t, e.Grid().Count())
}

func TestMultiSelectExcludesGridDrag(t *testing.T) {
	e := New()
	require.NoError(t, e.Grid().Place(0, char("A")))

	require.NoError(t, e.StartDrag(Source{Kind: SourceSearch, Character: char("B")}))
	assert.ErrorIs(t, e.EnterMultiSelect(), ErrMultiSelectDuringDrag)
	e.CancelDrag()

	require.NoError(t, e.EnterMultiSelect())
	assert.ErrorIs(t, e.StartDrag(Source{Kind: SourceGrid, Origin: 0}), ErrGridDragDisabled)
}

func TestStartGridDragUsesOccupant(t *testing.T) {
	e := New()
	require.NoError(t, e.Grid().Place(6, char("A")))

	assert.ErrorIs(t, e.StartDrag(Source{Kind: SourceGrid, Origin: 7}), ErrEmptyCell)
	require.NoError(t, e.StartDrag(Source{Kind: SourceGrid, Origin: 6, Character: char("spoofed")}))

	st := e.State()
	require.NotNil(t, st.Drag)
	assert.Equal(t, "A", st.Drag.Source.Character.ID)
}

func TestBulkFillScenario(t *testing.T) {
	e := New()
	require.NoError(t, e.EnterMultiSelect())
	require.NoError(t, e.PointerDownOnCell(1))
	require.NoError(t, e.PointerEnterCell(2))
	require.NoError(t, e.PointerEnterCell(3))
	e.PointerUp()

	_, err := e.BulkFill()
	require.ErrorIs(t, err, ErrNoCharacterSelected)
	assert.Zero(t, e.Grid().Count())

	x := char("X")
	e.SelectCharacterForPlacement(&x)
	n, err := e.BulkFill()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	st := e.State()
	assert.Equal(t, ModeNone, st.Mode)
	assert.Empty(t, st.SelectedIndices)
	for _, i := range []int{1, 2, 3} {
		require.NotNil(t, st.Cells[i].Character)
		assert.Equal(t, "X", st.Cells[i].Character.ID)
	}
	assert.Nil(t, st.SelectedCharacter)
}

func TestReplaceScenario(t *testing.T) {
	e := New()
	require.NoError(t, e.Grid().Place(10, char("prior")))

	require.NoError(t, e.StartDrag(Source{Kind: SourceSearch, Character: char("Y")}))
	out, err := e.Drop(CellTarget(10))
	require.NoError(t, err)
	assert.Equal(t, OutcomeConflict, out)

	st := e.State()
	require.NotNil(t, st.PendingReplace)
	assert.Equal(t, "prior", st.PendingReplace.Occupant.ID)

	require.NoError(t, e.ConfirmReplace())
	got, _, _ := e.Grid().At(10)
	assert.Equal(t, "Y", got.ID)
	assert.Nil(t, e.State().PendingReplace)
}

func TestRenameSelectedPropagates(t *testing.T) {
	e := New()
	up := NewUploaded("megumin.png", "data:image/jpeg;base64,AAA", time.UnixMilli(1))
	e.SelectCharacterForPlacement(&up)
	_, err := e.ClickCell(0)
	require.NoError(t, err)
	_, err = e.ClickCell(1)
	require.NoError(t, err)
	require.NoError(t, e.Grid().Place(2, char("catalog")))

	require.NoError(t, e.RenameSelected("  Megumin  "))
	for _, i := range []int{0, 1} {
		got, _, _ := e.Grid().At(i)
		assert.Equal(t, "Megumin", got.Name)
	}
	other, _, _ := e.Grid().At(2)
	assert.Equal(t, "Char catalog", other.Name)
	sel, _ := e.Selected()
	assert.Equal(t, "Megumin", sel.Name)

	require.NoError(t, e.RenameSelected("   "))
	sel, _ = e.Selected()
	assert.Equal(t, "Megumin", sel.Name)
}

func TestRenameRequiresEditableProvenance(t *testing.T) {
	e := New()
	assert.ErrorIs(t, e.RenameSelected("x"), ErrNoCharacterSelected)

	c := char("A")
	e.SelectCharacterForPlacement(&c)
	assert.ErrorIs(t, e.RenameSelected("x"), ErrNameNotEditable)
}

func TestSetSelectedOverridePropagates(t *testing.T) {
	e := New()
	c, err := NewFromURL("Rem", "https://img.example/rem.png", time.UnixMilli(5))
	require.NoError(t, err)
	e.SelectCharacterForPlacement(&c)
	_, err = e.ClickCell(40)
	require.NoError(t, err)

	require.NoError(t, e.SetSelectedOverride("https://img.example/rem2.png"))
	got, _, _ := e.Grid().At(40)
	assert.Equal(t, "https://img.example/rem2.png", got.OverrideImageURL)
	assert.Equal(t, "https://img.example/rem2.png", got.DisplayImage())
}

func TestLoadMalformedLeavesGridUntouched(t *testing.T) {
	e := New()
	require.NoError(t, e.Grid().Place(0, char("A")))
	e.SetTitle("Keep")
	before, err := json.Marshal(e.Export())
	require.NoError(t, err)

	_, err = e.Load([]byte("{not json"))
	require.ErrorIs(t, err, ErrNoValidData)

	after, err := json.Marshal(e.Export())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestLoadReplacesGridAndResetsTransientState(t *testing.T) {
	e := New(WithClock(fixedNow))
	require.NoError(t, e.Grid().Place(0, char("A")))
	require.NoError(t, e.Grid().Place(1, char("B")))
	require.NoError(t, e.StartDrag(Source{Kind: SourceSearch, Character: char("C")}))
	_, err := e.Drop(CellTarget(0))
	require.NoError(t, err)

	d, err := e.Load([]byte(`{"grid":[{"i":50,"n":"Loaded","img":"l.jpg"}],"title":"New title"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, d.Loaded)

	st := e.State()
	assert.Equal(t, 1, st.Count)
	assert.Nil(t, st.PendingReplace)
	assert.Equal(t, "New title", st.Title)
	require.NotNil(t, st.Cells[50].Character)
	assert.Equal(t, "1700000000000", st.Cells[50].Character.ID)
}

func TestExportLoadRoundTrip(t *testing.T) {
	e := New()
	for i, id := range []string{"A", "B", "C"} {
		require.NoError(t, e.Grid().Place(i*33, char(id)))
	}
	e.SetTitle("Favourites")
	e.SetVerdict(&Verdict{Emoji: "✨", EN: VerdictText{Title: "Sparkly"}})
	e.SetVerdictFeedback("like")

	b, err := json.Marshal(e.Export())
	require.NoError(t, err)

	f := New()
	_, err = f.Load(b)
	require.NoError(t, err)
	assert.Equal(t, e.Grid().Snapshot(), f.Grid().Snapshot())
	assert.Equal(t, e.Meta(), f.Meta())
}

func TestStateShape(t *testing.T) {
	e := New()
	st := e.State()
	assert.Len(t, st.Cells, Size)
	assert.Equal(t, ModeNone, st.Mode)
	assert.NotNil(t, st.SelectedIndices)

	b, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"selectedIndices":[]`)
}

func TestStateShapeKeepsCellZero(t *testing.T) {
	e := New()
	require.NoError(t, e.Grid().Place(0, char("A")))
	require.NoError(t, e.StartDrag(Source{Kind: SourceGrid, Origin: 0}))
	require.NoError(t, e.Hover(CellTarget(0)))

	b, err := json.Marshal(e.State().Drag)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"originIndex":0`)
	assert.Contains(t, string(b), `"hover":{"kind":"cell","index":0}`)
}
