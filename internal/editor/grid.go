package editor

import (
	"fmt"
	"sort"
	"sync"
)

// Grid dimensions. Cells are addressed row-major.
const (
	Columns = 10
	Rows    = 10
	Size    = Columns * Rows
)

// Op names a grid mutation.
type Op string

const (
	OpPlace     Op = "place"
	OpRemove    Op = "remove"
	OpSwap      Op = "swap"
	OpBulkFill  Op = "bulk_fill"
	OpBulkClear Op = "bulk_clear"
	OpReplace   Op = "replace"
	OpUpdate    Op = "update"
)

// Change describes one committed mutation.
type Change struct {
	Op      Op    `json:"op"`
	Indices []int `json:"indices"`
}

// Snapshot is a copy of all cells; nil means empty.
type Snapshot [Size]*Character

// Count returns the number of occupied cells.
func (s *Snapshot) Count() int {
	n := 0
	for _, c := range s {
		if c != nil {
			n++
		}
	}
	return n
}

// Grid holds the 100 cell occupants. Cells are never added or removed.
type Grid struct {
	mu     sync.RWMutex
	cells  [Size]*Character
	subs   map[int]func(Change)
	nextID int
}

// NewGrid creates an empty grid.
func NewGrid() *Grid {
	return &Grid{subs: make(map[int]func(Change))}
}

func checkIndex(i int) error {
	if i < 0 || i >= Size {
		return fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	return nil
}

func clone(c Character) *Character { return &c }

// Subscribe registers fn to be called after every committed mutation.
// The returned func removes the subscription.
func (g *Grid) Subscribe(fn func(Change)) (cancel func()) {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.subs[id] = fn
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		delete(g.subs, id)
		g.mu.Unlock()
	}
}

// commit runs apply under the write lock and, if it reports a change,
// notifies subscribers once the lock is released.
func (g *Grid) commit(ch *Change, apply func() bool) {
	g.mu.Lock()
	if !apply() {
		g.mu.Unlock()
		return
	}
	subs := make([]func(Change), 0, len(g.subs))
	for _, fn := range g.subs {
		subs = append(subs, fn)
	}
	g.mu.Unlock()

	for _, fn := range subs {
		fn(*ch)
	}
}

// At returns a copy of the occupant at i.
func (g *Grid) At(i int) (Character, bool, error) {
	if err := checkIndex(i); err != nil {
		return Character{}, false, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if c := g.cells[i]; c != nil {
		return *c, true, nil
	}
	return Character{}, false, nil
}

// Snapshot returns a copy of every cell.
func (g *Grid) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var s Snapshot
	for i, c := range g.cells {
		if c != nil {
			s[i] = clone(*c)
		}
	}
	return s
}

// Count returns the number of occupied cells.
func (g *Grid) Count() int {
	s := g.Snapshot()
	return s.Count()
}

// Place overwrites the occupant at i unconditionally.
func (g *Grid) Place(i int, c Character) error {
	if err := checkIndex(i); err != nil {
		return err
	}
	g.commit(&Change{Op: OpPlace, Indices: []int{i}}, func() bool {
		g.cells[i] = clone(c)
		return true
	})
	return nil
}

// Remove empties cell i. Removing an empty cell publishes nothing.
func (g *Grid) Remove(i int) error {
	if err := checkIndex(i); err != nil {
		return err
	}
	g.commit(&Change{Op: OpRemove, Indices: []int{i}}, func() bool {
		if g.cells[i] == nil {
			return false
		}
		g.cells[i] = nil
		return true
	})
	return nil
}

// Swap exchanges the occupants of a and b, empty cells included.
func (g *Grid) Swap(a, b int) error {
	if err := checkIndex(a); err != nil {
		return err
	}
	if err := checkIndex(b); err != nil {
		return err
	}
	if a == b {
		return nil
	}
	g.commit(&Change{Op: OpSwap, Indices: []int{a, b}}, func() bool {
		g.cells[a], g.cells[b] = g.cells[b], g.cells[a]
		return true
	})
	return nil
}

// normalize validates every index before anything is applied and returns them
// sorted and deduplicated.
func normalize(indices []int) ([]int, error) {
	seen := make(map[int]struct{}, len(indices))
	out := make([]int, 0, len(indices))
	for _, i := range indices {
		if err := checkIndex(i); err != nil {
			return nil, err
		}
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}

// BulkFill places c in every listed cell. Nothing changes if any index is invalid.
func (g *Grid) BulkFill(indices []int, c Character) error {
	idx, err := normalize(indices)
	if err != nil {
		return err
	}
	if len(idx) == 0 {
		return nil
	}
	g.commit(&Change{Op: OpBulkFill, Indices: idx}, func() bool {
		for _, i := range idx {
			g.cells[i] = clone(c)
		}
		return true
	})
	return nil
}

// BulkClear empties every listed cell. Nothing changes if any index is invalid.
func (g *Grid) BulkClear(indices []int) error {
	idx, err := normalize(indices)
	if err != nil {
		return err
	}
	if len(idx) == 0 {
		return nil
	}
	g.commit(&Change{Op: OpBulkClear, Indices: idx}, func() bool {
		for _, i := range idx {
			g.cells[i] = nil
		}
		return true
	})
	return nil
}

// Replace swaps in a whole new set of occupants.
func (g *Grid) Replace(s Snapshot) {
	var cells [Size]*Character
	for i, c := range s {
		if c != nil {
			cells[i] = clone(*c)
		}
	}
	g.commit(&Change{Op: OpReplace}, func() bool {
		g.cells = cells
		return true
	})
}

// UpdateMatching applies fn to every occupant whose override image equals override.
// An empty override matches nothing. It returns the updated indices.
func (g *Grid) UpdateMatching(override string, fn func(*Character)) []int {
	if override == "" {
		return nil
	}
	ch := &Change{Op: OpUpdate}
	g.commit(ch, func() bool {
		for i, c := range g.cells {
			if c != nil && c.OverrideImageURL == override {
				next := *c
				fn(&next)
				g.cells[i] = &next
				ch.Indices = append(ch.Indices, i)
			}
		}
		return len(ch.Indices) > 0
	})
	return ch.Indices
}
