package editor

// PendingReplace is a placement suspended until the user confirms overwriting
// an occupied cell.
type PendingReplace struct {
	Index    int       `json:"index"`
	Incoming Character `json:"incoming"`
	Occupant Character `json:"occupant"`
}

// ConflictResolver holds at most one pending replace. A new conflict replaces
// the open one (last drop wins).
type ConflictResolver struct {
	grid    *Grid
	pending *PendingReplace
}

// NewConflictResolver creates a resolver that commits into g.
func NewConflictResolver(g *Grid) *ConflictResolver {
	return &ConflictResolver{grid: g}
}

// Raise opens p, reporting whether an earlier pending replace was displaced.
func (r *ConflictResolver) Raise(p PendingReplace) (displaced bool) {
	displaced = r.pending != nil
	r.pending = &p
	return displaced
}

// Pending returns the open pending replace, if any.
func (r *ConflictResolver) Pending() (PendingReplace, bool) {
	if r.pending == nil {
		return PendingReplace{}, false
	}
	return *r.pending, true
}

// Confirm places the incoming character and clears the record.
func (r *ConflictResolver) Confirm() error {
	if r.pending == nil {
		return ErrNoPendingReplace
	}
	p := *r.pending
	if err := r.grid.Place(p.Index, p.Incoming); err != nil {
		return err
	}
	r.pending = nil
	return nil
}

// Dismiss drops the pending record without touching the grid.
func (r *ConflictResolver) Dismiss() {
	r.pending = nil
}
