/*
Copyright © 2026 the abundance authors.
This file is part of abundance.

abundance is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

abundance is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with abundance.  If not, see <http://www.gnu.org/licenses/>.
*/

package abundance

import (
	"fmt"
	"sort"

	"github.com/spatialmodel/abundance/internal/hash"
)

// UnitRange holds the contiguous block of new cell ids owned by a unit.
// Bounds are 1-based and inclusive.
type UnitRange struct {
	Unit     int
	Key      string
	Min, Max int
}

// Len returns the number of cells in the range.
func (r UnitRange) Len() int { return r.Max - r.Min + 1 }

// Reindexing maps original cell ids to new ids such that the cells of each
// unit occupy a contiguous interval of new ids.
type Reindexing struct {
	// NewID holds the new id of each cell: NewID[originalID-1].
	NewID []int

	// OldID holds the original id of each cell in new id order:
	// OldID[newID-1].
	OldID []int

	// Ranges holds the interval of new ids for each unit, in unit id order.
	Ranges []UnitRange
}

// Reindex renumbers the cells in p so that cells in the same unit receive
// consecutive ids. Cells are sorted by unit id with ties broken by original
// cell id, and new ids are assigned in sorted order starting at 1. The
// partition is validated first; an empty unit is an error.
func Reindex(p *Partition) (*Reindexing, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := len(p.Assignment)
	order := make([]int, n) // original ids in sorted order
	for i := range order {
		order[i] = i + 1
	}
	sort.SliceStable(order, func(i, j int) bool {
		ui, uj := p.Assignment[order[i]-1], p.Assignment[order[j]-1]
		if ui != uj {
			return ui < uj
		}
		return order[i] < order[j]
	})

	r := &Reindexing{
		NewID:  make([]int, n),
		OldID:  order,
		Ranges: make([]UnitRange, len(p.Keys)),
	}
	for u := range r.Ranges {
		r.Ranges[u] = UnitRange{Unit: u + 1, Key: p.Keys[u]}
	}
	for i, old := range order {
		newID := i + 1
		r.NewID[old-1] = newID
		rr := &r.Ranges[p.Assignment[old-1]-1]
		if rr.Min == 0 {
			rr.Min = newID
		}
		rr.Max = newID
	}
	return r, nil
}

// Len returns the number of cells.
func (r *Reindexing) Len() int { return len(r.OldID) }

// Bounds returns the lower and upper bounds of every unit range, in
// unit id order.
func (r *Reindexing) Bounds() (low, high []int) {
	low = make([]int, len(r.Ranges))
	high = make([]int, len(r.Ranges))
	for i, rr := range r.Ranges {
		low[i], high[i] = rr.Min, rr.Max
	}
	return
}

// Permute returns a copy of the per-cell values v, given in original grid
// order, rearranged into new id order.
func (r *Reindexing) Permute(v []float64) ([]float64, error) {
	if len(v) != len(r.OldID) {
		return nil, fmt.Errorf("abundance: permuting %d values for %d cells", len(v), len(r.OldID))
	}
	o := make([]float64, len(v))
	for i, old := range r.OldID {
		o[i] = v[old-1]
	}
	return o, nil
}

// PermuteInt is the integer version of Permute.
func (r *Reindexing) PermuteInt(v []int) ([]int, error) {
	if len(v) != len(r.OldID) {
		return nil, fmt.Errorf("abundance: permuting %d values for %d cells", len(v), len(r.OldID))
	}
	o := make([]int, len(v))
	for i, old := range r.OldID {
		o[i] = v[old-1]
	}
	return o, nil
}

// Check verifies that the receiver is a bijection over 1..N and that
// the unit ranges tile 1..N exactly, with each range holding only
// the cells of its unit in p.
func (r *Reindexing) Check(p *Partition) error {
	n := len(r.OldID)
	if len(r.NewID) != n || len(p.Assignment) != n {
		return fmt.Errorf("abundance: reindexing covers %d/%d cells but partition has %d", len(r.NewID), n, len(p.Assignment))
	}
	seen := make([]bool, n)
	for old, nw := range r.NewID {
		if nw < 1 || nw > n || seen[nw-1] {
			return fmt.Errorf("abundance: new id %d of cell %d is not a bijection over [1, %d]", nw, old+1, n)
		}
		seen[nw-1] = true
		if r.OldID[nw-1] != old+1 {
			return fmt.Errorf("abundance: NewID and OldID disagree for cell %d", old+1)
		}
	}
	if len(r.Ranges) != len(p.Keys) {
		return fmt.Errorf("abundance: reindexing has %d ranges but partition has %d units", len(r.Ranges), len(p.Keys))
	}
	counts := p.Counts()
	next := 1
	for i, rr := range r.Ranges {
		if rr.Min != next || rr.Min > rr.Max {
			return &UnitError{Unit: rr.Unit, Key: rr.Key, Err: fmt.Errorf("%w: [%d, %d], want start %d", ErrMalformedRange, rr.Min, rr.Max, next)}
		}
		if rr.Len() != counts[i] {
			return &UnitError{Unit: rr.Unit, Key: rr.Key, Err: fmt.Errorf("range holds %d cells but unit has %d", rr.Len(), counts[i])}
		}
		for id := rr.Min; id <= rr.Max; id++ {
			if u := p.Assignment[r.OldID[id-1]-1]; u != rr.Unit {
				return &UnitError{Unit: rr.Unit, Key: rr.Key, Err: fmt.Errorf("new id %d belongs to unit %d", id, u)}
			}
		}
		next = rr.Max + 1
	}
	if next != n+1 {
		return fmt.Errorf("abundance: unit ranges cover [1, %d] but there are %d cells", next-1, n)
	}
	return nil
}

// Fingerprint returns a key that is identical for identical reindexings.
func (r *Reindexing) Fingerprint() string {
	return hash.Fingerprint(r.NewID, r.Ranges)
}
