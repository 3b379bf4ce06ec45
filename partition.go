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
	"math"
	"math/rand/v2"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// Unit is an irregular reporting unit, such as a municipality.
type Unit struct {
	geom.Polygonal
	Key string
}

// KeyIndex assigns integer unit ids to arbitrary unit keys. Ids
// start at 1 and follow the order in which keys are first encountered.
type KeyIndex struct {
	keys []string
	ids  map[string]int
}

// NewKeyIndex returns an empty KeyIndex.
func NewKeyIndex() *KeyIndex {
	return &KeyIndex{ids: make(map[string]int)}
}

// ID returns the id of key, adding the key if it has not been seen before.
func (k *KeyIndex) ID(key string) int {
	if id, ok := k.ids[key]; ok {
		return id
	}
	k.keys = append(k.keys, key)
	id := len(k.keys)
	k.ids[key] = id
	return id
}

// Lookup returns the id of key and whether it has been seen.
func (k *KeyIndex) Lookup(key string) (int, bool) {
	id, ok := k.ids[key]
	return id, ok
}

// Keys returns the keys in id order.
func (k *KeyIndex) Keys() []string { return append([]string(nil), k.keys...) }

// Partition assigns each grid cell to exactly one unit.
type Partition struct {
	// Keys holds the unit keys; Keys[u-1] is the key of unit u.
	Keys []string

	// Assignment holds the unit id of each cell in original grid
	// order: Assignment[cellID-1]. An id of 0 means the cell is unassigned.
	Assignment []int
}

// NewPartition creates and validates a partition from unit keys and
// a per-cell assignment of 1-based unit ids.
func NewPartition(keys []string, assignment []int) (*Partition, error) {
	p := &Partition{
		Keys:       append([]string(nil), keys...),
		Assignment: append([]int(nil), assignment...),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// PartitionFromKeys creates a partition from the unit key of each cell in
// original grid order. Units are numbered in first-encountered order.
// An empty key means the cell is unassigned, which is an error.
func PartitionFromKeys(cellKeys []string) (*Partition, error) {
	idx := NewKeyIndex()
	assignment := make([]int, len(cellKeys))
	for i, k := range cellKeys {
		if k == "" {
			return nil, fmt.Errorf("abundance: cell %d: %w", i+1, ErrUnassignedCell)
		}
		assignment[i] = idx.ID(k)
	}
	return NewPartition(idx.Keys(), assignment)
}

// NumUnits returns the number of units in the partition.
func (p *Partition) NumUnits() int { return len(p.Keys) }

// Key returns the key of unit u, or "" if u is out of range.
func (p *Partition) Key(u int) string {
	if u < 1 || u > len(p.Keys) {
		return ""
	}
	return p.Keys[u-1]
}

// Counts returns the number of cells assigned to each unit; Counts()[u-1]
// is the cardinality of unit u. Invalid assignments are ignored.
func (p *Partition) Counts() []int {
	counts := make([]int, len(p.Keys))
	for _, u := range p.Assignment {
		if u >= 1 && u <= len(p.Keys) {
			counts[u-1]++
		}
	}
	return counts
}

// Members returns the original ids of the cells in unit u, in increasing order.
func (p *Partition) Members(u int) []int {
	var o []int
	for i, uu := range p.Assignment {
		if uu == u {
			o = append(o, i+1)
		}
	}
	return o
}

// Validate checks that every cell is assigned to a known unit, that unit
// keys are unique, and that no unit is empty.
func (p *Partition) Validate() error {
	if len(p.Assignment) == 0 {
		return fmt.Errorf("abundance: partition has no cells")
	}
	seen := make(map[string]int, len(p.Keys))
	for i, k := range p.Keys {
		if j, ok := seen[k]; ok {
			return &UnitError{Unit: i + 1, Key: k, Err: fmt.Errorf("%w (also unit %d)", ErrDuplicateUnit, j)}
		}
		seen[k] = i + 1
	}
	for i, u := range p.Assignment {
		switch {
		case u == 0:
			return fmt.Errorf("abundance: cell %d: %w", i+1, ErrUnassignedCell)
		case u < 0 || u > len(p.Keys):
			return fmt.Errorf("abundance: cell %d: %w: id %d not in [1, %d]", i+1, ErrUnknownUnit, u, len(p.Keys))
		}
	}
	for i, n := range p.Counts() {
		if n == 0 {
			return &UnitError{Unit: i + 1, Key: p.Keys[i], Err: ErrEmptyUnit}
		}
	}
	return nil
}

type unitRef struct {
	geom.Polygonal
	id int
}

// AssignCells assigns each grid cell to the unit containing the cell
// centroid. Centroids that lie on an edge shared by multiple units are
// assigned to the unit that comes first in units. Every cell must fall
// within a unit and every unit must receive at least one cell.
func AssignCells(grid *GridDef, units []*Unit) (*Partition, error) {
	index := rtree.NewTree(25, 50)
	keys := make([]string, len(units))
	for i, u := range units {
		keys[i] = u.Key
		index.Insert(&unitRef{Polygonal: u.Polygonal, id: i + 1})
	}
	assignment := make([]int, len(grid.Cells))
	for i, c := range grid.Cells {
		p := c.Centroid()
		for _, uI := range index.SearchIntersect(p.Bounds()) {
			u := uI.(*unitRef)
			if p.Within(u.Polygonal) == geom.Outside {
				continue
			}
			if assignment[i] == 0 || u.id < assignment[i] {
				assignment[i] = u.id
			}
		}
	}
	return NewPartition(keys, assignment)
}

// VoronoiPartition creates an irregular partition of grid into n units by
// choosing n distinct seed cells at random and assigning every cell to the
// seed with the nearest centroid. Ties go to the seed chosen first. It is
// used to simulate reporting units for synthetic grids.
func VoronoiPartition(grid *GridDef, n int, seed uint64) (*Partition, error) {
	if n < 1 || n > len(grid.Cells) {
		return nil, fmt.Errorf("abundance: cannot create %d units from %d cells", n, len(grid.Cells))
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	perm := rng.Perm(len(grid.Cells))[:n]
	seeds := make([]geom.Point, n)
	keys := make([]string, n)
	for i, ci := range perm {
		seeds[i] = grid.Cells[ci].Centroid()
		keys[i] = fmt.Sprintf("u%03d", i+1)
	}
	assignment := make([]int, len(grid.Cells))
	for i, c := range grid.Cells {
		p := c.Centroid()
		best := math.Inf(1)
		for j, s := range seeds {
			d := (p.X-s.X)*(p.X-s.X) + (p.Y-s.Y)*(p.Y-s.Y)
			if d < best {
				best = d
				assignment[i] = j + 1
			}
		}
	}
	return NewPartition(keys, assignment)
}

// UnitGeometry returns the union of the member cell polygons of every unit
// in p, in unit id order.
func UnitGeometry(grid *GridDef, p *Partition) ([]*Unit, error) {
	if len(p.Assignment) != len(grid.Cells) {
		return nil, fmt.Errorf("abundance: partition has %d cells but grid has %d", len(p.Assignment), len(grid.Cells))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	units := make([]*Unit, len(p.Keys))
	for i, k := range p.Keys {
		units[i] = &Unit{Key: k}
	}
	for i, u := range p.Assignment {
		c := grid.Cells[i]
		if units[u-1].Polygonal == nil {
			units[u-1].Polygonal = c.Polygonal
			continue
		}
		units[u-1].Polygonal = units[u-1].Polygonal.Union(c.Polygonal)
	}
	return units, nil
}
