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

	"github.com/ctessum/geom"
)

// Adjacency holds unit neighbourhoods in the flattened layout used by
// conditional autoregressive priors: the neighbours of unit u are
// Adj[start(u):start(u)+Num[u-1]], where start(u) is the sum of Num
// for the preceding units. Unit ids in Adj are 1-based.
type Adjacency struct {
	Adj     []int
	Weights []float64
	Num     []int
}

// Neighbors returns the neighbours of unit u.
func (a *Adjacency) Neighbors(u int) []int {
	start := 0
	for _, n := range a.Num[:u-1] {
		start += n
	}
	return a.Adj[start : start+a.Num[u-1]]
}

func newRect(xmin, ymin, xmax, ymax float64) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: xmin, Y: ymin},
		Max: geom.Point{X: xmax, Y: ymax},
	}
}

// UnitAdjacency determines which units in p share a cell edge. Cell
// neighbours are found by searching just beyond the east and north edges of
// each cell, so cells that only touch at a corner are not neighbours.
func UnitAdjacency(grid *GridDef, p *Partition) (*Adjacency, error) {
	if len(p.Assignment) != len(grid.Cells) {
		return nil, fmt.Errorf("abundance: partition has %d cells but grid has %d", len(p.Assignment), len(grid.Cells))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	offX, offY := grid.Dx/10, grid.Dy/10
	nbrs := make([]map[int]struct{}, len(p.Keys))
	for i := range nbrs {
		nbrs[i] = make(map[int]struct{})
	}
	link := func(u1, u2 int) {
		if u1 == u2 {
			return
		}
		nbrs[u1-1][u2] = struct{}{}
		nbrs[u2-1][u1] = struct{}{}
	}
	for _, c := range grid.Cells {
		b := c.Bounds()
		u := p.Assignment[c.ID-1]
		east := newRect(b.Max.X+offX, b.Min.Y+offY, b.Max.X+2*offX, b.Max.Y-offY)
		for _, n := range grid.rtree.SearchIntersect(east) {
			link(u, p.Assignment[n.(*Cell).ID-1])
		}
		north := newRect(b.Min.X+offX, b.Max.Y+offY, b.Max.X-offX, b.Max.Y+2*offY)
		for _, n := range grid.rtree.SearchIntersect(north) {
			link(u, p.Assignment[n.(*Cell).ID-1])
		}
	}
	a := &Adjacency{Num: make([]int, len(p.Keys))}
	for i, m := range nbrs {
		ids := make([]int, 0, len(m))
		for id := range m {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		a.Num[i] = len(ids)
		a.Adj = append(a.Adj, ids...)
	}
	a.Weights = make([]float64, len(a.Adj))
	for i := range a.Weights {
		a.Weights[i] = 1
	}
	return a, nil
}
