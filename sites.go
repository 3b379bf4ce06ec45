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
	"math/rand/v2"
	"sort"
)

// Site is a sampled cell with an observed count.
type Site struct {
	Cell int // original cell id
	Y    int // observed count
}

// SampleSites chooses n distinct cells at random, records the simulated
// abundance of each as its observed response, and returns the sites sorted
// by cell id. Responses of cells that are not chosen are cleared.
func (grid *GridDef) SampleSites(n int, seed uint64) ([]Site, error) {
	if n < 1 || n > len(grid.Cells) {
		return nil, fmt.Errorf("abundance: cannot sample %d sites from %d cells", n, len(grid.Cells))
	}
	rng := rand.New(newSource(seed))
	chosen := rng.Perm(len(grid.Cells))[:n]
	sort.Ints(chosen)
	for _, c := range grid.Cells {
		c.Response = nil
	}
	sites := make([]Site, n)
	for i, ci := range chosen {
		c := grid.Cells[ci]
		y := c.Abundance
		c.Response = &y
		sites[i] = Site{Cell: c.ID, Y: y}
	}
	return sites, nil
}

// Sites returns the cells of grid that have an observed response.
func (grid *GridDef) Sites() []Site {
	var o []Site
	for _, c := range grid.Cells {
		if c.Response != nil {
			o = append(o, Site{Cell: c.ID, Y: *c.Response})
		}
	}
	return o
}
