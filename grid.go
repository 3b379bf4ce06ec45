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

// Package abundance prepares simulated and observed animal abundance data
// for hierarchical Poisson point-process models fit at a different spatial
// resolution than the data were reported at ("change of support").
//
// A regular grid of fine cells carries covariates and per-cell intensities.
// Cells are assigned to irregular reporting units, renumbered so that every
// unit owns a contiguous block of cell identifiers, and then aggregated to
// produce the flat tables a Bayesian inference engine consumes.
package abundance

import (
	"encoding/gob"
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// Version gives the version number.
const Version = "0.1.0"

func init() {
	gob.Register(geom.Polygon{})
}

// GridDef specifies a regular grid of fine-resolution cells.
type GridDef struct {
	Name   string
	Nx, Ny int
	Dx, Dy float64
	X0, Y0 float64

	// Cells holds the grid cells in original grid order; Cells[i].ID == i+1.
	Cells []*Cell

	// CovariateNames holds the names of the columns in Cell.Covariates.
	CovariateNames []string

	Extent geom.Polygon
	rtree  *rtree.Rtree
}

// Cell is a single fine-resolution grid cell.
type Cell struct {
	geom.Polygonal

	// ID is the 1-based position of the cell in original grid order.
	ID       int
	Row, Col int

	// Covariates holds one value for each entry of GridDef.CovariateNames.
	Covariates []float64

	// Rate is the expected count (Poisson intensity integrated over the
	// cell area).
	Rate float64

	// Abundance is the simulated ground-truth count in the cell.
	Abundance int

	// Response is the observed count. It is only set for cells that were
	// sampled as sites.
	Response *int
}

// NewGridRegular creates a new regular grid, where all grid cells are the
// same size. Cells are ordered with the x index varying slowest.
func NewGridRegular(name string, nx, ny int, dx, dy, x0, y0 float64) (*GridDef, error) {
	if nx < 1 || ny < 1 {
		return nil, fmt.Errorf("abundance: grid must have at least one cell in each direction; have %dx%d", nx, ny)
	}
	if !(dx > 0) || !(dy > 0) {
		return nil, fmt.Errorf("abundance: grid cell size must be >0; have dx=%g, dy=%g", dx, dy)
	}
	grid := &GridDef{
		Name: name,
		Nx:   nx, Ny: ny,
		Dx: dx, Dy: dy,
		X0: x0, Y0: y0,
		rtree: rtree.NewTree(25, 50),
	}
	grid.Cells = make([]*Cell, nx*ny)
	i := 0
	for ix := 0; ix < nx; ix++ {
		for iy := 0; iy < ny; iy++ {
			x := x0 + float64(ix)*dx
			y := y0 + float64(iy)*dy
			cell := &Cell{
				ID:  i + 1,
				Row: iy, Col: ix,
				Polygonal: geom.Polygon([]geom.Path{{
					{X: x, Y: y}, {X: x + dx, Y: y},
					{X: x + dx, Y: y + dy}, {X: x, Y: y + dy}, {X: x, Y: y}}}),
			}
			grid.rtree.Insert(cell)
			grid.Cells[i] = cell
			i++
		}
	}
	grid.Extent = geom.Polygon([]geom.Path{{{X: x0, Y: y0},
		{X: x0 + dx*float64(nx), Y: y0},
		{X: x0 + dx*float64(nx), Y: y0 + dy*float64(ny)},
		{X: x0, Y: y0 + dy*float64(ny)}, {X: x0, Y: y0}}})
	return grid, nil
}

// Len returns the number of cells in the grid.
func (grid *GridDef) Len() int { return len(grid.Cells) }

// Cell returns the cell at the given row and column.
func (grid *GridDef) Cell(row, col int) (*Cell, error) {
	if row < 0 || row >= grid.Ny || col < 0 || col >= grid.Nx {
		return nil, fmt.Errorf("abundance: cell (row=%d, col=%d) is outside of %dx%d grid", row, col, grid.Nx, grid.Ny)
	}
	return grid.Cells[col*grid.Ny+row], nil
}

// GetIndex returns the cells that contain point p. Usually there
// will be only one cell for each point, but if the point lies on a shared
// edge among multiple grid cells, all of the touching cells will be returned.
func (grid *GridDef) GetIndex(p geom.Point) []*Cell {
	var o []*Cell
	for _, cI := range grid.rtree.SearchIntersect(p.Bounds()) {
		o = append(o, cI.(*Cell))
	}
	return o
}

// SetCovariate adds (or replaces) the covariate called name. values must
// have one entry per cell in original grid order.
func (grid *GridDef) SetCovariate(name string, values []float64) error {
	if len(values) != len(grid.Cells) {
		return fmt.Errorf("abundance: covariate %s has %d values but grid has %d cells", name, len(values), len(grid.Cells))
	}
	k := grid.CovariateIndex(name)
	if k < 0 {
		k = len(grid.CovariateNames)
		grid.CovariateNames = append(grid.CovariateNames, name)
		for _, c := range grid.Cells {
			c.Covariates = append(c.Covariates, 0)
		}
	}
	for i, c := range grid.Cells {
		c.Covariates[k] = values[i]
	}
	return nil
}

// CovariateIndex returns the column index of the covariate called name,
// or -1 if there is no such covariate.
func (grid *GridDef) CovariateIndex(name string) int {
	for i, n := range grid.CovariateNames {
		if n == name {
			return i
		}
	}
	return -1
}

// Covariate returns the values of covariate k in original grid order.
func (grid *GridDef) Covariate(k int) []float64 {
	o := make([]float64, len(grid.Cells))
	for i, c := range grid.Cells {
		o[i] = c.Covariates[k]
	}
	return o
}

// Rates returns the cell rates in original grid order.
func (grid *GridDef) Rates() []float64 {
	o := make([]float64, len(grid.Cells))
	for i, c := range grid.Cells {
		o[i] = c.Rate
	}
	return o
}

// Abundances returns the simulated cell counts in original grid order.
func (grid *GridDef) Abundances() []int {
	o := make([]int, len(grid.Cells))
	for i, c := range grid.Cells {
		o[i] = c.Abundance
	}
	return o
}
