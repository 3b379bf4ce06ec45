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
	"encoding/json"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Model names.
const (
	SiteModel      = "site"      // site-level Poisson regression
	AggregateModel = "aggregate" // polygon-aggregated Poisson regression
	SpatialModel   = "spatial"   // aggregated regression with a CAR random effect
)

// ModelInput holds everything an external inference engine needs besides
// the likelihood itself: constants, data, and the names of the parameters
// whose posterior samples should be kept.
type ModelInput struct {
	Model       string                 `json:"model"`
	Constants   map[string]interface{} `json:"constants"`
	Data        map[string]interface{} `json:"data"`
	Monitors    []string               `json:"monitors"`
	Fingerprint string                 `json:"fingerprint,omitempty"`
}

// Monitors returns the default monitored parameters for a model with
// ncov covariates.
func Monitors(model string, ncov int) []string {
	o := []string{"beta0"}
	for k := 1; k <= ncov; k++ {
		o = append(o, fmt.Sprintf("beta[%d]", k))
	}
	if model == SpatialModel {
		o = append(o, "tau")
	}
	return o
}

// covariateTable returns the covariates of grid, one row per covariate, in
// original order or, if r is not nil, in new id order.
func covariateTable(grid *GridDef, r *Reindexing) ([][]float64, error) {
	x := make([][]float64, len(grid.CovariateNames))
	for k := range x {
		x[k] = grid.Covariate(k)
		if r != nil {
			var err error
			if x[k], err = r.Permute(x[k]); err != nil {
				return nil, err
			}
		}
	}
	return x, nil
}

// SiteModelInput prepares the input for the site-level model, where counts
// are observed at the sampled cells of grid. Cell covariates are given in
// original order and site cells refer to original ids.
func SiteModelInput(grid *GridDef) (*ModelInput, error) {
	sites := grid.Sites()
	if len(sites) == 0 {
		return nil, fmt.Errorf("abundance: no sites have been sampled")
	}
	x, err := covariateTable(grid, nil)
	if err != nil {
		return nil, err
	}
	cells := make([]int, len(sites))
	y := make([]int, len(sites))
	for i, s := range sites {
		cells[i], y[i] = s.Cell, s.Y
	}
	return &ModelInput{
		Model: SiteModel,
		Constants: map[string]interface{}{
			"ncell": grid.Len(),
			"nsite": len(sites),
			"ncov":  len(grid.CovariateNames),
			"cell":  cells,
			"area":  cellAreas(grid, nil),
		},
		Data: map[string]interface{}{
			"y": y,
			"x": x,
		},
		Monitors: Monitors(SiteModel, len(grid.CovariateNames)),
	}, nil
}

// AggregateModelInput prepares the input for the polygon-aggregated model.
// The engine sees per-cell covariates in new id order, the bounds of each
// unit's range, and the aggregated response of each unit.
func AggregateModelInput(grid *GridDef, r *Reindexing, t *UnitTable) (*ModelInput, error) {
	if len(t.Units) != len(r.Ranges) {
		return nil, fmt.Errorf("abundance: unit table has %d units but reindexing has %d", len(t.Units), len(r.Ranges))
	}
	x, err := covariateTable(grid, r)
	if err != nil {
		return nil, err
	}
	low, high := r.Bounds()
	xbar := make([][]float64, len(t.Units))
	for i, u := range t.Units {
		xbar[i] = u.MeanCovariates
	}
	return &ModelInput{
		Model: AggregateModel,
		Constants: map[string]interface{}{
			"ncell": grid.Len(),
			"nunit": len(r.Ranges),
			"ncov":  len(grid.CovariateNames),
			"low":   low,
			"high":  high,
			"area":  cellAreas(grid, r),
		},
		Data: map[string]interface{}{
			"y":    t.Responses(),
			"x":    x,
			"xbar": xbar,
		},
		Monitors:    Monitors(AggregateModel, len(grid.CovariateNames)),
		Fingerprint: r.Fingerprint(),
	}, nil
}

// SpatialModelInput extends the aggregated model input with the unit
// adjacency structure needed by a conditional autoregressive random effect.
func SpatialModelInput(grid *GridDef, r *Reindexing, t *UnitTable, a *Adjacency) (*ModelInput, error) {
	m, err := AggregateModelInput(grid, r, t)
	if err != nil {
		return nil, err
	}
	if len(a.Num) != len(r.Ranges) {
		return nil, fmt.Errorf("abundance: adjacency has %d units but reindexing has %d", len(a.Num), len(r.Ranges))
	}
	m.Model = SpatialModel
	m.Constants["adj"] = a.Adj
	m.Constants["num"] = a.Num
	m.Constants["weights"] = a.Weights
	m.Constants["nadj"] = len(a.Adj)
	m.Monitors = Monitors(SpatialModel, len(grid.CovariateNames))
	return m, nil
}

func cellAreas(grid *GridDef, r *Reindexing) []float64 {
	o := make([]float64, grid.Len())
	for i := range o {
		id := i + 1
		if r != nil {
			id = r.OldID[i]
		}
		o[i] = grid.Cells[id-1].Area()
	}
	return o
}

// WriteJSON writes the model input to w.
func (m *ModelInput) WriteJSON(w io.Writer) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	if err := e.Encode(m); err != nil {
		return fmt.Errorf("abundance: writing %s model input: %v", m.Model, err)
	}
	return nil
}

// LogLikelihood evaluates the polygon-aggregated Poisson log-likelihood of
// the unit responses y given the intensity. x holds the per-cell covariates
// and area the cell areas, both in new id order. A unit whose rate sums to
// zero is an error.
func LogLikelihood(r *Reindexing, x [][]float64, area []float64, y []int, in Intensity) (float64, error) {
	if len(y) != len(r.Ranges) {
		return math.NaN(), fmt.Errorf("abundance: %d responses for %d units", len(y), len(r.Ranges))
	}
	if len(area) != r.Len() {
		return math.NaN(), fmt.Errorf("abundance: %d cell areas for %d cells", len(area), r.Len())
	}
	rates, err := in.CellRates(r.Len(), x)
	if err != nil {
		return math.NaN(), err
	}
	for i, a := range area {
		rates[i] *= a
	}
	lambda, err := SumRates(r.Ranges, rates)
	if err != nil {
		return math.NaN(), err
	}
	var ll float64
	for i, l := range lambda {
		ll += distuv.Poisson{Lambda: l}.LogProb(float64(y[i]))
	}
	return ll, nil
}
