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
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// checkRanges makes sure every range is well formed and lies within n values.
func checkRanges(ranges []UnitRange, n int) error {
	for _, rr := range ranges {
		if rr.Min < 1 || rr.Min > rr.Max || rr.Max > n {
			return &UnitError{Unit: rr.Unit, Key: rr.Key,
				Err: fmt.Errorf("%w: [%d, %d] with %d cells", ErrMalformedRange, rr.Min, rr.Max, n)}
		}
	}
	return nil
}

// forEachRange calls f once for each range index, spreading the ranges
// across GOMAXPROCS workers. Ranges never overlap, so f may write to
// per-range outputs without locking. The first error returned by f, in
// range order, is returned.
func forEachRange(n int, f func(i int) error) error {
	nprocs := runtime.GOMAXPROCS(-1)
	if nprocs > n {
		nprocs = n
	}
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for p := 0; p < nprocs; p++ {
		go func(p int) {
			defer wg.Done()
			for i := p; i < n; i += nprocs {
				errs[i] = f(i)
			}
		}(p)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// SumResponse sums the per-cell responses, given in new id order, over each
// unit range.
func SumResponse(ranges []UnitRange, responses []int) ([]int, error) {
	if err := checkRanges(ranges, len(responses)); err != nil {
		return nil, err
	}
	o := make([]int, len(ranges))
	err := forEachRange(len(ranges), func(i int) error {
		var sum int
		for _, v := range responses[ranges[i].Min-1 : ranges[i].Max] {
			sum += v
		}
		o[i] = sum
		return nil
	})
	return o, err
}

// MeanCovariates calculates the arithmetic mean of each covariate over each
// unit range. covariates[k] holds the values of covariate k in new id order.
// The result is indexed [unit][covariate].
func MeanCovariates(ranges []UnitRange, covariates [][]float64) ([][]float64, error) {
	n := -1
	for k, c := range covariates {
		if n >= 0 && len(c) != n {
			return nil, fmt.Errorf("abundance: covariate %d has %d values but covariate 0 has %d", k, len(c), n)
		}
		n = len(c)
	}
	if n < 0 {
		n = 0
		for _, rr := range ranges {
			if rr.Max > n {
				n = rr.Max
			}
		}
	}
	if err := checkRanges(ranges, n); err != nil {
		return nil, err
	}
	o := make([][]float64, len(ranges))
	err := forEachRange(len(ranges), func(i int) error {
		rr := ranges[i]
		o[i] = make([]float64, len(covariates))
		for k, c := range covariates {
			o[i][k] = floats.Sum(c[rr.Min-1:rr.Max]) / float64(rr.Len())
		}
		return nil
	})
	return o, err
}

// SumRates sums the per-cell rates, given in new id order, over each unit
// range. A unit whose rates do not sum to a positive value is an error
// because its log rate is undefined.
func SumRates(ranges []UnitRange, rates []float64) ([]float64, error) {
	if err := checkRanges(ranges, len(rates)); err != nil {
		return nil, err
	}
	o := make([]float64, len(ranges))
	err := forEachRange(len(ranges), func(i int) error {
		rr := ranges[i]
		o[i] = floats.Sum(rates[rr.Min-1 : rr.Max])
		switch {
		case o[i] == 0:
			return &UnitError{Unit: rr.Unit, Key: rr.Key, Err: ErrZeroRate}
		case !(o[i] > 0):
			return &UnitError{Unit: rr.Unit, Key: rr.Key, Err: ErrInvalidRate}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// UnitSummary holds the aggregated fields of one unit.
type UnitSummary struct {
	UnitRange
	Count          int       // number of member cells
	Response       int       // sum of member cell abundances
	Rate           float64   // sum of member cell rates
	MeanCovariates []float64 // indexed by covariate
	Area           float64
}

// UnitTable holds the aggregated fields of every unit in unit id order.
type UnitTable struct {
	CovariateNames []string
	Units          []UnitSummary

	// HasRates is false when no cell carried a rate, in which case the
	// unit rates are all zero and must not be used.
	HasRates bool
}

// Aggregate aggregates the cell abundances, rates, and covariates in grid
// to the units in r.
func Aggregate(grid *GridDef, r *Reindexing) (*UnitTable, error) {
	if r.Len() != grid.Len() {
		return nil, fmt.Errorf("abundance: reindexing has %d cells but grid has %d", r.Len(), grid.Len())
	}
	counts, err := r.PermuteInt(grid.Abundances())
	if err != nil {
		return nil, err
	}
	response, err := SumResponse(r.Ranges, counts)
	if err != nil {
		return nil, err
	}
	covs := make([][]float64, len(grid.CovariateNames))
	for k := range covs {
		if covs[k], err = r.Permute(grid.Covariate(k)); err != nil {
			return nil, err
		}
	}
	means, err := MeanCovariates(r.Ranges, covs)
	if err != nil {
		return nil, err
	}
	rates, err := r.Permute(grid.Rates())
	if err != nil {
		return nil, err
	}
	rateSums := make([]float64, len(r.Ranges))
	hasRates := false
	for _, v := range rates {
		if v != 0 {
			hasRates = true
			break
		}
	}
	if hasRates {
		if rateSums, err = SumRates(r.Ranges, rates); err != nil {
			return nil, err
		}
	}

	t := &UnitTable{
		CovariateNames: append([]string(nil), grid.CovariateNames...),
		Units:          make([]UnitSummary, len(r.Ranges)),
		HasRates:       hasRates,
	}
	for i, rr := range r.Ranges {
		var area float64
		for id := rr.Min; id <= rr.Max; id++ {
			area += grid.Cells[r.OldID[id-1]-1].Area()
		}
		t.Units[i] = UnitSummary{
			UnitRange:      rr,
			Count:          rr.Len(),
			Response:       response[i],
			Rate:           rateSums[i],
			MeanCovariates: means[i],
			Area:           area,
		}
	}
	return t, nil
}

// Responses returns the aggregated response of every unit.
func (t *UnitTable) Responses() []int {
	o := make([]int, len(t.Units))
	for i, u := range t.Units {
		o[i] = u.Response
	}
	return o
}

// Rates returns the aggregated rate of every unit. It returns ErrNoRates
// if the table was aggregated from a grid without rates.
func (t *UnitTable) Rates() ([]float64, error) {
	if !t.HasRates {
		return nil, ErrNoRates
	}
	o := make([]float64, len(t.Units))
	for i, u := range t.Units {
		o[i] = u.Rate
	}
	return o, nil
}
