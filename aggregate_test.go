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
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/kr/pretty"
)

func exampleRanges(t *testing.T) (*Partition, *Reindexing) {
	p := examplePartition(t)
	r, err := Reindex(p)
	if err != nil {
		t.Fatal(err)
	}
	return p, r
}

func TestSumResponse(t *testing.T) {
	_, r := exampleRanges(t)
	y, err := r.PermuteInt([]int{5, 2, 3, 1, 4, 2, 6, 1, 0})
	if err != nil {
		t.Fatal(err)
	}
	have, err := SumResponse(r.Ranges, y)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{7, 7, 10}; !reflect.DeepEqual(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}
	var total int
	for _, v := range have {
		total += v
	}
	if total != 24 {
		t.Errorf("unit totals sum to %d, want the cell total 24", total)
	}
}

func TestSumResponseMalformed(t *testing.T) {
	tests := []struct {
		name   string
		ranges []UnitRange
	}{
		{name: "reversed", ranges: []UnitRange{{Unit: 1, Min: 3, Max: 2}}},
		{name: "zero min", ranges: []UnitRange{{Unit: 1, Min: 0, Max: 2}}},
		{name: "past end", ranges: []UnitRange{{Unit: 1, Min: 1, Max: 2}, {Unit: 2, Min: 3, Max: 5}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			o, err := SumResponse(test.ranges, []int{1, 2, 3, 4})
			if !errors.Is(err, ErrMalformedRange) {
				t.Errorf("have %v, want ErrMalformedRange", err)
			}
			if o != nil {
				t.Error("no sums should be returned")
			}
		})
	}
}

func TestMeanCovariates(t *testing.T) {
	ranges := []UnitRange{
		{Unit: 1, Key: "a", Min: 1, Max: 2},
		{Unit: 2, Key: "b", Min: 3, Max: 5},
	}
	x := [][]float64{
		{1, 3, 2, 4, 6},
		{0, 1, 1, 1, 1},
	}
	have, err := MeanCovariates(ranges, x)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]float64{{2, 0.5}, {4, 1}}
	if !reflect.DeepEqual(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}

	if _, err := MeanCovariates(ranges, [][]float64{{1, 2, 3, 4, 5}, {1}}); err == nil {
		t.Error("expected an error for ragged covariates")
	}
	none, err := MeanCovariates(ranges, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 2 || len(none[0]) != 0 {
		t.Errorf("no covariates: have %v", none)
	}
}

func TestSumRates(t *testing.T) {
	ranges := []UnitRange{
		{Unit: 1, Key: "a", Min: 1, Max: 2},
		{Unit: 2, Key: "b", Min: 3, Max: 3},
		{Unit: 3, Key: "c", Min: 4, Max: 5},
	}
	have, err := SumRates(ranges, []float64{0.5, 0.25, 2, 0, 1})
	if err != nil {
		t.Fatal(err)
	}
	if want := []float64{0.75, 2, 1}; !reflect.DeepEqual(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}

	have, err = SumRates(ranges, []float64{0.5, 0.25, 2, 0, 0})
	if have != nil {
		t.Error("no sums should be returned with a zero rate")
	}
	var ue *UnitError
	if !errors.As(err, &ue) || !errors.Is(err, ErrZeroRate) {
		t.Fatalf("have %v, want a zero rate error", err)
	}
	if ue.Unit != 3 || ue.Key != "c" {
		t.Errorf("have unit %d (%s), want unit 3 (c)", ue.Unit, ue.Key)
	}

	for _, test := range []struct {
		name  string
		rates []float64
	}{
		{name: "negative", rates: []float64{-1, 0.5, 2, 1, 1}},
		{name: "NaN", rates: []float64{0.5, math.NaN(), 2, 1, 1}},
		{name: "negative infinity", rates: []float64{0.5, math.Inf(-1), 2, 1, 1}},
	} {
		t.Run(test.name, func(t *testing.T) {
			have, err := SumRates(ranges, test.rates)
			if have != nil {
				t.Errorf("no sums should be returned, have %v", have)
			}
			var ue *UnitError
			if !errors.As(err, &ue) || !errors.Is(err, ErrInvalidRate) {
				t.Fatalf("have %v, want an invalid rate error", err)
			}
			if ue.Unit != 1 || ue.Key != "a" {
				t.Errorf("have unit %d (%s), want unit 1 (a)", ue.Unit, ue.Key)
			}
		})
	}
}

func TestForEachRangeErrorOrder(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	err := forEachRange(100, func(i int) error {
		switch i {
		case 17:
			return errA
		case 63:
			return errB
		}
		return nil
	})
	if err != errA {
		t.Errorf("have %v, want the error of the first range", err)
	}
	if err := forEachRange(0, func(int) error { return errA }); err != nil {
		t.Errorf("no ranges: have %v", err)
	}
}

func TestAggregate(t *testing.T) {
	grid, err := NewGridRegular("test", 3, 3, 1, 1, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i, c := range grid.Cells {
		c.Abundance = []int{5, 2, 3, 1, 4, 2, 6, 1, 0}[i]
		c.Rate = 0.5
	}
	if err = grid.SetCovariate("x", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}); err != nil {
		t.Fatal(err)
	}
	_, r := exampleRanges(t)
	have, err := Aggregate(grid, r)
	if err != nil {
		t.Fatal(err)
	}
	want := &UnitTable{
		CovariateNames: []string{"x"},
		Units: []UnitSummary{
			{UnitRange: r.Ranges[0], Count: 3, Response: 7, Rate: 1.5, MeanCovariates: []float64{11.0 / 3}, Area: 3},
			{UnitRange: r.Ranges[1], Count: 4, Response: 7, Rate: 2, MeanCovariates: []float64{5.5}, Area: 4},
			{UnitRange: r.Ranges[2], Count: 2, Response: 10, Rate: 1, MeanCovariates: []float64{6}, Area: 2},
		},
		HasRates: true,
	}
	for i := range have.Units {
		hu, wu := have.Units[i], want.Units[i]
		if math.Abs(hu.MeanCovariates[0]-wu.MeanCovariates[0]) > 1e-12 {
			t.Errorf("unit %d mean: have %g, want %g", i+1, hu.MeanCovariates[0], wu.MeanCovariates[0])
		}
		have.Units[i].MeanCovariates = wu.MeanCovariates
	}
	if !reflect.DeepEqual(have, want) {
		t.Errorf("unit table differs: %v", pretty.Diff(have, want))
	}
	if !reflect.DeepEqual(have.Responses(), []int{7, 7, 10}) {
		t.Errorf("responses: have %v", have.Responses())
	}
	rates, err := have.Rates()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rates, []float64{1.5, 2, 1}) {
		t.Errorf("rates: have %v", rates)
	}

	grid.Cells[4].Rate = -3
	if _, err = Aggregate(grid, r); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("negative unit rate: have %v, want ErrInvalidRate", err)
	}
}

func TestAggregateBeforeSimulation(t *testing.T) {
	grid, err := NewGridRegular("test", 3, 3, 1, 1, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, r := exampleRanges(t)
	tbl, err := Aggregate(grid, r)
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range tbl.Units {
		if u.Rate != 0 || u.Response != 0 {
			t.Errorf("unit %d: have rate %g and response %d before simulation", u.Unit, u.Rate, u.Response)
		}
	}
	if tbl.HasRates {
		t.Error("table should not have rates before simulation")
	}
	if _, err := tbl.Rates(); !errors.Is(err, ErrNoRates) {
		t.Errorf("have %v, want ErrNoRates", err)
	}
}
