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
	"reflect"
	"testing"

	"github.com/kr/pretty"
)

// examplePartition assigns nine cells to three units.
func examplePartition(t *testing.T) *Partition {
	p, err := NewPartition([]string{"a", "b", "c"}, []int{2, 1, 1, 2, 3, 1, 3, 2, 2})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestReindex(t *testing.T) {
	p := examplePartition(t)
	r, err := Reindex(p)
	if err != nil {
		t.Fatal(err)
	}
	want := &Reindexing{
		NewID: []int{4, 1, 2, 5, 8, 3, 9, 6, 7},
		OldID: []int{2, 3, 6, 1, 4, 8, 9, 5, 7},
		Ranges: []UnitRange{
			{Unit: 1, Key: "a", Min: 1, Max: 3},
			{Unit: 2, Key: "b", Min: 4, Max: 7},
			{Unit: 3, Key: "c", Min: 8, Max: 9},
		},
	}
	if !reflect.DeepEqual(r, want) {
		t.Errorf("reindexing differs: %v", pretty.Diff(r, want))
	}
	if err := r.Check(p); err != nil {
		t.Error(err)
	}
	low, high := r.Bounds()
	if !reflect.DeepEqual(low, []int{1, 4, 8}) || !reflect.DeepEqual(high, []int{3, 7, 9}) {
		t.Errorf("bounds: have %v, %v", low, high)
	}
}

func TestReindexSingleUnit(t *testing.T) {
	p, err := NewPartition([]string{"only"}, []int{1, 1, 1, 1})
	if err != nil {
		t.Fatal(err)
	}
	r, err := Reindex(p)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{1, 2, 3, 4}; !reflect.DeepEqual(r.NewID, want) {
		t.Errorf("have %v, want identity", r.NewID)
	}
	if want := []UnitRange{{Unit: 1, Key: "only", Min: 1, Max: 4}}; !reflect.DeepEqual(r.Ranges, want) {
		t.Errorf("have %v, want %v", r.Ranges, want)
	}
}

func TestReindexEmptyUnit(t *testing.T) {
	p := &Partition{Keys: []string{"a", "b", "c"}, Assignment: []int{1, 3, 1, 3}}
	r, err := Reindex(p)
	if r != nil {
		t.Error("no reindexing should be returned with an empty unit")
	}
	var ue *UnitError
	if !errors.As(err, &ue) || !errors.Is(err, ErrEmptyUnit) {
		t.Fatalf("have %v, want an empty unit error", err)
	}
	if ue.Unit != 2 || ue.Key != "b" {
		t.Errorf("have unit %d (%s), want unit 2 (b)", ue.Unit, ue.Key)
	}
}

func TestReindexDeterministic(t *testing.T) {
	grid, err := NewGridRegular("test", 12, 9, 1, 1, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	p, err := VoronoiPartition(grid, 8, 3)
	if err != nil {
		t.Fatal(err)
	}
	r1, err := Reindex(p)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := Reindex(p)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(r1, r2) {
		t.Error("reindexing is not deterministic")
	}
	if r1.Fingerprint() != r2.Fingerprint() {
		t.Error("fingerprints differ")
	}
	if err := r1.Check(p); err != nil {
		t.Error(err)
	}

	p2, err := VoronoiPartition(grid, 8, 4)
	if err != nil {
		t.Fatal(err)
	}
	r3, err := Reindex(p2)
	if err != nil {
		t.Fatal(err)
	}
	if r1.Fingerprint() == r3.Fingerprint() {
		t.Error("different partitions have the same fingerprint")
	}
}

func TestReindexCheck(t *testing.T) {
	p := examplePartition(t)
	r, err := Reindex(p)
	if err != nil {
		t.Fatal(err)
	}

	overlap := *r
	overlap.Ranges = append([]UnitRange(nil), r.Ranges...)
	overlap.Ranges[1].Min = 3
	if err := overlap.Check(p); !errors.Is(err, ErrMalformedRange) {
		t.Errorf("overlapping ranges: have %v, want ErrMalformedRange", err)
	}

	swapped := *r
	swapped.NewID = append([]int(nil), r.NewID...)
	swapped.NewID[0], swapped.NewID[1] = swapped.NewID[1], swapped.NewID[0]
	if err := swapped.Check(p); err == nil {
		t.Error("inconsistent NewID and OldID should be an error")
	}
}

func TestPermute(t *testing.T) {
	p := examplePartition(t)
	r, err := Reindex(p)
	if err != nil {
		t.Fatal(err)
	}
	have, err := r.PermuteInt([]int{5, 2, 3, 1, 4, 2, 6, 1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{2, 3, 2, 5, 1, 1, 0, 4, 6}; !reflect.DeepEqual(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}
	haveF, err := r.Permute([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	if err != nil {
		t.Fatal(err)
	}
	if want := []float64{2, 3, 6, 1, 4, 8, 9, 5, 7}; !reflect.DeepEqual(haveF, want) {
		t.Errorf("have %v, want %v", haveF, want)
	}
	if _, err := r.Permute([]float64{1}); err == nil {
		t.Error("expected an error for the wrong number of values")
	}
}
