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

	"github.com/ctessum/geom"
)

func TestKeyIndex(t *testing.T) {
	k := NewKeyIndex()
	for _, key := range []string{"b", "a", "b", "c", "a"} {
		k.ID(key)
	}
	if want := []string{"b", "a", "c"}; !reflect.DeepEqual(k.Keys(), want) {
		t.Errorf("keys: have %v, want %v", k.Keys(), want)
	}
	if id, ok := k.Lookup("c"); !ok || id != 3 {
		t.Errorf("c: have %d, %v; want 3, true", id, ok)
	}
	if _, ok := k.Lookup("d"); ok {
		t.Error("d should not be found")
	}
}

func TestPartitionFromKeys(t *testing.T) {
	p, err := PartitionFromKeys([]string{"north", "south", "north", "east"})
	if err != nil {
		t.Fatal(err)
	}
	want := &Partition{
		Keys:       []string{"north", "south", "east"},
		Assignment: []int{1, 2, 1, 3},
	}
	if !reflect.DeepEqual(p, want) {
		t.Errorf("have %+v, want %+v", p, want)
	}
	if !reflect.DeepEqual(p.Counts(), []int{2, 1, 1}) {
		t.Errorf("counts: have %v", p.Counts())
	}
	if !reflect.DeepEqual(p.Members(1), []int{1, 3}) {
		t.Errorf("members: have %v", p.Members(1))
	}
	if p.Key(3) != "east" || p.Key(4) != "" {
		t.Errorf("keys: have %q and %q", p.Key(3), p.Key(4))
	}

	if _, err := PartitionFromKeys([]string{"a", ""}); !errors.Is(err, ErrUnassignedCell) {
		t.Errorf("empty key: have %v, want ErrUnassignedCell", err)
	}
}

func TestPartitionValidate(t *testing.T) {
	tests := []struct {
		name       string
		keys       []string
		assignment []int
		want       error
		unit       int
	}{
		{name: "unassigned", keys: []string{"a", "b"}, assignment: []int{1, 0, 2}, want: ErrUnassignedCell},
		{name: "unknown", keys: []string{"a", "b"}, assignment: []int{1, 3, 2}, want: ErrUnknownUnit},
		{name: "negative", keys: []string{"a"}, assignment: []int{1, -1}, want: ErrUnknownUnit},
		{name: "duplicate", keys: []string{"a", "a"}, assignment: []int{1, 2}, want: ErrDuplicateUnit, unit: 2},
		{name: "empty", keys: []string{"a", "b", "c"}, assignment: []int{1, 3, 1}, want: ErrEmptyUnit, unit: 2},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewPartition(test.keys, test.assignment)
			if !errors.Is(err, test.want) {
				t.Fatalf("have %v, want %v", err, test.want)
			}
			if test.unit != 0 {
				var ue *UnitError
				if !errors.As(err, &ue) {
					t.Fatalf("%v is not a *UnitError", err)
				}
				if ue.Unit != test.unit {
					t.Errorf("unit: have %d, want %d", ue.Unit, test.unit)
				}
			}
		})
	}
	if err := (&Partition{}).Validate(); err == nil {
		t.Error("expected an error for a partition without cells")
	}
}

func rect(xmin, ymin, xmax, ymax float64) geom.Polygon {
	return geom.Polygon{{
		{X: xmin, Y: ymin}, {X: xmax, Y: ymin}, {X: xmax, Y: ymax},
		{X: xmin, Y: ymax}, {X: xmin, Y: ymin},
	}}
}

func TestAssignCells(t *testing.T) {
	grid, err := NewGridRegular("test", 4, 2, 1, 1, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	units := []*Unit{
		{Key: "east", Polygonal: rect(2, 0, 4, 2)},
		{Key: "west", Polygonal: rect(0, 0, 2, 2)},
	}
	p, err := AssignCells(grid, units)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{2, 2, 2, 2, 1, 1, 1, 1}
	if !reflect.DeepEqual(p.Assignment, want) {
		t.Errorf("have %v, want %v", p.Assignment, want)
	}

	// Centroids in column 1 lie on the shared edge and go to the first unit.
	units = []*Unit{
		{Key: "left", Polygonal: rect(0, 0, 1.5, 2)},
		{Key: "right", Polygonal: rect(1.5, 0, 4, 2)},
	}
	p, err = AssignCells(grid, units)
	if err != nil {
		t.Fatal(err)
	}
	want = []int{1, 1, 1, 1, 2, 2, 2, 2}
	if !reflect.DeepEqual(p.Assignment, want) {
		t.Errorf("shared edge: have %v, want %v", p.Assignment, want)
	}

	units = []*Unit{{Key: "part", Polygonal: rect(0, 0, 2, 2)}}
	if _, err = AssignCells(grid, units); !errors.Is(err, ErrUnassignedCell) {
		t.Errorf("partial coverage: have %v, want ErrUnassignedCell", err)
	}
}

func TestVoronoiPartition(t *testing.T) {
	grid, err := NewGridRegular("test", 10, 10, 1, 1, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	p1, err := VoronoiPartition(grid, 7, 42)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := VoronoiPartition(grid, 7, 42)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(p1, p2) {
		t.Error("partitions with the same seed differ")
	}
	if p1.NumUnits() != 7 {
		t.Errorf("have %d units, want 7", p1.NumUnits())
	}
	var total int
	for _, n := range p1.Counts() {
		if n == 0 {
			t.Error("empty unit")
		}
		total += n
	}
	if total != grid.Len() {
		t.Errorf("units hold %d cells, want %d", total, grid.Len())
	}
	if _, err := VoronoiPartition(grid, 101, 1); err == nil {
		t.Error("expected an error for more units than cells")
	}
}

func TestUnitGeometry(t *testing.T) {
	grid, err := NewGridRegular("test", 2, 2, 1, 1, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPartition([]string{"a", "b"}, []int{1, 1, 2, 2})
	if err != nil {
		t.Fatal(err)
	}
	units, err := UnitGeometry(grid, p)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 2 {
		t.Fatalf("have %d units, want 2", len(units))
	}
	for i, want := range []*geom.Bounds{
		{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: 1, Y: 2}},
		{Min: geom.Point{X: 1, Y: 0}, Max: geom.Point{X: 2, Y: 2}},
	} {
		if b := units[i].Bounds(); !reflect.DeepEqual(b, want) {
			t.Errorf("unit %d bounds: have %v, want %v", i+1, b, want)
		}
		if a := units[i].Area(); a != 2 {
			t.Errorf("unit %d area: have %g, want 2", i+1, a)
		}
	}
}
