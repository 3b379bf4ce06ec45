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
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/tealeg/xlsx"
)

func tempDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "abundance")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestGridWriteToShp(t *testing.T) {
	dir := tempDir(t)
	grid, _, _, _ := exampleModelGrid(t)
	if _, err := grid.SampleSites(2, 1); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(dir, "cells.shp")
	if err := grid.WriteToShp(file, `PROJCS["test"]`); err != nil {
		t.Fatal(err)
	}
	d, err := shp.NewDecoder(file)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	var n, sites int
	for {
		_, fields, more := d.DecodeRowFields("id", "response", "x")
		if !more {
			break
		}
		n++
		if fields["response"] != "-1" {
			sites++
		}
	}
	if err := d.Error(); err != nil {
		t.Fatal(err)
	}
	if n != 9 || sites != 2 {
		t.Errorf("have %d cells and %d sites, want 9 and 2", n, sites)
	}
	prj, err := os.ReadFile(filepath.Join(dir, "cells.prj"))
	if err != nil {
		t.Fatal(err)
	}
	if string(prj) != `PROJCS["test"]` {
		t.Errorf("prj: have %s", prj)
	}
}

func TestUnitShapefileRoundTrip(t *testing.T) {
	dir := tempDir(t)
	grid, p, _, tbl := exampleModelGrid(t)
	units, err := UnitGeometry(grid, p)
	if err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(dir, "units.shp")
	if err = tbl.WriteToShp(file, "", units); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "units.prj")); !os.IsNotExist(err) {
		t.Error("no prj file should be written without a projection")
	}
	read, err := ReadUnitsShapefile(file, "key")
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, u := range read {
		keys = append(keys, u.Key)
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("keys: have %v, want %v", keys, want)
	}

	// The units read back must reproduce the partition they came from.
	p2, err := AssignCells(grid, read)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(p2, p) {
		t.Errorf("reassigned partition %+v differs from %+v", p2, p)
	}

	if err = tbl.WriteToShp(file, "", units[:2]); err == nil {
		t.Error("expected an error for missing unit geometry")
	}
}

func TestReadUnitsGeoJSON(t *testing.T) {
	dir := tempDir(t)
	file := filepath.Join(dir, "units.geojson")
	const fc = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name": "west", "code": 7},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,2],[0,2],[0,0]]]}},
    {"type": "Feature", "properties": {"name": "east", "code": 8},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[1,0],[2,0],[2,1],[1,1],[1,0]]], [[[1,1],[2,1],[2,2],[1,2],[1,1]]]]}}
  ]
}`
	if err := os.WriteFile(file, []byte(fc), 0644); err != nil {
		t.Fatal(err)
	}
	units, err := ReadUnitsGeoJSON(file, "name")
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 2 || units[0].Key != "west" || units[1].Key != "east" {
		t.Fatalf("have %d units", len(units))
	}
	grid, err := NewGridRegular("test", 2, 2, 1, 1, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	p, err := AssignCells(grid, units)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{1, 1, 2, 2}; !reflect.DeepEqual(p.Assignment, want) {
		t.Errorf("have %v, want %v", p.Assignment, want)
	}

	units, err = ReadUnitsGeoJSON(file, "code")
	if err != nil {
		t.Fatal(err)
	}
	if units[0].Key != "7" {
		t.Errorf("numeric key: have %s", units[0].Key)
	}
	if _, err := ReadUnitsGeoJSON(file, "missing"); err == nil {
		t.Error("expected an error for a missing key property")
	}
}

func TestReadUnitsGeoJSONMultiPolygon(t *testing.T) {
	dir := tempDir(t)
	tests := []struct {
		name, geometry string
		rings          int
		wantErr        bool
	}{
		{
			name:     "two parts",
			geometry: `{"type": "MultiPolygon", "coordinates": [[[[0,0],[1,0],[1,1],[0,1],[0,0]]], [[[2,0],[3,0],[3,1],[2,1],[2,0]]]]}`,
			rings:    2,
		},
		{
			name:     "part with hole",
			geometry: `{"type": "MultiPolygon", "coordinates": [[[[0,0],[4,0],[4,4],[0,4],[0,0]],[[1,1],[1,2],[2,2],[2,1],[1,1]]]]}`,
			rings:    2,
		},
		{
			name:     "not an array",
			geometry: `{"type": "MultiPolygon", "coordinates": 3}`,
			wantErr:  true,
		},
		{
			name:     "empty part",
			geometry: `{"type": "MultiPolygon", "coordinates": [[]]}`,
			wantErr:  true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			file := filepath.Join(dir, strings.ReplaceAll(test.name, " ", "_")+".geojson")
			fc := `{"type": "FeatureCollection", "features": [{"type": "Feature", "properties": {"name": "u"}, "geometry": ` +
				test.geometry + `}]}`
			if err := os.WriteFile(file, []byte(fc), 0644); err != nil {
				t.Fatal(err)
			}
			units, err := ReadUnitsGeoJSON(file, "name")
			if test.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if have := len(units[0].Polygonal.(geom.Polygon)); have != test.rings {
				t.Errorf("have %d rings, want %d", have, test.rings)
			}
		})
	}
}

func TestWriteXLSX(t *testing.T) {
	dir := tempDir(t)
	_, _, _, tbl := exampleModelGrid(t)
	file := filepath.Join(dir, "units.xlsx")
	if err := tbl.WriteXLSX(file); err != nil {
		t.Fatal(err)
	}
	f, err := xlsx.OpenFile(file)
	if err != nil {
		t.Fatal(err)
	}
	rows := f.Sheets[0].Rows
	if len(rows) != 4 {
		t.Fatalf("have %d rows, want a header and 3 units", len(rows))
	}
	var header []string
	for _, c := range rows[0].Cells {
		header = append(header, c.Value)
	}
	want := []string{"key", "unit", "min", "max", "count", "response", "rate", "area", "x"}
	if !reflect.DeepEqual(header, want) {
		t.Errorf("header: have %v, want %v", header, want)
	}
	if k, resp := rows[2].Cells[0].Value, rows[2].Cells[5].Value; k != "b" || resp != "7" {
		t.Errorf("unit b: have key %s and response %s", k, resp)
	}
}
