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
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
	"github.com/tealeg/xlsx"
)

// removeShp deletes the shapefile with base name fileBase and its
// support files, if they exist.
func removeShp(fileBase string) {
	for _, ext := range []string{".shp", ".prj", ".dbf", ".shx"} {
		os.Remove(fileBase + ext)
	}
}

// writePrj writes a projection file for a shapefile, if a projection
// is specified.
func writePrj(fileBase, prj string) error {
	if prj == "" {
		return nil
	}
	f, err := os.Create(fileBase + ".prj")
	if err != nil {
		return fmt.Errorf("abundance: creating prj file: %v", err)
	}
	if _, err = fmt.Fprint(f, prj); err != nil {
		f.Close()
		return fmt.Errorf("abundance: writing prj file: %v", err)
	}
	return f.Close()
}

// WriteToShp writes the grid cells, their covariates, rates, simulated
// abundances, and observed responses to a shapefile. Cells without an
// observed response are given a response of -1. prj optionally specifies
// the projection of the grid in WKT format.
func (grid *GridDef) WriteToShp(fileName, prj string) error {
	fileBase := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	removeShp(fileBase)
	fields := []goshp.Field{
		goshp.NumberField("id", 10),
		goshp.NumberField("row", 10),
		goshp.NumberField("col", 10),
		goshp.FloatField("rate", 14, 8),
		goshp.NumberField("abundance", 10),
		goshp.NumberField("response", 10),
	}
	for _, n := range grid.CovariateNames {
		fields = append(fields, goshp.FloatField(n, 14, 8))
	}
	e, err := shp.NewEncoderFromFields(fileBase+".shp", goshp.POLYGON, fields...)
	if err != nil {
		return fmt.Errorf("abundance: creating grid shapefile: %v", err)
	}
	for _, c := range grid.Cells {
		resp := -1
		if c.Response != nil {
			resp = *c.Response
		}
		data := []interface{}{c.ID, c.Row, c.Col, c.Rate, c.Abundance, resp}
		for _, v := range c.Covariates {
			data = append(data, v)
		}
		if err = e.EncodeFields(c.Polygonal, data...); err != nil {
			e.Close()
			return fmt.Errorf("abundance: writing grid shapefile: %v", err)
		}
	}
	e.Close()
	return writePrj(fileBase, prj)
}

// WriteToShp writes the unit table to a shapefile, using the geometry of
// units, which must be in the same order as the table.
func (t *UnitTable) WriteToShp(fileName, prj string, units []*Unit) error {
	if len(units) != len(t.Units) {
		return fmt.Errorf("abundance: %d unit geometries for %d units", len(units), len(t.Units))
	}
	fileBase := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	removeShp(fileBase)
	fields := []goshp.Field{
		goshp.StringField("key", 50),
		goshp.NumberField("unit", 10),
		goshp.NumberField("min", 10),
		goshp.NumberField("max", 10),
		goshp.NumberField("count", 10),
		goshp.NumberField("response", 10),
		goshp.FloatField("rate", 14, 8),
		goshp.FloatField("area", 14, 4),
	}
	for _, n := range t.CovariateNames {
		fields = append(fields, goshp.FloatField(n, 14, 8))
	}
	e, err := shp.NewEncoderFromFields(fileBase+".shp", goshp.POLYGON, fields...)
	if err != nil {
		return fmt.Errorf("abundance: creating unit shapefile: %v", err)
	}
	for i, u := range t.Units {
		if units[i].Key != u.Key {
			e.Close()
			return fmt.Errorf("abundance: unit geometry %d has key %s but table has %s", i, units[i].Key, u.Key)
		}
		data := []interface{}{u.Key, u.Unit, u.Min, u.Max, u.Count, u.Response, u.Rate, u.Area}
		for _, v := range u.MeanCovariates {
			data = append(data, v)
		}
		if err = e.EncodeFields(units[i].Polygonal, data...); err != nil {
			e.Close()
			return fmt.Errorf("abundance: writing unit shapefile: %v", err)
		}
	}
	e.Close()
	return writePrj(fileBase, prj)
}

// WriteXLSX writes the unit table to a spreadsheet with one row per unit.
func (t *UnitTable) WriteXLSX(fileName string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("units")
	if err != nil {
		return fmt.Errorf("abundance: creating unit spreadsheet: %v", err)
	}
	header := sheet.AddRow()
	for _, h := range append([]string{"key", "unit", "min", "max", "count", "response", "rate", "area"}, t.CovariateNames...) {
		header.AddCell().SetString(h)
	}
	for _, u := range t.Units {
		row := sheet.AddRow()
		row.AddCell().SetString(u.Key)
		for _, v := range []int{u.Unit, u.Min, u.Max, u.Count, u.Response} {
			row.AddCell().SetInt(v)
		}
		row.AddCell().SetFloat(u.Rate)
		row.AddCell().SetFloat(u.Area)
		for _, v := range u.MeanCovariates {
			row.AddCell().SetFloat(v)
		}
	}
	if err := f.Save(fileName); err != nil {
		return fmt.Errorf("abundance: saving unit spreadsheet: %v", err)
	}
	return nil
}

func polygonal(g geom.Geom) (geom.Polygonal, error) {
	switch gg := g.(type) {
	case geom.Polygon:
		return gg, nil
	case geom.MultiPolygon:
		var o geom.Polygon
		for _, p := range gg {
			o = append(o, p...)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("invalid unit geometry type %T", g)
	}
}

// ReadUnitsShapefile reads reporting units from a polygon shapefile. The
// unit key is taken from the keyField attribute. Units are returned in file
// order.
func ReadUnitsShapefile(fileName, keyField string) ([]*Unit, error) {
	d, err := shp.NewDecoder(fileName)
	if err != nil {
		return nil, fmt.Errorf("abundance: opening unit shapefile: %v", err)
	}
	defer d.Close()
	var units []*Unit
	for {
		g, fields, more := d.DecodeRowFields(keyField)
		if !more {
			break
		}
		p, err := polygonal(g)
		if err != nil {
			return nil, fmt.Errorf("abundance: reading %s row %d: %v", fileName, len(units), err)
		}
		units = append(units, &Unit{Polygonal: p, Key: strings.TrimSpace(fields[keyField])})
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("abundance: reading unit shapefile: %v", err)
	}
	return units, nil
}

type featureCollection struct {
	Features []struct {
		Geometry   geojson.Geometry       `json:"geometry"`
		Properties map[string]interface{} `json:"properties"`
	} `json:"features"`
}

// decodeGeoJSON decodes g. The geojson package does not handle
// MultiPolygons, so their parts are decoded one Polygon at a time.
func decodeGeoJSON(g *geojson.Geometry) (geom.Geom, error) {
	if g.Type != "MultiPolygon" {
		return geojson.FromGeoJSON(g)
	}
	parts, ok := g.Coordinates.([]interface{})
	if !ok {
		return nil, geojson.InvalidGeometryError{}
	}
	mp := make(geom.MultiPolygon, len(parts))
	for i, part := range parts {
		pg, err := geojson.FromGeoJSON(&geojson.Geometry{Type: "Polygon", Coordinates: part})
		if err != nil {
			return nil, fmt.Errorf("polygon %d: %v", i, err)
		}
		mp[i] = pg.(geom.Polygon)
	}
	return mp, nil
}

// ReadUnitsGeoJSON reads reporting units from a GeoJSON FeatureCollection.
// The unit key is taken from the keyField property.
func ReadUnitsGeoJSON(fileName, keyField string) ([]*Unit, error) {
	b, err := os.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("abundance: reading unit GeoJSON: %w", err)
	}
	var fc featureCollection
	if err := json.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("abundance: decoding unit GeoJSON: %w", err)
	}
	units := make([]*Unit, len(fc.Features))
	for i, f := range fc.Features {
		g, err := decodeGeoJSON(&f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("abundance: feature %d: %v", i, err)
		}
		p, err := polygonal(g)
		if err != nil {
			return nil, fmt.Errorf("abundance: feature %d: %v", i, err)
		}
		k, ok := f.Properties[keyField]
		if !ok {
			return nil, fmt.Errorf("abundance: feature %d does not have property `%s`", i, keyField)
		}
		units[i] = &Unit{Polygonal: p, Key: fmt.Sprint(k)}
	}
	return units, nil
}
