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

package abundanceutil

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/abundance"
	"github.com/spatialmodel/abundance/posterior"
	"github.com/tealeg/xlsx"
)

// Seeds for the separate random streams are derived from the configured
// seed so that changing, for example, the number of sites does not change
// the simulated abundance.
const (
	covariateStream = iota
	abundanceStream
	siteStream
	unitStream
)

func streamSeed(seed uint64, stream int) uint64 {
	return seed*4 + uint64(stream)
}

// newLogger returns a logger that writes to standard error and, if logFile
// is not empty, to logFile. The returned function closes the log file.
func newLogger(logFile string) (logrus.FieldLogger, func(), error) {
	if logFile == "" {
		return logrus.StandardLogger(), func() {}, nil
	}
	logFile = os.ExpandEnv(logFile)
	if err := os.MkdirAll(filepath.Dir(logFile), os.ModePerm); err != nil {
		return nil, nil, fmt.Errorf("abundance: preparing log file: %v", err)
	}
	f, err := os.Create(logFile)
	if err != nil {
		return nil, nil, fmt.Errorf("abundance: creating log file: %v", err)
	}
	log := logrus.New()
	log.Out = io.MultiWriter(os.Stderr, f)
	return log, func() { f.Close() }, nil
}

// Grid creates the fine-resolution grid and computes its covariates.
func Grid(log logrus.FieldLogger, gc *GridConfig, covariates []abundance.CovariateExpression, seed uint64) (*abundance.GridDef, error) {
	start := time.Now()
	grid, err := abundance.NewGridRegular(gc.Name, gc.Nx, gc.Ny, gc.Dx, gc.Dy, gc.X0, gc.Y0)
	if err != nil {
		return nil, err
	}
	if err = grid.AddCovariates(streamSeed(seed, covariateStream), covariates...); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"grid":       grid.Name,
		"cells":      grid.Len(),
		"covariates": strings.Join(grid.CovariateNames, ","),
		"time":       time.Since(start),
	}).Info("created grid")
	return grid, nil
}

// Simulate creates the grid, simulates ground-truth abundance, and, if
// sc.Sites > 0, samples survey sites.
func Simulate(log logrus.FieldLogger, gc *GridConfig, sc *SimulationConfig) (*abundance.GridDef, error) {
	grid, err := Grid(log, gc, sc.Covariates, sc.Seed)
	if err != nil {
		return nil, err
	}
	total, err := grid.SimulateAbundance(sc.Intensity, streamSeed(sc.Seed, abundanceStream))
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"beta0":     sc.Intensity.Beta0,
		"beta":      sc.Intensity.Beta,
		"abundance": total,
	}).Info("simulated abundance")
	if sc.Sites > 0 {
		sites, err := grid.SampleSites(sc.Sites, streamSeed(sc.Seed, siteStream))
		if err != nil {
			return nil, err
		}
		var count int
		for _, s := range sites {
			count += s.Y
		}
		log.WithFields(logrus.Fields{
			"sites": len(sites),
			"count": count,
		}).Info("sampled sites")
	}
	return grid, nil
}

// WriteGrid writes the grid cells to a shapefile.
func WriteGrid(log logrus.FieldLogger, grid *abundance.GridDef, fileName, prj string) error {
	if err := grid.WriteToShp(fileName, prj); err != nil {
		return err
	}
	log.WithField("file", fileName).Info("wrote grid")
	return nil
}

// Aggregation holds the results of aggregating a simulated grid to
// reporting units.
type Aggregation struct {
	Grid       *abundance.GridDef
	Partition  *abundance.Partition
	Units      []*abundance.Unit
	Reindexing *abundance.Reindexing
	Table      *abundance.UnitTable
}

// Partition assigns the cells of grid to reporting units, read from
// uc.File or, if it is empty, created around random seed cells.
func Partition(log logrus.FieldLogger, grid *abundance.GridDef, uc *UnitConfig, seed uint64) (*abundance.Partition, error) {
	if uc.File == "" {
		p, err := abundance.VoronoiPartition(grid, uc.Number, streamSeed(seed, unitStream))
		if err != nil {
			return nil, err
		}
		log.WithField("units", p.NumUnits()).Info("created units")
		return p, nil
	}
	var units []*abundance.Unit
	var err error
	switch ext := strings.ToLower(filepath.Ext(uc.File)); ext {
	case ".shp":
		units, err = abundance.ReadUnitsShapefile(uc.File, uc.KeyField)
	case ".json", ".geojson":
		units, err = abundance.ReadUnitsGeoJSON(uc.File, uc.KeyField)
	default:
		return nil, fmt.Errorf("abundance: unsupported unit file extension `%s`", ext)
	}
	if err != nil {
		return nil, err
	}
	p, err := abundance.AssignCells(grid, units)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"file":  uc.File,
		"units": p.NumUnits(),
	}).Info("assigned cells to units")
	return p, nil
}

// Aggregate simulates abundance on the grid, assigns the cells to units,
// reindexes the cells so that each unit owns a contiguous block of cell
// ids, and aggregates the cell values to the units.
func Aggregate(log logrus.FieldLogger, gc *GridConfig, sc *SimulationConfig, uc *UnitConfig) (*Aggregation, error) {
	grid, err := Simulate(log, gc, sc)
	if err != nil {
		return nil, err
	}
	p, err := Partition(log, grid, uc, sc.Seed)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	r, err := abundance.Reindex(p)
	if err != nil {
		return nil, err
	}
	if err = r.Check(p); err != nil {
		return nil, err
	}
	t, err := abundance.Aggregate(grid, r)
	if err != nil {
		return nil, err
	}
	units, err := abundance.UnitGeometry(grid, p)
	if err != nil {
		return nil, err
	}
	if !t.HasRates {
		log.Warn("grid has no cell rates; unit rates are not set")
	}
	log.WithFields(logrus.Fields{
		"cells":       r.Len(),
		"units":       len(r.Ranges),
		"fingerprint": r.Fingerprint(),
		"time":        time.Since(start),
	}).Info("aggregated cells to units")
	return &Aggregation{
		Grid:       grid,
		Partition:  p,
		Units:      units,
		Reindexing: r,
		Table:      t,
	}, nil
}

// Write writes the unit table to units.shp and units.xlsx in dir.
func (a *Aggregation) Write(log logrus.FieldLogger, dir, prj string) error {
	shpFile := filepath.Join(dir, "units.shp")
	if err := a.Table.WriteToShp(shpFile, prj, a.Units); err != nil {
		return err
	}
	xlsxFile := filepath.Join(dir, "units.xlsx")
	if err := a.Table.WriteXLSX(xlsxFile); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"shapefile":   shpFile,
		"spreadsheet": xlsxFile,
	}).Info("wrote unit table")
	return nil
}

// ModelInput prepares the input of the given model.
func (a *Aggregation) ModelInput(model string) (*abundance.ModelInput, error) {
	switch model {
	case abundance.SiteModel:
		return abundance.SiteModelInput(a.Grid)
	case abundance.AggregateModel:
		return abundance.AggregateModelInput(a.Grid, a.Reindexing, a.Table)
	case abundance.SpatialModel:
		adj, err := abundance.UnitAdjacency(a.Grid, a.Partition)
		if err != nil {
			return nil, err
		}
		return abundance.SpatialModelInput(a.Grid, a.Reindexing, a.Table, adj)
	default:
		return nil, checkModel(model)
	}
}

// LogLikelihood returns the polygon-aggregated log-likelihood of the unit
// responses under the intensity in.
func (a *Aggregation) LogLikelihood(in abundance.Intensity) (float64, error) {
	r := a.Reindexing
	x := make([][]float64, len(a.Grid.CovariateNames))
	for k := range x {
		var err error
		if x[k], err = r.Permute(a.Grid.Covariate(k)); err != nil {
			return math.NaN(), err
		}
	}
	area := make([]float64, r.Len())
	for i, id := range r.OldID {
		area[i] = a.Grid.Cells[id-1].Area()
	}
	return abundance.LogLikelihood(r, x, area, a.Table.Responses(), in)
}

// Export writes the input of the given model to w. For the aggregated models
// the log-likelihood at the simulation intensity is logged first, which
// fails if any unit has a zero rate.
func (a *Aggregation) Export(log logrus.FieldLogger, model string, in abundance.Intensity, w io.Writer) error {
	m, err := a.ModelInput(model)
	if err != nil {
		return err
	}
	fields := logrus.Fields{
		"model":    m.Model,
		"monitors": strings.Join(m.Monitors, ","),
	}
	if model != abundance.SiteModel {
		ll, err := a.LogLikelihood(in)
		if err != nil {
			return err
		}
		fields["loglikelihood"] = ll
	}
	if err = m.WriteJSON(w); err != nil {
		return err
	}
	log.WithFields(fields).Info("exported model input")
	return nil
}

// Diagnose reads the posterior chains, checks their convergence, and writes
// a summary of every parameter to summaryFile.
func Diagnose(log logrus.FieldLogger, pc *PosteriorConfig, summaryFile string) error {
	s := posterior.New()
	for _, file := range pc.Chains {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("abundance: opening posterior chain: %v", err)
		}
		err = s.ReadChain(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("abundance: reading posterior chain %s: %v", file, err)
		}
	}
	s, err := s.Thin(pc.BurnIn, pc.Thin)
	if err != nil {
		return err
	}
	summary, err := s.Summarize()
	if err != nil {
		return err
	}
	for _, sm := range summary {
		log.WithFields(logrus.Fields{
			"mean":   sm.Mean,
			"sd":     sm.SD,
			"q025":   sm.Q025,
			"median": sm.Median,
			"q975":   sm.Q975,
			"rhat":   sm.RHat,
			"ess":    sm.ESS,
		}).Info(sm.Param)
	}
	if err = writeSummaryXLSX(summaryFile, summary); err != nil {
		return err
	}
	if pc.PlotDir != "" {
		if err = os.MkdirAll(pc.PlotDir, os.ModePerm); err != nil {
			return fmt.Errorf("abundance: creating PlotDir: %v", err)
		}
		for _, p := range s.Params {
			fileName := filepath.Join(pc.PlotDir, plotName(p)+".png")
			if err = s.TracePlot(p, fileName); err != nil {
				return err
			}
		}
		log.WithField("dir", pc.PlotDir).Info("wrote trace plots")
	}
	if pc.MaxRHat > 0 && s.NumChains() >= 2 {
		param, rhat, err := s.MaxRHat()
		if err != nil {
			return err
		}
		if rhat > pc.MaxRHat {
			return fmt.Errorf("abundance: posterior has not converged: R-hat of %s is %.3f, which exceeds %g", param, rhat, pc.MaxRHat)
		}
		log.WithFields(logrus.Fields{
			"param": param,
			"rhat":  rhat,
		}).Info("posterior converged")
	}
	return nil
}

// plotName converts a parameter name such as beta[1] to a file name.
func plotName(param string) string {
	return strings.NewReplacer("[", "_", "]", "", ",", "_", " ", "").Replace(param)
}

func writeSummaryXLSX(fileName string, summary []posterior.Summary) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("posterior")
	if err != nil {
		return fmt.Errorf("abundance: creating summary sheet: %v", err)
	}
	header := sheet.AddRow()
	for _, h := range []string{"param", "mean", "sd", "q025", "median", "q975", "rhat", "ess"} {
		header.AddCell().SetString(h)
	}
	for _, sm := range summary {
		row := sheet.AddRow()
		row.AddCell().SetString(sm.Param)
		for _, v := range []float64{sm.Mean, sm.SD, sm.Q025, sm.Median, sm.Q975, sm.RHat, sm.ESS} {
			c := row.AddCell()
			if math.IsNaN(v) {
				c.SetString("NA")
				continue
			}
			c.SetFloat(v)
		}
	}
	if err = f.Save(fileName); err != nil {
		return fmt.Errorf("abundance: writing summary spreadsheet: %v", err)
	}
	return nil
}
