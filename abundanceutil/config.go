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
	"os"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/abundance"
	"github.com/spf13/cast"
)

// GridConfig specifies the fine-resolution grid.
type GridConfig struct {
	Name   string
	Nx, Ny int
	Dx, Dy float64
	X0, Y0 float64

	// Proj optionally holds the grid projection in WKT format, which is
	// written alongside output shapefiles.
	Proj string
}

// SimulationConfig specifies how covariates and ground-truth abundance are
// simulated.
type SimulationConfig struct {
	Covariates []abundance.CovariateExpression
	Intensity  abundance.Intensity
	Seed       uint64

	// Sites is the number of cells sampled for the site-level model.
	Sites int
}

// UnitConfig specifies the reporting units.
type UnitConfig struct {
	// File is a polygon shapefile (.shp) or GeoJSON FeatureCollection
	// (.json, .geojson) holding the units. If it is empty, Number units are
	// simulated instead.
	File     string
	KeyField string
	Number   int
}

// PosteriorConfig specifies the posterior samples to diagnose.
type PosteriorConfig struct {
	Chains  []string
	BurnIn  int
	Thin    int
	MaxRHat float64
	PlotDir string
}

// gridConfig unmarshals the grid configuration.
func gridConfig(cfg *viper.Viper) (*GridConfig, error) {
	c := &GridConfig{
		Name: os.ExpandEnv(cfg.GetString("Grid.Name")),
		Nx:   cfg.GetInt("Grid.Nx"),
		Ny:   cfg.GetInt("Grid.Ny"),
		Dx:   cfg.GetFloat64("Grid.Dx"),
		Dy:   cfg.GetFloat64("Grid.Dy"),
		X0:   cfg.GetFloat64("Grid.X0"),
		Y0:   cfg.GetFloat64("Grid.Y0"),
		Proj: os.ExpandEnv(cfg.GetString("Grid.Proj")),
	}
	vars := []float64{c.Dx, c.Dy}
	varNames := []string{"Grid.Dx", "Grid.Dy"}
	for i, v := range vars {
		if !(v > 0) {
			return nil, fmt.Errorf("parsing grid configuration: %s=%g but should be >0", varNames[i], v)
		}
	}
	vars2 := []int{c.Nx, c.Ny}
	varNames = []string{"Grid.Nx", "Grid.Ny"}
	for i, v := range vars2 {
		if v < 1 {
			return nil, fmt.Errorf("parsing grid configuration: %s=%d but should be >0", varNames[i], v)
		}
	}
	return c, nil
}

// parseCovariates parses covariate definitions of the form name=expression.
func parseCovariates(defs []string) ([]abundance.CovariateExpression, error) {
	o := make([]abundance.CovariateExpression, 0, len(defs))
	for _, d := range defs {
		i := strings.Index(d, "=")
		if i < 1 {
			return nil, fmt.Errorf("invalid covariate definition `%s`; it should be in the form name=expression", d)
		}
		o = append(o, abundance.CovariateExpression{
			Name:       strings.TrimSpace(d[:i]),
			Expression: strings.TrimSpace(d[i+1:]),
		})
	}
	return o, nil
}

// toFloat64SliceE converts a configuration value to a slice of floats. The
// value may be a list or a comma-separated string.
func toFloat64SliceE(v interface{}) ([]float64, error) {
	var items []interface{}
	switch vv := v.(type) {
	case []float64:
		return vv, nil
	case []interface{}:
		items = vv
	case []string:
		for _, s := range vv {
			if strings.TrimSpace(s) != "" {
				items = append(items, s)
			}
		}
	case string:
		if strings.TrimSpace(vv) == "" {
			return nil, nil
		}
		for _, s := range strings.Split(strings.Trim(vv, "[]"), ",") {
			items = append(items, strings.TrimSpace(s))
		}
	default:
		return nil, fmt.Errorf("invalid type %T for list of numbers", v)
	}
	o := make([]float64, len(items))
	for i, item := range items {
		f, err := cast.ToFloat64E(item)
		if err != nil {
			return nil, err
		}
		o[i] = f
	}
	return o, nil
}

// simulationConfig unmarshals the simulation configuration.
func simulationConfig(cfg *viper.Viper) (*SimulationConfig, error) {
	covs, err := parseCovariates(cfg.GetStringSlice("Simulation.Covariates"))
	if err != nil {
		return nil, fmt.Errorf("parsing Simulation.Covariates: %v", err)
	}
	beta, err := toFloat64SliceE(cfg.Get("Simulation.Beta"))
	if err != nil {
		return nil, fmt.Errorf("parsing Simulation.Beta: %v", err)
	}
	if len(beta) != len(covs) {
		return nil, fmt.Errorf("parsing simulation configuration: there are %d covariates but %d coefficients in Simulation.Beta", len(covs), len(beta))
	}
	seed, err := seedConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &SimulationConfig{
		Covariates: covs,
		Intensity: abundance.Intensity{
			Beta0: cfg.GetFloat64("Simulation.Beta0"),
			Beta:  beta,
		},
		Seed:  seed,
		Sites: cfg.GetInt("Simulation.Sites"),
	}, nil
}

// seedConfig unmarshals the random number seed.
func seedConfig(cfg *viper.Viper) (uint64, error) {
	seed, err := cast.ToInt64E(cfg.Get("Simulation.Seed"))
	if err != nil {
		return 0, fmt.Errorf("parsing Simulation.Seed: %v", err)
	}
	if seed < 0 {
		return 0, fmt.Errorf("parsing Simulation.Seed: %d is negative", seed)
	}
	return uint64(seed), nil
}

// unitConfig unmarshals the reporting unit configuration.
func unitConfig(cfg *viper.Viper) (*UnitConfig, error) {
	c := &UnitConfig{
		File:     os.ExpandEnv(cfg.GetString("Units.File")),
		KeyField: cfg.GetString("Units.KeyField"),
		Number:   cfg.GetInt("Units.Number"),
	}
	if c.File == "" && c.Number < 1 {
		return nil, fmt.Errorf("parsing unit configuration: either Units.File or Units.Number must be specified")
	}
	if c.File != "" && c.KeyField == "" {
		return nil, fmt.Errorf("parsing unit configuration: Units.KeyField must be specified when Units.File is")
	}
	return c, nil
}

// posteriorConfig unmarshals the posterior diagnostics configuration.
func posteriorConfig(cfg *viper.Viper) (*PosteriorConfig, error) {
	c := &PosteriorConfig{
		Chains:  expandStringSlice(cfg.GetStringSlice("Posterior.Chains")),
		BurnIn:  cfg.GetInt("Posterior.BurnIn"),
		Thin:    cfg.GetInt("Posterior.Thin"),
		MaxRHat: cfg.GetFloat64("Posterior.MaxRHat"),
		PlotDir: os.ExpandEnv(cfg.GetString("Posterior.PlotDir")),
	}
	if len(c.Chains) == 0 {
		return nil, fmt.Errorf("parsing posterior configuration: Posterior.Chains is not specified")
	}
	if c.Thin < 1 {
		return nil, fmt.Errorf("parsing posterior configuration: Posterior.Thin=%d but should be >0", c.Thin)
	}
	return c, nil
}

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

// checkOutputDir expands environment variables in the output directory and
// creates it if it doesn't exist.
func checkOutputDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("you need to specify an output directory (for example: OutputDir=\"output\")")
	}
	dir = os.ExpandEnv(dir)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return dir, fmt.Errorf("abundance: creating OutputDir: %v", err)
	}
	return dir, nil
}
