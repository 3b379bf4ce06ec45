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
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/abundance"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	gridSets := []*pflag.FlagSet{gridCmd.Flags(), simulateCmd.Flags(), aggregateCmd.Flags(), exportCmd.Flags()}
	simSets := []*pflag.FlagSet{simulateCmd.Flags(), aggregateCmd.Flags(), exportCmd.Flags()}
	unitSets := []*pflag.FlagSet{aggregateCmd.Flags(), exportCmd.Flags()}

	// Options are the configuration options available to abundance.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile specifies the path to a file where log messages
              are written in addition to standard error. If it is empty,
              messages are only written to standard error.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "OutputDir",
			usage: `
              OutputDir specifies the directory where output files are
              written. It can contain environment variables and will
              be created if it does not exist.`,
			shorthand:  "o",
			defaultVal: "abundance_output",
			flagsets:   append(append([]*pflag.FlagSet{}, gridSets...), diagnoseCmd.Flags()),
		},
		{
			name: "Grid.Name",
			usage: `
              Grid.Name is a name for the fine-resolution grid.`,
			defaultVal: "grid",
			flagsets:   gridSets,
		},
		{
			name: "Grid.Nx",
			usage: `
              Grid.Nx is the number of grid columns.`,
			defaultVal: 20,
			flagsets:   gridSets,
		},
		{
			name: "Grid.Ny",
			usage: `
              Grid.Ny is the number of grid rows.`,
			defaultVal: 20,
			flagsets:   gridSets,
		},
		{
			name: "Grid.Dx",
			usage: `
              Grid.Dx is the grid cell edge length in the x direction, in
              the units of the grid projection.`,
			defaultVal: 1.0,
			flagsets:   gridSets,
		},
		{
			name: "Grid.Dy",
			usage: `
              Grid.Dy is the grid cell edge length in the y direction, in
              the units of the grid projection.`,
			defaultVal: 1.0,
			flagsets:   gridSets,
		},
		{
			name: "Grid.X0",
			usage: `
              Grid.X0 is the X coordinate of the lower-left corner of the grid.`,
			defaultVal: 0.0,
			flagsets:   gridSets,
		},
		{
			name: "Grid.Y0",
			usage: `
              Grid.Y0 is the Y coordinate of the lower-left corner of the grid.`,
			defaultVal: 0.0,
			flagsets:   gridSets,
		},
		{
			name: "Grid.Proj",
			usage: `
              Grid.Proj is the grid projection in WKT format. If it is
              specified, it is written to a .prj file next to every
              output shapefile.`,
			defaultVal: "",
			flagsets:   gridSets,
		},
		{
			name: "Simulation.Covariates",
			usage: `
              Simulation.Covariates is a list of covariate definitions in
              the form name=expression. Expressions can use the cell
              centroid coordinates x and y, the cell row and col, covariates
              defined earlier in the list, and the functions exp, log, sqrt,
              sin, cos, abs, and normal(sd).`,
			defaultVal: []string{},
			flagsets:   gridSets,
		},
		{
			name: "Simulation.Beta0",
			usage: `
              Simulation.Beta0 is the intercept of the log intensity.`,
			defaultVal: 0.0,
			flagsets:   simSets,
		},
		{
			name: "Simulation.Beta",
			usage: `
              Simulation.Beta is the list of log intensity coefficients,
              one for each covariate in Simulation.Covariates.`,
			defaultVal: []string{},
			flagsets:   simSets,
		},
		{
			name: "Simulation.Seed",
			usage: `
              Simulation.Seed is the seed for all random number generation.
              Runs with the same seed and configuration produce identical
              output.`,
			defaultVal: 1,
			flagsets:   gridSets,
		},
		{
			name: "Simulation.Sites",
			usage: `
              Simulation.Sites is the number of grid cells sampled as
              survey sites for the site-level model. If it is zero, no
              sites are sampled.`,
			defaultVal: 0,
			flagsets:   simSets,
		},
		{
			name: "Units.File",
			usage: `
              Units.File is the path to a polygon shapefile (.shp) or
              GeoJSON feature collection (.json or .geojson) holding the
              reporting units. If it is empty, Units.Number units are
              created by grouping grid cells around random seed cells.`,
			defaultVal: "",
			flagsets:   unitSets,
		},
		{
			name: "Units.KeyField",
			usage: `
              Units.KeyField is the attribute in Units.File that holds the
              unique key of each unit.`,
			defaultVal: "",
			flagsets:   unitSets,
		},
		{
			name: "Units.Number",
			usage: `
              Units.Number is the number of units to create when
              Units.File is not specified.`,
			defaultVal: 10,
			flagsets:   unitSets,
		},
		{
			name: "Model",
			usage: `
              Model specifies which model input to export. Options are
              "site", "aggregate", and "spatial".`,
			shorthand:  "m",
			defaultVal: abundance.AggregateModel,
			flagsets:   []*pflag.FlagSet{exportCmd.Flags()},
		},
		{
			name: "Posterior.Chains",
			usage: `
              Posterior.Chains is a list of CSV files, each holding one
              chain of posterior samples with one column per parameter.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{diagnoseCmd.Flags()},
		},
		{
			name: "Posterior.BurnIn",
			usage: `
              Posterior.BurnIn is the number of initial iterations discarded
              from each chain.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{diagnoseCmd.Flags()},
		},
		{
			name: "Posterior.Thin",
			usage: `
              Posterior.Thin specifies that only every Thin-th iteration is
              kept after burn-in.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{diagnoseCmd.Flags()},
		},
		{
			name: "Posterior.MaxRHat",
			usage: `
              Posterior.MaxRHat is the largest acceptable potential scale
              reduction factor. diagnose fails if any parameter exceeds it.
              If it is zero, no check is made.`,
			defaultVal: 1.1,
			flagsets:   []*pflag.FlagSet{diagnoseCmd.Flags()},
		},
		{
			name: "Posterior.PlotDir",
			usage: `
              Posterior.PlotDir is the directory where trace plots are
              written. If it is empty, no plots are created.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{diagnoseCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("ABUNDANCE")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(gridCmd)
	Root.AddCommand(simulateCmd)
	Root.AddCommand(aggregateCmd)
	Root.AddCommand(exportCmd)
	Root.AddCommand(diagnoseCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("abundance: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "abundance",
	Short: "Prepare abundance data for change-of-support models.",
	Long: `abundance simulates covariate-driven animal abundance on a regular grid,
aggregates it to irregular reporting units, and prepares the tables that a
Bayesian inference engine needs to fit Poisson point-process models to the
aggregated counts. It can also check the convergence of the resulting
posterior samples.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'ABUNDANCE_var' where 'var' is the
name of the variable to be set. Many configuration variables are additionally
allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of abundance.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("abundance v%s\n", abundance.Version)
	},
	DisableAutoGenTag: true,
}

// gridCmd creates the fine-resolution grid and its covariates.
var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Create the fine-resolution grid",
	Long: `grid creates the regular grid of fine-resolution cells, computes the
covariates specified in Simulation.Covariates, and writes the grid to
a shapefile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, closeLog, err := newLogger(Cfg.GetString("LogFile"))
		if err != nil {
			return err
		}
		defer closeLog()
		gc, err := gridConfig(Cfg)
		if err != nil {
			return err
		}
		covs, err := parseCovariates(Cfg.GetStringSlice("Simulation.Covariates"))
		if err != nil {
			return err
		}
		seed, err := seedConfig(Cfg)
		if err != nil {
			return err
		}
		outputDir, err := checkOutputDir(Cfg.GetString("OutputDir"))
		if err != nil {
			return err
		}
		grid, err := Grid(log, gc, covs, seed)
		if err != nil {
			return err
		}
		return WriteGrid(log, grid, filepath.Join(outputDir, "grid.shp"), gc.Proj)
	},
	DisableAutoGenTag: true,
}

// simulateCmd simulates ground-truth abundance.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate ground-truth abundance",
	Long: `simulate creates the grid, draws the ground-truth abundance of every
cell from a Poisson distribution with a log-linear intensity, optionally
samples survey sites, and writes the cells to a shapefile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, closeLog, err := newLogger(Cfg.GetString("LogFile"))
		if err != nil {
			return err
		}
		defer closeLog()
		gc, sc, err := simulationConfigs(Cfg)
		if err != nil {
			return err
		}
		outputDir, err := checkOutputDir(Cfg.GetString("OutputDir"))
		if err != nil {
			return err
		}
		grid, err := Simulate(log, gc, sc)
		if err != nil {
			return err
		}
		return WriteGrid(log, grid, filepath.Join(outputDir, "cells.shp"), gc.Proj)
	},
	DisableAutoGenTag: true,
}

// aggregateCmd aggregates the simulated abundance to reporting units.
var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Aggregate abundance to reporting units",
	Long: `aggregate simulates abundance, assigns every grid cell to a reporting
unit, renumbers the cells so each unit owns a contiguous block of cell
identifiers, and writes the aggregated unit table to a shapefile and a
spreadsheet.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, closeLog, err := newLogger(Cfg.GetString("LogFile"))
		if err != nil {
			return err
		}
		defer closeLog()
		gc, sc, err := simulationConfigs(Cfg)
		if err != nil {
			return err
		}
		uc, err := unitConfig(Cfg)
		if err != nil {
			return err
		}
		outputDir, err := checkOutputDir(Cfg.GetString("OutputDir"))
		if err != nil {
			return err
		}
		a, err := Aggregate(log, gc, sc, uc)
		if err != nil {
			return err
		}
		return a.Write(log, outputDir, gc.Proj)
	},
	DisableAutoGenTag: true,
}

// exportCmd writes the model input for the inference engine.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the input for an abundance model",
	Long: `export runs the aggregation and writes the constants, data, and monitored
parameters that an inference engine needs to fit the model chosen with
--Model to a JSON file in OutputDir.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, closeLog, err := newLogger(Cfg.GetString("LogFile"))
		if err != nil {
			return err
		}
		defer closeLog()
		gc, sc, err := simulationConfigs(Cfg)
		if err != nil {
			return err
		}
		model := Cfg.GetString("Model")
		if err = checkModel(model); err != nil {
			return err
		}
		if model == abundance.SiteModel && sc.Sites == 0 {
			return fmt.Errorf("abundance: the site model requires Simulation.Sites > 0")
		}
		uc, err := unitConfig(Cfg)
		if err != nil {
			return err
		}
		outputDir, err := checkOutputDir(Cfg.GetString("OutputDir"))
		if err != nil {
			return err
		}
		a, err := Aggregate(log, gc, sc, uc)
		if err != nil {
			return err
		}
		f, err := os.Create(filepath.Join(outputDir, model+".json"))
		if err != nil {
			return fmt.Errorf("abundance: creating model input file: %v", err)
		}
		if err = a.Export(log, model, sc.Intensity, f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	},
	DisableAutoGenTag: true,
}

// diagnoseCmd checks the convergence of posterior samples.
var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Check the convergence of posterior samples",
	Long: `diagnose reads the posterior sample chains listed in Posterior.Chains,
discards burn-in, thins the chains, and reports the mean, standard
deviation, quantiles, potential scale reduction factor, and effective
sample size of every parameter. The summary is written to a spreadsheet
in OutputDir.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, closeLog, err := newLogger(Cfg.GetString("LogFile"))
		if err != nil {
			return err
		}
		defer closeLog()
		pc, err := posteriorConfig(Cfg)
		if err != nil {
			return err
		}
		outputDir, err := checkOutputDir(Cfg.GetString("OutputDir"))
		if err != nil {
			return err
		}
		return Diagnose(log, pc, filepath.Join(outputDir, "posterior.xlsx"))
	},
	DisableAutoGenTag: true,
}

// simulationConfigs unmarshals the grid and simulation configurations.
func simulationConfigs(cfg *viper.Viper) (*GridConfig, *SimulationConfig, error) {
	gc, err := gridConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	sc, err := simulationConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	return gc, sc, nil
}

// checkModel ensures that an acceptable model was specified.
func checkModel(model string) error {
	switch model {
	case abundance.SiteModel, abundance.AggregateModel, abundance.SpatialModel:
		return nil
	default:
		return fmt.Errorf("abundance: Model must be one of %q, %q, or %q but is %q",
			abundance.SiteModel, abundance.AggregateModel, abundance.SpatialModel, model)
	}
}
