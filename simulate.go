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
	"math"
	"math/rand/v2"

	"github.com/Knetic/govaluate"
	"gonum.org/v1/gonum/stat/distuv"
)

// newSource returns a deterministic random source for the given seed.
func newSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x2545f4914f6cdd1d)
}

func oneArg(name string, args []interface{}) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("abundance: got %d arguments for function '%s', but needs 1", len(args), name)
	}
	v, ok := args[0].(float64)
	if !ok {
		return 0, fmt.Errorf("abundance: argument to '%s' must be a number; have %T", name, args[0])
	}
	return v, nil
}

func mathFunc(name string, f func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		v, err := oneArg(name, args)
		if err != nil {
			return nil, err
		}
		return f(v), nil
	}
}

// covariateFunctions returns the functions available in covariate
// expressions. normal(sd) draws mean-zero Gaussian noise from src.
func covariateFunctions(src rand.Source) map[string]govaluate.ExpressionFunction {
	return map[string]govaluate.ExpressionFunction{
		"exp":  mathFunc("exp", math.Exp),
		"log":  mathFunc("log", math.Log),
		"sqrt": mathFunc("sqrt", math.Sqrt),
		"sin":  mathFunc("sin", math.Sin),
		"cos":  mathFunc("cos", math.Cos),
		"abs":  mathFunc("abs", math.Abs),
		"normal": func(args ...interface{}) (interface{}, error) {
			sd, err := oneArg("normal", args)
			if err != nil {
				return nil, err
			}
			if sd == 0 {
				return 0.0, nil
			}
			if !(sd > 0) {
				return nil, fmt.Errorf("abundance: normal(%g): standard deviation must be >= 0", sd)
			}
			return distuv.Normal{Mu: 0, Sigma: sd, Src: src}.Rand(), nil
		},
	}
}

// CovariateExpression defines a covariate in terms of an expression.
// Expressions may refer to the cell centroid (x, y), the cell
// indices (row, col), and any covariate defined earlier, and may call
// exp, log, sqrt, sin, cos, abs, and normal(sd).
type CovariateExpression struct {
	Name       string
	Expression string
}

// AddCovariates evaluates each expression for every cell in grid and adds
// the results as covariates, in order. seed seeds the normal() noise.
func (grid *GridDef) AddCovariates(seed uint64, exprs ...CovariateExpression) error {
	src := newSource(seed)
	funcs := covariateFunctions(src)
	for _, ce := range exprs {
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(ce.Expression, funcs)
		if err != nil {
			return fmt.Errorf("abundance: parsing covariate %s: %v", ce.Name, err)
		}
		values := make([]float64, len(grid.Cells))
		params := make(map[string]interface{}, 4+len(grid.CovariateNames))
		for i, c := range grid.Cells {
			p := c.Centroid()
			params["x"], params["y"] = p.X, p.Y
			params["row"], params["col"] = float64(c.Row), float64(c.Col)
			for k, name := range grid.CovariateNames {
				params[name] = c.Covariates[k]
			}
			v, err := expr.Evaluate(params)
			if err != nil {
				return fmt.Errorf("abundance: evaluating covariate %s in cell %d: %v", ce.Name, c.ID, err)
			}
			f, ok := v.(float64)
			if !ok {
				return fmt.Errorf("abundance: covariate %s evaluates to %T, not a number", ce.Name, v)
			}
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return fmt.Errorf("abundance: covariate %s is %g in cell %d", ce.Name, f, c.ID)
			}
			values[i] = f
		}
		if err := grid.SetCovariate(ce.Name, values); err != nil {
			return err
		}
	}
	return nil
}

// Intensity holds the coefficients of a log-linear Poisson intensity:
// log λ = Beta0 + Σ Beta[k]·covariate[k], per unit area.
type Intensity struct {
	Beta0 float64
	Beta  []float64
}

// CellRates returns exp(Beta0 + X·Beta) for n cells, where x[k]
// holds the values of covariate k. Rates are per unit area.
func (in Intensity) CellRates(n int, x [][]float64) ([]float64, error) {
	if len(x) != len(in.Beta) {
		return nil, fmt.Errorf("abundance: intensity has %d coefficients but there are %d covariates", len(in.Beta), len(x))
	}
	o := make([]float64, n)
	for i := range o {
		eta := in.Beta0
		for k, b := range in.Beta {
			if len(x[k]) != n {
				return nil, fmt.Errorf("abundance: covariate %d has %d values but there are %d cells", k, len(x[k]), n)
			}
			eta += b * x[k][i]
		}
		o[i] = math.Exp(eta)
	}
	return o, nil
}

// SimulateAbundance sets the rate of every cell from the intensity and the
// cell area, and draws the ground-truth count of each cell from a Poisson
// distribution with that rate. It returns the total simulated abundance.
func (grid *GridDef) SimulateAbundance(in Intensity, seed uint64) (int, error) {
	if len(in.Beta) != len(grid.CovariateNames) {
		return 0, fmt.Errorf("abundance: intensity has %d coefficients but grid has %d covariates", len(in.Beta), len(grid.CovariateNames))
	}
	src := newSource(seed)
	var total int
	for _, c := range grid.Cells {
		eta := in.Beta0
		for k, b := range in.Beta {
			eta += b * c.Covariates[k]
		}
		rate := math.Exp(eta) * c.Area()
		if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
			return 0, fmt.Errorf("abundance: invalid rate %g in cell %d", rate, c.ID)
		}
		c.Rate = rate
		c.Abundance = 0
		if rate > 0 {
			c.Abundance = int(distuv.Poisson{Lambda: rate, Src: src}.Rand())
		}
		total += c.Abundance
	}
	return total, nil
}
