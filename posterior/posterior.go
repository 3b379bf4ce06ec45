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

// Package posterior holds posterior samples returned by an external
// inference engine and computes convergence diagnostics for them.
//
// Samples are indexed by chain, parameter, and iteration.
package posterior

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Samples holds posterior samples for one or more chains.
type Samples struct {
	// Params holds the names of the monitored parameters.
	Params []string

	chains [][][]float64 // [chain][param][iteration]
	index  map[string]int
}

// New creates an empty set of samples for the given parameters.
func New(params ...string) *Samples {
	s := &Samples{Params: append([]string(nil), params...)}
	s.index = make(map[string]int, len(params))
	for i, p := range params {
		s.index[p] = i
	}
	return s
}

// AddChain adds a chain. values is indexed [param][iteration] and every
// chain must have the same number of iterations.
func (s *Samples) AddChain(values [][]float64) error {
	if len(values) != len(s.Params) {
		return fmt.Errorf("posterior: chain has %d parameters but there should be %d", len(values), len(s.Params))
	}
	n := -1
	if len(s.chains) > 0 {
		n = s.NumIter()
	}
	for i, v := range values {
		if n < 0 {
			n = len(v)
		}
		if len(v) != n {
			return fmt.Errorf("posterior: parameter %s has %d iterations but there should be %d", s.Params[i], len(v), n)
		}
	}
	s.chains = append(s.chains, values)
	return nil
}

// ReadChain reads a chain from CSV, with one column per parameter and one
// row per iteration. The header row must name the parameters; if the
// receiver has no parameters yet they are taken from the header.
func (s *Samples) ReadChain(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("posterior: reading header: %v", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	// An empty receiver takes its parameters from the first header, and is
	// only updated once the chain has been read.
	dst := s
	if len(s.Params) == 0 && len(s.chains) == 0 {
		dst = New(header...)
	}
	cols := make([]int, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		j, ok := dst.index[h]
		if !ok {
			return fmt.Errorf("posterior: unknown parameter %s", h)
		}
		if seen[h] {
			return fmt.Errorf("posterior: parameter %s appears more than once", h)
		}
		seen[h] = true
		cols[i] = j
	}
	if len(header) != len(dst.Params) {
		return fmt.Errorf("posterior: chain has %d columns but there are %d parameters", len(header), len(dst.Params))
	}
	values := make([][]float64, len(dst.Params))
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("posterior: line %d: %v", line, err)
		}
		for i, v := range rec {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("posterior: line %d, parameter %s: %v", line, header[i], err)
			}
			values[cols[i]] = append(values[cols[i]], f)
		}
	}
	if err := dst.AddChain(values); err != nil {
		return err
	}
	if dst != s {
		*s = *dst
	}
	return nil
}

// NumChains returns the number of chains.
func (s *Samples) NumChains() int { return len(s.chains) }

// NumIter returns the number of iterations in each chain.
func (s *Samples) NumIter() int {
	if len(s.chains) == 0 || len(s.chains[0]) == 0 {
		return 0
	}
	return len(s.chains[0][0])
}

// At returns the sample of parameter param at the given chain and iteration.
func (s *Samples) At(chain, param, iter int) float64 {
	return s.chains[chain][param][iter]
}

// Chain returns the samples of the named parameter in chain c.
func (s *Samples) Chain(c int, param string) ([]float64, error) {
	i, ok := s.index[param]
	if !ok {
		return nil, fmt.Errorf("posterior: unknown parameter %s", param)
	}
	if c < 0 || c >= len(s.chains) {
		return nil, fmt.Errorf("posterior: chain %d out of range [0, %d)", c, len(s.chains))
	}
	return s.chains[c][i], nil
}

// pooled returns all samples of param from all chains.
func (s *Samples) pooled(param string) ([]float64, error) {
	var o []float64
	for c := range s.chains {
		v, err := s.Chain(c, param)
		if err != nil {
			return nil, err
		}
		o = append(o, v...)
	}
	return o, nil
}

// varianceComponents returns the mean within-chain variance W and the
// between-chain variance B of param.
func (s *Samples) varianceComponents(param string) (w, b float64, err error) {
	m, n := s.NumChains(), s.NumIter()
	if m < 2 || n < 2 {
		return 0, 0, fmt.Errorf("posterior: need at least 2 chains of 2 iterations; have %d of %d", m, n)
	}
	means := make([]float64, m)
	for c := 0; c < m; c++ {
		v, err := s.Chain(c, param)
		if err != nil {
			return 0, 0, err
		}
		var variance float64
		means[c], variance = stat.MeanVariance(v, nil)
		w += variance
	}
	w /= float64(m)
	b = float64(n) * stat.Variance(means, nil)
	return w, b, nil
}

// RHat returns the Gelman-Rubin potential scale reduction factor of param.
// Values close to 1 indicate that the chains have mixed.
func (s *Samples) RHat(param string) (float64, error) {
	w, b, err := s.varianceComponents(param)
	if err != nil {
		return math.NaN(), err
	}
	if w == 0 {
		if b == 0 {
			return 1, nil
		}
		return math.Inf(1), nil
	}
	n := float64(s.NumIter())
	varHat := (n-1)/n*w + b/n
	return math.Sqrt(varHat / w), nil
}

// autocovariance returns the autocovariance of x at lag t.
func autocovariance(x []float64, mean float64, t int) float64 {
	var sum float64
	for i := 0; i+t < len(x); i++ {
		sum += (x[i] - mean) * (x[i+t] - mean)
	}
	return sum / float64(len(x))
}

// ESS returns the effective sample size of param across all chains, using
// Geyer's initial positive sequence to truncate the autocorrelation sum:
// pairs (rho[2k] + rho[2k+1]) starting at lag 0 are summed until one is
// negative, and tau = -1 + 2*sum.
func (s *Samples) ESS(param string) (float64, error) {
	w, b, err := s.varianceComponents(param)
	if err != nil {
		return math.NaN(), err
	}
	m, n := s.NumChains(), s.NumIter()
	total := float64(m * n)
	varHat := float64(n-1)/float64(n)*w + b/float64(n)
	if varHat == 0 {
		return total, nil
	}
	chains := make([][]float64, m)
	means := make([]float64, m)
	for c := range chains {
		chains[c], _ = s.Chain(c, param)
		means[c] = stat.Mean(chains[c], nil)
	}
	rho := func(t int) float64 {
		if t == 0 {
			return 1
		}
		var acov float64
		for c, x := range chains {
			acov += autocovariance(x, means[c], t)
		}
		acov /= float64(m)
		return 1 - (w-acov)/varHat
	}
	sum := 0.0
	for t := 0; t+1 < n; t += 2 {
		pair := rho(t) + rho(t+1)
		if pair < 0 {
			break
		}
		sum += pair
	}
	tau := -1 + 2*sum
	if tau < 1/math.Log10(total) {
		tau = 1 / math.Log10(total)
	}
	return total / tau, nil
}

// Summary holds summary statistics of the pooled samples of a parameter.
type Summary struct {
	Param              string
	Mean, SD           float64
	Q025, Median, Q975 float64
	RHat, ESS          float64
}

// Summarize returns summary statistics for every parameter, in parameter
// order. RHat and ESS are NaN when fewer than two chains are available.
func (s *Samples) Summarize() ([]Summary, error) {
	o := make([]Summary, len(s.Params))
	for i, p := range s.Params {
		x, err := s.pooled(p)
		if err != nil {
			return nil, err
		}
		if len(x) == 0 {
			return nil, fmt.Errorf("posterior: no samples for parameter %s", p)
		}
		sorted := append([]float64(nil), x...)
		sort.Float64s(sorted)
		mean, sd := stat.MeanStdDev(x, nil)
		if len(x) < 2 {
			sd = 0
		}
		o[i] = Summary{
			Param:  p,
			Mean:   mean,
			SD:     sd,
			Q025:   stat.Quantile(0.025, stat.Empirical, sorted, nil),
			Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
			Q975:   stat.Quantile(0.975, stat.Empirical, sorted, nil),
			RHat:   math.NaN(),
			ESS:    math.NaN(),
		}
		if s.NumChains() >= 2 && s.NumIter() >= 2 {
			if o[i].RHat, err = s.RHat(p); err != nil {
				return nil, err
			}
			if o[i].ESS, err = s.ESS(p); err != nil {
				return nil, err
			}
		}
	}
	return o, nil
}

// Thin returns a copy of the receiver that drops the first burnin
// iterations of every chain and keeps every step-th iteration after that.
func (s *Samples) Thin(burnin, step int) (*Samples, error) {
	if burnin < 0 || step < 1 || burnin >= s.NumIter() {
		return nil, fmt.Errorf("posterior: invalid burn-in %d or step %d for %d iterations", burnin, step, s.NumIter())
	}
	o := New(s.Params...)
	for _, chain := range s.chains {
		values := make([][]float64, len(chain))
		for p, v := range chain {
			for i := burnin; i < len(v); i += step {
				values[p] = append(values[p], v[i])
			}
		}
		if err := o.AddChain(values); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// MaxRHat returns the largest R-hat over all parameters and the name of
// the parameter it belongs to.
func (s *Samples) MaxRHat() (string, float64, error) {
	r := make([]float64, len(s.Params))
	for i, p := range s.Params {
		var err error
		if r[i], err = s.RHat(p); err != nil {
			return "", math.NaN(), err
		}
	}
	if len(r) == 0 {
		return "", math.NaN(), fmt.Errorf("posterior: no parameters")
	}
	i := floats.MaxIdx(r)
	return s.Params[i], r[i], nil
}
