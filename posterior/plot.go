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

package posterior

import (
	"fmt"

	"github.com/GaryBoone/GoStats/stats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// TracePlot draws the samples of param against iteration, one line per
// chain, and saves the figure to fileName. The image format is chosen from
// the file extension.
func (s *Samples) TracePlot(param, fileName string) error {
	if s.NumChains() == 0 {
		return fmt.Errorf("posterior: no chains to plot")
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s trace", param)
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = param

	var all []float64
	for c := 0; c < s.NumChains(); c++ {
		v, err := s.Chain(c, param)
		if err != nil {
			return err
		}
		all = append(all, v...)
		xy := make(plotter.XYs, len(v))
		for i, val := range v {
			xy[i].X = float64(i + 1)
			xy[i].Y = val
		}
		l, err := plotter.NewLine(xy)
		if err != nil {
			return fmt.Errorf("posterior: plotting chain %d: %v", c, err)
		}
		l.Color = plotutil.Color(c)
		l.Width = vg.Points(0.5)
		p.Add(l)
		p.Legend.Add(fmt.Sprintf("chain %d", c+1), l)
	}
	if len(all) > 0 {
		p.Y.Min, p.Y.Max = stats.StatsMin(all), stats.StatsMax(all)
	}
	if err := p.Save(6*vg.Inch, 3*vg.Inch, fileName); err != nil {
		return fmt.Errorf("posterior: saving trace plot: %v", err)
	}
	return nil
}
