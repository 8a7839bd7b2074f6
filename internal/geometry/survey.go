package geometry

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// Station is one survey point.
type Station struct {
	MD  float64
	TVD float64
}

// Survey samples TVD by linear interpolation between stations. Below the
// deepest station the last interval's slope is continued.
type Survey struct {
	md  []float64
	tvd []float64
	fn  interp.PiecewiseLinear
}

// NewSurvey builds a sampler from stations. A station at the surface is
// added if missing. Stations must have strictly increasing MD and
// non-decreasing TVD not exceeding MD.
func NewSurvey(stations []Station) (*Survey, error) {
	st := append([]Station(nil), stations...)
	sort.Slice(st, func(i, j int) bool { return st[i].MD < st[j].MD })
	if len(st) == 0 || st[0].MD > 0 {
		st = append([]Station{{MD: 0, TVD: 0}}, st...)
	}
	if len(st) == 1 {
		st = append(st, Station{MD: 1, TVD: 1})
	}

	s := &Survey{}
	for i, p := range st {
		if i > 0 {
			if p.MD <= st[i-1].MD {
				return nil, fmt.Errorf("survey station %d: MD %.2f not increasing", i, p.MD)
			}
			if p.TVD < st[i-1].TVD {
				return nil, fmt.Errorf("survey station %d: TVD %.2f decreases", i, p.TVD)
			}
			if p.TVD-st[i-1].TVD > p.MD-st[i-1].MD+1e-6 {
				return nil, fmt.Errorf("survey station %d: TVD change exceeds MD change", i)
			}
		}
		s.md = append(s.md, p.MD)
		s.tvd = append(s.tvd, p.TVD)
	}

	if err := s.fn.Fit(s.md, s.tvd); err != nil {
		return nil, fmt.Errorf("fitting survey: %w", err)
	}
	return s, nil
}

// TVD returns the true vertical depth at md.
func (s *Survey) TVD(md float64) float64 {
	if md <= 0 {
		return 0
	}
	n := len(s.md)
	if md > s.md[n-1] {
		slope := (s.tvd[n-1] - s.tvd[n-2]) / (s.md[n-1] - s.md[n-2])
		return s.tvd[n-1] + (md-s.md[n-1])*slope
	}
	return s.fn.Predict(md)
}
