// Package indicators derives cross-city and city-level liveability
// indicators from aggregated hex layers.
package indicators

import (
	"math"
	"slices"

	"github.com/sells-group/indicators-cli/internal/hexagg"
)

// CityIndicators is the study-region level summary of a hex layer.
type CityIndicators struct {
	StudyRegion string                    `json:"study_region"`
	Columns     []string                  `json:"columns"`
	Measures    map[string]hexagg.Measure `json:"-"`
}

// Value returns the named measure, or Null.
func (c CityIndicators) Value(name string) hexagg.Measure {
	return c.Measures[name]
}

func (c CityIndicators) clone() CityIndicators {
	out := CityIndicators{
		StudyRegion: c.StudyRegion,
		Columns:     slices.Clone(c.Columns),
		Measures:    make(map[string]hexagg.Measure, len(c.Measures)),
	}
	for k, v := range c.Measures {
		out.Measures[k] = v
	}
	return out
}

func (c *CityIndicators) set(name string, v hexagg.Measure) {
	if !slices.Contains(c.Columns, name) {
		c.Columns = append(c.Columns, name)
	}
	c.Measures[name] = v
}

// meanStd returns the mean and sample standard deviation of the valid values.
// ok is false when fewer than two values are present.
func meanStd(values []hexagg.Measure) (mean, std float64, ok bool) {
	var sum float64
	var n int
	for _, v := range values {
		if v.Valid {
			sum += v.Value
			n++
		}
	}
	if n < 2 {
		return 0, 0, false
	}
	mean = sum / float64(n)

	var sq float64
	for _, v := range values {
		if v.Valid {
			d := v.Value - mean
			sq += d * d
		}
	}
	std = math.Sqrt(sq / float64(n-1))
	return mean, std, true
}

func zscore(v hexagg.Measure, mean, std float64, ok bool) hexagg.Measure {
	if !ok || !v.Valid || std == 0 {
		return hexagg.Null
	}
	return hexagg.Some((v.Value - mean) / std)
}

// rowSum adds the valid values; an all-null row sums to zero.
func rowSum(values ...hexagg.Measure) hexagg.Measure {
	var s float64
	for _, v := range values {
		if v.Valid {
			s += v.Value
		}
	}
	return hexagg.Some(s)
}
