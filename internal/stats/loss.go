// Package stats summarises per-step loss histories of training runs.
package stats

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type Summary struct {
	Count int     `json:"count"`
	First float64 `json:"first"`
	Last  float64 `json:"last"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Summarize reports the spread of a loss history. Std is the sample
// standard deviation and is zero for fewer than two values.
func Summarize(losses []float64) Summary {
	if len(losses) == 0 {
		return Summary{}
	}
	s := Summary{
		Count: len(losses),
		First: losses[0],
		Last:  losses[len(losses)-1],
		Min:   floats.Min(losses),
		Max:   floats.Max(losses),
	}
	if len(losses) < 2 {
		s.Mean = losses[0]
		return s
	}
	s.Mean, s.Std = stat.MeanStdDev(losses, nil)
	return s
}

type PlotPoint struct {
	Step  int     `json:"step"`
	Value float64 `json:"value"`
}

// LossCurve averages consecutive windows of bucket steps. Each point is
// labelled with the last step of its window; a short final window is kept.
func LossCurve(losses []float64, bucket int) []PlotPoint {
	if bucket <= 0 {
		bucket = 1
	}
	points := make([]PlotPoint, 0, (len(losses)+bucket-1)/bucket)
	for start := 0; start < len(losses); start += bucket {
		end := min(start+bucket, len(losses))
		points = append(points, PlotPoint{Step: end, Value: stat.Mean(losses[start:end], nil)})
	}
	return points
}

// AverageCurve averages several loss histories step by step. Shorter
// histories stop contributing once exhausted.
func AverageCurve(lists [][]float64) []PlotPoint {
	longest := 0
	for _, list := range lists {
		longest = max(longest, len(list))
	}
	points := make([]PlotPoint, 0, longest)
	values := make([]float64, 0, len(lists))
	for step := 0; step < longest; step++ {
		values = values[:0]
		for _, list := range lists {
			if step < len(list) {
				values = append(values, list[step])
			}
		}
		points = append(points, PlotPoint{Step: step + 1, Value: stat.Mean(values, nil)})
	}
	return points
}
