package stats

import (
	"math"
	"testing"
)

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{4, 2, 6, 8})
	if s.Count != 4 || s.First != 4 || s.Last != 8 || s.Min != 2 || s.Max != 8 || s.Mean != 5 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	want := math.Sqrt(20.0 / 3.0)
	if math.Abs(s.Std-want) > 1e-12 {
		t.Fatalf("unexpected std: got=%f want=%f", s.Std, want)
	}

	if s := Summarize(nil); s.Count != 0 {
		t.Fatalf("expected empty summary, got %+v", s)
	}
	if s := Summarize([]float64{3}); s.Mean != 3 || s.Std != 0 || s.Min != 3 || s.Max != 3 {
		t.Fatalf("unexpected single-value summary: %+v", s)
	}
}

func TestLossCurve(t *testing.T) {
	points := LossCurve([]float64{1, 3, 5, 7, 9}, 2)
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d (%+v)", len(points), points)
	}
	if points[0].Step != 2 || points[1].Step != 4 || points[2].Step != 5 {
		t.Fatalf("unexpected steps: %+v", points)
	}
	if points[0].Value != 2 || points[1].Value != 6 || points[2].Value != 9 {
		t.Fatalf("unexpected values: %+v", points)
	}
	if got := LossCurve([]float64{1, 2}, 0); len(got) != 2 {
		t.Fatalf("non-positive bucket should default to 1: %+v", got)
	}
}

func TestAverageCurve(t *testing.T) {
	points := AverageCurve([][]float64{
		{1, 2, 3},
		{3, 4},
		{},
	})
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d (%+v)", len(points), points)
	}
	if points[0].Value != 2 || points[1].Value != 3 || points[2].Value != 3 {
		t.Fatalf("unexpected averages: %+v", points)
	}
	if points[2].Step != 3 {
		t.Fatalf("unexpected step labels: %+v", points)
	}
}
