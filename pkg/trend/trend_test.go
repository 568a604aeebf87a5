package trend

import (
	"testing"
	"time"
)

func points(vals ...float64) []Point {
	out := make([]Point, len(vals))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range vals {
		out[i] = Point{Timestamp: base.Add(time.Duration(i) * time.Hour), Value: v}
	}
	return out
}

func TestAnalyzeFewerThanTwoPointsIsStable(t *testing.T) {
	if r := Analyze(nil); r.Direction != DirectionStable || r.Slope != 0 {
		t.Fatalf("expected stable zero-slope result for no points, got %+v", r)
	}
	if r := Analyze(points(42)); r.Direction != DirectionStable || r.First != 42 || r.Last != 42 {
		t.Fatalf("expected stable result echoing the single value, got %+v", r)
	}
}

func TestAnalyzeIncreasing(t *testing.T) {
	r := Analyze(points(90, 92, 95, 99, 105))
	if r.Direction != DirectionIncreasing {
		t.Fatalf("expected increasing direction, got %+v", r)
	}
	if r.Slope <= 0 {
		t.Fatalf("expected positive slope, got %v", r.Slope)
	}
}

func TestAnalyzeDecreasing(t *testing.T) {
	r := Analyze(points(99, 97, 94, 90, 85))
	if r.Direction != DirectionDecreasing {
		t.Fatalf("expected decreasing direction, got %+v", r)
	}
	if r.Slope >= 0 {
		t.Fatalf("expected negative slope, got %v", r.Slope)
	}
}

func TestAnalyzeStableWithinThreshold(t *testing.T) {
	r := Analyze(points(98, 98.5, 98.2, 98.8, 98.3))
	if r.Direction != DirectionStable {
		t.Fatalf("expected stable direction for a tiny percentage change, got %+v", r)
	}
}

func TestCheckThresholdsCriticalBeatsWarning(t *testing.T) {
	th := Thresholds{Low: 95, CriticalLow: 90, HasLow: true, HasCritLow: true}

	alerts := CheckThresholds("spo2", 88, th)
	if len(alerts) != 1 || alerts[0].Severity != SeverityCritical {
		t.Fatalf("expected a single critical alert, got %+v", alerts)
	}

	alerts = CheckThresholds("spo2", 93, th)
	if len(alerts) != 1 || alerts[0].Severity != SeverityWarning {
		t.Fatalf("expected a single warning alert, got %+v", alerts)
	}
}

func TestCheckThresholdsNoBreach(t *testing.T) {
	th := Thresholds{Low: 95, High: 100, HasLow: true, HasHigh: true}
	if alerts := CheckThresholds("spo2", 98, th); len(alerts) != 0 {
		t.Fatalf("expected no alerts within range, got %+v", alerts)
	}
}

func TestCheckThresholdsReportsOnlyBreachedSide(t *testing.T) {
	th := Thresholds{CriticalLow: 90, CriticalHigh: 40, HasCritLow: true, HasCritHigh: true}
	alerts := CheckThresholds("weird_metric", 20, th)
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one breach (low side), got %+v", alerts)
	}
}

func TestCompositeDeteriorationRequiresAtLeastTwoAdverse(t *testing.T) {
	trends := []VitalTrend{
		{Metric: "spo2", Result: Result{Direction: DirectionDecreasing}},
	}
	if a := CompositeDeterioration(trends); a != nil {
		t.Fatalf("expected no composite alert for a single adverse trend, got %+v", a)
	}
}

func TestCompositeDeteriorationFiresAtTwo(t *testing.T) {
	trends := []VitalTrend{
		{Metric: "spo2", Result: Result{Direction: DirectionDecreasing}},
		{Metric: "heart_rate", Result: Result{Direction: DirectionIncreasing}},
		{Metric: "respiratory_rate", Result: Result{Direction: DirectionStable}},
	}
	a := CompositeDeterioration(trends)
	if a == nil {
		t.Fatal("expected a composite deterioration alert with two adverse trends")
	}
	if a.Severity != SeverityWarning {
		t.Fatalf("expected warning severity, got %v", a.Severity)
	}
}

func TestCompositeDeteriorationIgnoresBenignDirectionOnAdverseMetric(t *testing.T) {
	trends := []VitalTrend{
		{Metric: "spo2", Result: Result{Direction: DirectionIncreasing}}, // rising spo2 is good, not adverse
		{Metric: "heart_rate", Result: Result{Direction: DirectionIncreasing}},
	}
	if a := CompositeDeterioration(trends); a != nil {
		t.Fatalf("expected no alert: only one of the two trends is actually adverse, got %+v", a)
	}
}
