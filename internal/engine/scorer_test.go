package engine

import (
	"math"
	"testing"
)

func TestConfidenceCombinesIndependentSources(t *testing.T) {
	trust := map[string]float64{"a": 0.9, "b": 0.5}
	got := Confidence(map[string]bool{"a": true, "b": true}, trust)
	if math.Abs(got-0.95) > 1e-9 {
		t.Errorf("got %v, want 0.95", got)
	}
}

func TestConfidenceSingleSourceEqualsOwnWeight(t *testing.T) {
	trust := map[string]float64{"a": 0.7}
	if got := Confidence(map[string]bool{"a": true}, trust); math.Abs(got-0.7) > 1e-9 {
		t.Errorf("got %v, want 0.7", got)
	}
}

func TestConfidenceMonotoneInCorroboration(t *testing.T) {
	trust := map[string]float64{"a": 0.6, "b": 0.4, "c": 0.3}
	one := Confidence(map[string]bool{"a": true}, trust)
	two := Confidence(map[string]bool{"a": true, "b": true}, trust)
	three := Confidence(map[string]bool{"a": true, "b": true, "c": true}, trust)

	if !(one < two && two < three) {
		t.Errorf("confidence not strictly increasing: %v, %v, %v", one, two, three)
	}
	if three >= 1 {
		t.Errorf("confidence must stay below 1, got %v", three)
	}
}

func TestConfidenceZeroWeightContributesNothing(t *testing.T) {
	trust := map[string]float64{"a": 0.8, "z": 0}
	with := Confidence(map[string]bool{"a": true, "z": true}, trust)
	without := Confidence(map[string]bool{"a": true}, trust)
	if with != without {
		t.Errorf("zero-weight source changed confidence: %v vs %v", with, without)
	}
}

func TestConfidenceNoContributors(t *testing.T) {
	if got := Confidence(nil, nil); got != 0 {
		t.Errorf("empty set: got %v, want 0", got)
	}
	if got := Confidence(map[string]bool{"z": true}, map[string]float64{"z": 0}); got != 0 {
		t.Errorf("only zero-weight: got %v, want 0", got)
	}
}

func TestConfidenceClampsWeightsAboveOne(t *testing.T) {
	got := Confidence(map[string]bool{"a": true}, map[string]float64{"a": 1.5})
	if got != 1 {
		t.Errorf("got %v, want 1", got)
	}
}
