package engine

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/scrypster/scopedb/pkg/types"
)

var testTrust = map[string]float64{
	"wikipedia": 0.8,
	"github":    0.7,
	"rdap":      0.9,
}

func mergeQuery() types.Query {
	return types.Query{Text: "jane doe", Type: types.TypePerson}
}

func TestMergeDeduplicatesNormalizedSignals(t *testing.T) {
	cluster := Cluster([]types.Observation{
		obsAt("wikipedia", "https://example.com/a", 0,
			map[types.SignalKind][]string{types.SignalEmails: {"Jane@Example.com", "jane@example.com"}}),
		obsAt("github", "https://example.com/b", 1,
			map[types.SignalKind][]string{types.SignalEmails: {"JANE@EXAMPLE.COM"}}),
	})[0]

	p := Merge(mergeQuery(), cluster, testTrust)

	if want := []string{"jane@example.com"}; !reflect.DeepEqual(p.Signals[types.SignalEmails], want) {
		t.Errorf("emails: got %v, want %v", p.Signals[types.SignalEmails], want)
	}
	// Both observations corroborated the email, so both URLs appear as
	// provenance even though the value was deduplicated.
	if len(p.Sources) != 2 {
		t.Fatalf("sources: got %d, want 2", len(p.Sources))
	}
	if p.Sources[0].URL != "https://example.com/a" || p.Sources[1].URL != "https://example.com/b" {
		t.Errorf("sources out of canonical order: %+v", p.Sources)
	}
}

func TestMergeScalarResolutionByTrust(t *testing.T) {
	obsA := obsAt("github", "https://example.com/gh", 5, nil)
	obsA.Title = "jdoe"
	obsA.Summary = "Developer profile"
	obsB := obsAt("wikipedia", "https://example.com/wiki", 0, nil)
	obsB.Title = "Jane Doe"
	obsB.Summary = "Jane Doe is a researcher."

	// Link them via URL-less shared email signal.
	shared := map[types.SignalKind][]string{types.SignalEmails: {"jane@example.com"}}
	obsA.Signals = shared
	obsB.Signals = shared

	cluster := Cluster([]types.Observation{obsA, obsB})[0]
	p := Merge(mergeQuery(), cluster, testTrust)

	// wikipedia (0.8) outranks github (0.7) despite the older fetch.
	if p.CanonicalName != "Jane Doe" {
		t.Errorf("CanonicalName: got %q, want %q", p.CanonicalName, "Jane Doe")
	}
	if p.Description != "Jane Doe is a researcher." {
		t.Errorf("Description: got %q", p.Description)
	}
}

func TestMergeScalarTieBrokenByRecency(t *testing.T) {
	trust := map[string]float64{"a": 0.5, "b": 0.5}

	older := obsAt("a", "https://example.com/1", 0, nil)
	older.Title = "Old Title"
	newer := obsAt("b", "https://example.com/2", 9, nil)
	newer.Title = "New Title"
	shared := map[types.SignalKind][]string{types.SignalEmails: {"x@example.com"}}
	older.Signals = shared
	newer.Signals = shared

	cluster := Cluster([]types.Observation{older, newer})[0]
	p := Merge(mergeQuery(), cluster, trust)

	if p.CanonicalName != "New Title" {
		t.Errorf("CanonicalName: got %q, want %q", p.CanonicalName, "New Title")
	}
}

func TestMergeConfidence(t *testing.T) {
	cluster := Cluster([]types.Observation{
		obsAt("rdap", "https://example.com/r", 0,
			map[types.SignalKind][]string{types.SignalDomains: {"example.com"}}),
		obsAt("wikipedia", "https://example.com/w", 1,
			map[types.SignalKind][]string{types.SignalDomains: {"example.com"}}),
	})[0]

	p := Merge(mergeQuery(), cluster, map[string]float64{"rdap": 0.9, "wikipedia": 0.5})

	// 1 - (1-0.9)(1-0.5) = 0.95
	if diff := p.Confidence - 0.95; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Confidence: got %v, want 0.95", p.Confidence)
	}
}

func TestMergeEventsDeduplicatedAndSorted(t *testing.T) {
	bio := "On 12 Mar 2020, Jane Doe founded Acme Corp in Sydney."
	obsA := obsAt("wikipedia", "https://example.com/a", 0, nil)
	obsA.Summary = bio + " On 1 Jan 2018, Jane Doe visited Acme Labs in Berlin."
	obsB := obsAt("github", "https://example.com/b", 1, nil)
	obsB.Summary = bio
	shared := map[types.SignalKind][]string{types.SignalEmails: {"jane@example.com"}}
	obsA.Signals = shared
	obsB.Signals = shared

	cluster := Cluster([]types.Observation{obsA, obsB})[0]
	p := Merge(mergeQuery(), cluster, testTrust)

	// Events carry their source URL, so the same sentence seen at two URLs
	// stays distinct; ordering is by date.
	if len(p.Events) != 3 {
		t.Fatalf("events: got %d, want 3: %+v", len(p.Events), p.Events)
	}
	if p.Events[0].When != "2018-01-01" {
		t.Errorf("events not sorted by date: %+v", p.Events)
	}
}

func TestMergeOrderIndependence(t *testing.T) {
	observations := []types.Observation{
		obsAt("wikipedia", "https://example.com/a", 0, map[types.SignalKind][]string{
			types.SignalEmails:  {"jane@example.com"},
			types.SignalDomains: {"example.com"},
		}),
		obsAt("github", "https://example.com/b", 1, map[types.SignalKind][]string{
			types.SignalEmails:    {"jane@example.com"},
			types.SignalUsernames: {"janedoe"},
		}),
		obsAt("rdap", "https://example.com/c", 2, map[types.SignalKind][]string{
			types.SignalDomains: {"www.example.com"},
		}),
	}

	reference := Merge(mergeQuery(), Cluster(observations)[0], testTrust)

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 5; trial++ {
		shuffled := make([]types.Observation, len(observations))
		copy(shuffled, observations)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		p := Merge(mergeQuery(), Cluster(shuffled)[0], testTrust)
		if !reflect.DeepEqual(p, reference) {
			t.Fatalf("trial %d: merge result changed with input order:\n got %+v\nwant %+v", trial, p, reference)
		}
	}
}

func TestMergeEmptySignalValuesSkipped(t *testing.T) {
	cluster := Cluster([]types.Observation{
		obsAt("wikipedia", "https://example.com/a", 0,
			map[types.SignalKind][]string{types.SignalEmails: {"  ", "jane@example.com"}}),
	})[0]

	p := Merge(mergeQuery(), cluster, testTrust)
	if want := []string{"jane@example.com"}; !reflect.DeepEqual(p.Signals[types.SignalEmails], want) {
		t.Errorf("emails: got %v, want %v", p.Signals[types.SignalEmails], want)
	}
}

func TestMergeSourceTimestampsPreserved(t *testing.T) {
	obs := obsAt("wikipedia", "https://example.com/a", 0,
		map[types.SignalKind][]string{types.SignalEmails: {"jane@example.com"}})
	cluster := Cluster([]types.Observation{obs})[0]

	p := Merge(mergeQuery(), cluster, testTrust)
	if len(p.Sources) != 1 {
		t.Fatalf("sources: got %d, want 1", len(p.Sources))
	}
	want := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	if !p.Sources[0].FetchedAt.Equal(want) {
		t.Errorf("FetchedAt: got %v, want %v", p.Sources[0].FetchedAt, want)
	}
}
