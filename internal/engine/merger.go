package engine

import (
	"sort"

	"github.com/scrypster/scopedb/pkg/types"
)

// Merge folds one candidate cluster into an entity profile. For each signal
// kind it unions the normalized values of every member observation,
// deduplicated in first-seen canonical order. Scalar fields (canonical
// name, description) are resolved by trust weight, then recency, then
// source name. The sources list keeps every observation that contributed a
// signal or a scalar field; provenance is never dropped.
//
// Because the cluster's observations are already in canonical order, the
// merge result depends only on the observation set, not on the order
// connectors completed: the operation is commutative and associative over
// runs.
func Merge(q types.Query, cluster types.Candidate, trust map[string]float64) *types.Profile {
	profile := &types.Profile{
		Query:   q.Text,
		Type:    q.Type,
		Signals: make(map[types.SignalKind][]string, len(types.SignalKinds)),
	}

	contributed := make([]bool, len(cluster.Observations))

	for _, kind := range types.SignalKinds {
		seen := make(map[string]bool)
		var values []string
		for i, obs := range cluster.Observations {
			for _, raw := range obs.Signals[kind] {
				v := NormalizeSignal(kind, raw)
				if v == "" || seen[v] {
					if v != "" {
						contributed[i] = true // corroboration still counts as provenance
					}
					continue
				}
				seen[v] = true
				values = append(values, v)
				contributed[i] = true
			}
		}
		profile.Signals[kind] = values
	}

	// Scalar fields: highest trust weight wins, ties by most recent fetch,
	// then source name for a total order.
	better := func(a, b types.Observation) bool {
		wa, wb := trust[a.Source], trust[b.Source]
		if wa != wb {
			return wa > wb
		}
		if !a.FetchedAt.Equal(b.FetchedAt) {
			return a.FetchedAt.After(b.FetchedAt)
		}
		return a.Source < b.Source
	}

	var nameIdx, descIdx = -1, -1
	for i, obs := range cluster.Observations {
		if obs.Title != "" && (nameIdx < 0 || better(obs, cluster.Observations[nameIdx])) {
			nameIdx = i
		}
		if obs.Summary != "" && (descIdx < 0 || better(obs, cluster.Observations[descIdx])) {
			descIdx = i
		}
	}
	if nameIdx >= 0 {
		profile.CanonicalName = cluster.Observations[nameIdx].Title
		contributed[nameIdx] = true
	}
	if descIdx >= 0 {
		profile.Description = cluster.Observations[descIdx].Summary
		contributed[descIdx] = true
	}

	// Timeline events from member text, deduplicated and deterministically
	// ordered.
	eventSeen := make(map[types.Event]bool)
	for _, obs := range cluster.Observations {
		for _, ev := range ExtractEvents(obs.Title+"\n"+obs.Summary, obs.URL) {
			if !eventSeen[ev] {
				eventSeen[ev] = true
				profile.Events = append(profile.Events, ev)
			}
		}
	}
	sort.Slice(profile.Events, func(i, j int) bool {
		a, b := profile.Events[i], profile.Events[j]
		if a.When != b.When {
			return a.When < b.When
		}
		if a.Who != b.Who {
			return a.Who < b.Who
		}
		if a.What != b.What {
			return a.What < b.What
		}
		return a.Source < b.Source
	})

	// Sources in first-seen canonical order, one entry per contributing
	// observation.
	urlSeen := make(map[string]bool)
	contributingSources := make(map[string]bool)
	for i, obs := range cluster.Observations {
		if !contributed[i] {
			continue
		}
		contributingSources[obs.Source] = true
		if obs.URL == "" || urlSeen[obs.URL] {
			continue
		}
		urlSeen[obs.URL] = true
		profile.Sources = append(profile.Sources, types.SourceRef{
			URL:       obs.URL,
			FetchedAt: obs.FetchedAt,
		})
	}

	profile.Confidence = Confidence(contributingSources, trust)
	return profile
}
