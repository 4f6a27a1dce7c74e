package engine

import (
	"sort"
	"time"

	"github.com/scrypster/scopedb/pkg/types"
)

// unionFind is a parent-pointer arena over integer observation ids with
// path compression and union by size.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		size:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]] // path halving
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}

// Cluster groups observations into candidate clusters. Two observations
// are linked iff they share a normalized identity signal (email, domain,
// username, phone) or the same document URL. Name similarity alone never
// merges: the rule is conservative and precision-favoring, so distinct
// entities sharing a common name stay separate. An observation matching
// nothing forms a singleton cluster; singletons are always surfaced.
//
// The returned candidates are ordered by corroborating-connector count
// descending, ties broken by earliest fetch time then cluster id, so the
// result is reproducible for the same observation set regardless of
// connector completion order.
func Cluster(observations []types.Observation) []types.Candidate {
	if len(observations) == 0 {
		return nil
	}

	obs := make([]types.Observation, len(observations))
	copy(obs, observations)
	canonicalOrder(obs)

	uf := newUnionFind(len(obs))
	byKey := make(map[string]int)
	for i := range obs {
		for _, key := range identityKeys(obs[i]) {
			if first, ok := byKey[key]; ok {
				uf.union(first, i)
			} else {
				byKey[key] = i
			}
		}
	}

	groups := make(map[int][]int)
	for i := range obs {
		root := uf.find(i)
		groups[root] = append(groups[root], i)
	}

	candidates := make([]types.Candidate, 0, len(groups))
	for _, members := range groups {
		sort.Ints(members) // canonical order within the cluster

		clusterObs := make([]types.Observation, 0, len(members))
		urls := make([]string, 0, len(members))
		sources := make(map[string]bool)
		for _, idx := range members {
			clusterObs = append(clusterObs, obs[idx])
			urls = append(urls, obs[idx].URL)
			sources[obs[idx].Source] = true
		}

		rep := clusterObs[0]
		candidates = append(candidates, types.Candidate{
			ID:           types.ClusterID(urls),
			Title:        rep.Title,
			URL:          rep.URL,
			Sources:      len(sources),
			Observations: clusterObs,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Sources != candidates[j].Sources {
			return candidates[i].Sources > candidates[j].Sources
		}
		ti, tj := earliestFetch(candidates[i]), earliestFetch(candidates[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates
}

func earliestFetch(c types.Candidate) time.Time {
	// Observations are in canonical order, which starts with fetch time.
	return c.Observations[0].FetchedAt
}
