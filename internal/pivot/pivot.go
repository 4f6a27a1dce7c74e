// Package pivot executes a YAML-defined graph of lawful entity pivots.
// Each edge maps one entity type to another through a named transform;
// execution walks the graph breadth-first from a starting value and records
// the edge path taken to each discovered entity. Traversal is deterministic
// for a fixed graph and transform set.
package pivot

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Edge is one pivot rule: values of FromType produce values of ToType via
// the transform named by Pattern. Disabled edges stay in the file for
// documentation but are never traversed.
type Edge struct {
	FromType  string  `yaml:"from_type" json:"from_type"`
	ToType    string  `yaml:"to_type" json:"to_type"`
	Pattern   string  `yaml:"pattern" json:"pattern"`
	TosNotes  string  `yaml:"tos_notes" json:"tos_notes,omitempty"`
	RiskScore float64 `yaml:"risk_score" json:"risk_score"`
	Enabled   bool    `yaml:"enabled" json:"enabled"`
}

// Graph is the full pivot edge list as loaded from YAML.
type Graph struct {
	Edges []Edge `yaml:"edges"`
}

// DefaultGraph returns the built-in pivot graph used when no file is
// configured: certificate-transparency subdomain discovery, DNS ASN lookup,
// and reverse hosting.
func DefaultGraph() *Graph {
	return &Graph{Edges: []Edge{
		{FromType: "domain", ToType: "subdomain", Pattern: "ct_subdomains",
			TosNotes: "public CT logs", RiskScore: 0.1, Enabled: true},
		{FromType: "subdomain", ToType: "asn", Pattern: "dns_asn",
			TosNotes: "public DNS", RiskScore: 0.1, Enabled: true},
		{FromType: "asn", ToType: "domain", Pattern: "hosted_domains",
			TosNotes: "public BGP data", RiskScore: 0.2, Enabled: true},
	}}
}

// LoadGraph reads a pivot graph from a YAML file. A missing path falls back
// to the built-in default graph.
func LoadGraph(path string) (*Graph, error) {
	if path == "" {
		return DefaultGraph(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultGraph(), nil
		}
		return nil, fmt.Errorf("pivot: failed to read graph: %w", err)
	}
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("pivot: failed to parse graph: %w", err)
	}
	return &g, nil
}

// Transform expands one value into zero or more pivoted values.
type Transform func(value string) []string

// Result is one discovered entity plus the edge path that produced it.
type Result struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Path  []Edge `json:"path"`
}

// Executor walks a pivot graph with a registered transform set.
type Executor struct {
	graph      *Graph
	transforms map[string]Transform
}

// NewExecutor creates an executor over graph with the built-in transform
// stubs registered. Real transforms are registered over the stubs by name.
func NewExecutor(graph *Graph) *Executor {
	e := &Executor{
		graph:      graph,
		transforms: make(map[string]Transform),
	}
	e.RegisterTransform("ct_subdomains", func(v string) []string { return []string{"sub." + v} })
	e.RegisterTransform("dns_asn", func(v string) []string { return []string{"AS64500"} })
	e.RegisterTransform("hosted_domains", func(v string) []string { return []string{"example.net"} })
	return e
}

// RegisterTransform binds a transform implementation to a pattern name,
// replacing any previous binding.
func (e *Executor) RegisterTransform(pattern string, t Transform) {
	e.transforms[pattern] = t
}

type frontier struct {
	etype string
	value string
	path  []Edge
}

// Execute pivots breadth-first from (startType, value) up to maxDepth edges
// deep. Every discovered entity is returned with the full edge path that
// reached it. Edges whose pattern has no registered transform are skipped.
func (e *Executor) Execute(startType, value string, maxDepth int) []Result {
	if maxDepth <= 0 {
		maxDepth = 3
	}

	index := make(map[string][]Edge)
	for _, edge := range e.graph.Edges {
		if edge.Enabled {
			index[edge.FromType] = append(index[edge.FromType], edge)
		}
	}
	// Deterministic expansion order regardless of file order.
	for _, edges := range index {
		sort.SliceStable(edges, func(i, j int) bool {
			if edges[i].ToType != edges[j].ToType {
				return edges[i].ToType < edges[j].ToType
			}
			return edges[i].Pattern < edges[j].Pattern
		})
	}

	var results []Result
	queue := []frontier{{etype: startType, value: value}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, edge := range index[cur.etype] {
			transform, ok := e.transforms[edge.Pattern]
			if !ok {
				continue
			}
			for _, out := range transform(cur.value) {
				path := make([]Edge, len(cur.path)+1)
				copy(path, cur.path)
				path[len(cur.path)] = edge
				results = append(results, Result{
					Type:  edge.ToType,
					Value: out,
					Path:  path,
				})
				if len(path) < maxDepth {
					queue = append(queue, frontier{etype: edge.ToType, value: out, path: path})
				}
			}
		}
	}
	return results
}
