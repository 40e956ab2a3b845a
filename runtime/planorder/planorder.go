// Package planorder implements the Execution Order Builder (C5): it combines
// node specs and inferred Dependency Edges into a validated topological
// order, falling back to a deterministic heuristic order on cycles or gaps.
package planorder

import (
	"sort"

	"github.com/pipelinerun/engine/runtime/pipeline"
	"github.com/pipelinerun/engine/runtime/toolident"
)

// MinConfidence is the minimum edge confidence kept when building the DAG
//.
const MinConfidence = 0.3

// Build computes the execution plan for spec given the inferred edges and a
// tool lookup (for heuristic-order category priorities).
func Build(spec pipeline.Spec, edges []pipeline.Edge, lookup pipeline.ToolLookup) pipeline.Plan {
	nodeIDs := make([]string, 0, len(spec.Components))
	for _, n := range spec.Components {
		nodeIDs = append(nodeIDs, n.ID)
	}

	kept := make([]pipeline.Edge, 0, len(edges))
	for _, e := range edges {
		if e.Confidence >= MinConfidence {
			kept = append(kept, e)
		}
	}

	order, cycleFound := topoSort(nodeIDs, kept)
	if order == nil || len(order) != len(nodeIDs) {
		order = heuristicOrder(spec.Components, kept, lookup)
	}

	violations := validate(order, kept)
	return pipeline.Plan{Order: order, Violations: violations, CycleFound: cycleFound}
}

// topoSort performs a DFS topological sort with cycle detection. Returns
// (nil, true) if a cycle is found (caller falls through to the heuristic
// order); ties are broken by ascending node id for determinism.
func topoSort(nodeIDs []string, edges []pipeline.Edge) ([]string, bool) {
	adj := make(map[string][]string, len(nodeIDs))
	for _, id := range nodeIDs {
		adj[id] = nil
	}
	for _, e := range edges {
		if _, ok := adj[e.Source]; !ok {
			continue
		}
		if _, ok := adj[e.Target]; !ok {
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	// Successors and roots are visited in descending id order so that the
	// reversed post-order lists tied nodes in ascending id order.
	for id := range adj {
		sort.Sort(sort.Reverse(sort.StringSlice(adj[id])))
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(nodeIDs))
	var order []string
	cycle := false

	sorted := append([]string(nil), nodeIDs...)
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))

	var visit func(string)
	visit = func(n string) {
		if cycle {
			return
		}
		switch color[n] {
		case black:
			return
		case gray:
			cycle = true
			return
		}
		color[n] = gray
		for _, next := range adj[n] {
			visit(next)
			if cycle {
				return
			}
		}
		color[n] = black
		order = append(order, n)
	}

	for _, n := range sorted {
		if color[n] == white {
			visit(n)
		}
		if cycle {
			return nil, true
		}
	}

	// visit appends in post-order; reverse for a valid topological order.
	reversed := make([]string, len(order))
	for i, n := range order {
		reversed[len(order)-1-i] = n
	}
	return reversed, false
}

// heuristicOrder sorts nodes by (category base priority, -in_degree,
// out_degree, id), using the edge set retained even when it didn't yield a
// clean topological sort (a cycle or a coverage gap) — those edges still
// carry real signal about which nodes are more "upstream".
func heuristicOrder(nodes []pipeline.NodeSpec, edges []pipeline.Edge, lookup pipeline.ToolLookup) []string {
	inDegree := make(map[string]int, len(nodes))
	outDegree := make(map[string]int, len(nodes))
	for _, e := range edges {
		outDegree[e.Source]++
		inDegree[e.Target]++
	}

	type entry struct {
		id        string
		priority  int
		inDegree  int
		outDegree int
	}
	entries := make([]entry, 0, len(nodes))
	for _, n := range nodes {
		cat, ok := lookup(n.ToolType)
		if !ok {
			cat = toolident.CategoryOther
		}
		entries = append(entries, entry{
			id:        n.ID,
			priority:  cat.BasePriority(),
			inDegree:  inDegree[n.ID],
			outDegree: outDegree[n.ID],
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		if a.inDegree != b.inDegree {
			return a.inDegree > b.inDegree // -in_degree ascending == in_degree descending
		}
		if a.outDegree != b.outDegree {
			return a.outDegree < b.outDegree
		}
		return a.id < b.id
	})
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.id
	}
	return out
}

// validate checks, for every edge, that source's index precedes target's;
// violations are collected as warnings, never as hard failures.
func validate(order []string, edges []pipeline.Edge) []string {
	index := make(map[string]int, len(order))
	for i, id := range order {
		index[id] = i
	}
	var violations []string
	for _, e := range edges {
		si, sok := index[e.Source]
		ti, tok := index[e.Target]
		if !sok || !tok {
			continue
		}
		if si >= ti {
			violations = append(violations, "edge "+e.Source+"->"+e.Target+" violated in computed order")
		}
	}
	return violations
}
