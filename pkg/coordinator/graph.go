package coordinator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/drydock-sh/drydock/pkg/types"
)

// CircularDependencyError is raised when the portfolio dependency graph
// contains a cycle. It is fatal: portfolio deployment refuses to start.
type CircularDependencyError struct {
	// Node is the domain at which the cycle was detected
	Node string

	// Cycle lists the domains forming the cycle, starting and ending at
	// Node
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("circular dependency detected at %s: %s", e.Node, strings.Join(e.Cycle, " -> "))
	}
	return fmt.Sprintf("circular dependency detected at %s", e.Node)
}

// IsCircularDependency reports whether err is a CircularDependencyError
func IsCircularDependency(err error) bool {
	var ce *CircularDependencyError
	return errors.As(err, &ce)
}

// Graph is the portfolio dependency graph: an edge dependent →
// prerequisite means the prerequisite must deploy in an earlier batch
type Graph struct {
	// order preserves input order for deterministic tie-breaking
	order []string

	// prereqs maps a domain to its prerequisites
	prereqs map[string][]string
}

// BuildGraph folds explicit dependencies and shared_with declarations
// into a dependency graph. A domain that shares one of its resources is
// the prerequisite of every peer it shares with.
func BuildGraph(configs []*types.DomainConfig) *Graph {
	g := &Graph{prereqs: make(map[string][]string, len(configs))}

	known := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		g.order = append(g.order, cfg.Name)
		known[cfg.Name] = true
		if _, ok := g.prereqs[cfg.Name]; !ok {
			g.prereqs[cfg.Name] = nil
		}
	}

	addEdge := func(dependent, prerequisite string) {
		if dependent == prerequisite || !known[dependent] || !known[prerequisite] {
			return
		}
		for _, p := range g.prereqs[dependent] {
			if p == prerequisite {
				return
			}
		}
		g.prereqs[dependent] = append(g.prereqs[dependent], prerequisite)
	}

	for _, cfg := range configs {
		for _, dep := range cfg.Dependencies {
			addEdge(cfg.Name, dep)
		}
		for _, ref := range cfg.SharedDatabases {
			for _, peer := range ref.SharedWith {
				addEdge(peer, cfg.Name)
			}
		}
		for _, ref := range cfg.SharedSecrets {
			for _, peer := range ref.SharedWith {
				addEdge(peer, cfg.Name)
			}
		}
	}
	return g
}

// Edges returns the dependency edges of the graph
func (g *Graph) Edges() []types.DependencyEdge {
	var edges []types.DependencyEdge
	for _, domain := range g.order {
		for _, p := range g.prereqs[domain] {
			edges = append(edges, types.DependencyEdge{Dependent: domain, Prerequisite: p})
		}
	}
	return edges
}

// DFS colors for cycle detection
const (
	white = iota // unvisited
	gray         // on the current path
	black        // fully explored
)

// CheckAcyclic verifies the graph has no cycles using an iterative DFS
// with tri-color marking and an explicit stack, so portfolios larger
// than the goroutine stack depth are safe.
func (g *Graph) CheckAcyclic() error {
	color := make(map[string]int, len(g.order))

	type frame struct {
		node string
		next int
	}

	for _, start := range g.order {
		if color[start] != white {
			continue
		}

		stack := []frame{{node: start}}
		color[start] = gray

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			prereqs := g.prereqs[top.node]

			if top.next >= len(prereqs) {
				color[top.node] = black
				stack = stack[:len(stack)-1]
				continue
			}

			child := prereqs[top.next]
			top.next++

			switch color[child] {
			case white:
				color[child] = gray
				stack = append(stack, frame{node: child})
			case gray:
				// Found a back edge; reconstruct the cycle from the stack
				cycle := []string{child}
				for i := len(stack) - 1; i >= 0; i-- {
					cycle = append(cycle, stack[i].node)
					if stack[i].node == child {
						break
					}
				}
				// Reverse into dependency order
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return &CircularDependencyError{Node: child, Cycle: cycle}
			}
		}
	}
	return nil
}

// TopoOrder returns a topological order (prerequisites first) using
// Kahn's algorithm; ties are broken by input order
func (g *Graph) TopoOrder() ([]string, error) {
	if err := g.CheckAcyclic(); err != nil {
		return nil, err
	}

	remaining := make(map[string]int, len(g.order))
	for _, domain := range g.order {
		remaining[domain] = len(g.prereqs[domain])
	}

	// dependents is the reverse adjacency, for decrementing
	dependents := make(map[string][]string, len(g.order))
	for _, domain := range g.order {
		for _, p := range g.prereqs[domain] {
			dependents[p] = append(dependents[p], domain)
		}
	}

	var order []string
	placed := make(map[string]bool, len(g.order))
	for len(order) < len(g.order) {
		progressed := false
		for _, domain := range g.order {
			if placed[domain] || remaining[domain] != 0 {
				continue
			}
			placed[domain] = true
			order = append(order, domain)
			for _, d := range dependents[domain] {
				remaining[d]--
			}
			progressed = true
		}
		if !progressed {
			// Unreachable after CheckAcyclic; defensive stop
			return nil, &CircularDependencyError{Node: firstUnplaced(g.order, placed)}
		}
	}
	return order, nil
}

// Batches segments the topological order into batches of at most limit.
// A domain never shares a batch with one of its prerequisites: when the
// next domain depends on anything in the open batch, the batch is
// closed early.
func (g *Graph) Batches(limit int) ([][]string, error) {
	order, err := g.TopoOrder()
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 1
	}

	var batches [][]string
	var current []string
	inCurrent := make(map[string]bool)

	flush := func() {
		if len(current) > 0 {
			batches = append(batches, current)
			current = nil
			inCurrent = make(map[string]bool)
		}
	}

	for _, domain := range order {
		conflict := false
		for _, p := range g.prereqs[domain] {
			if inCurrent[p] {
				conflict = true
				break
			}
		}
		if conflict || len(current) >= limit {
			flush()
		}
		current = append(current, domain)
		inCurrent[domain] = true
	}
	flush()
	return batches, nil
}

func firstUnplaced(order []string, placed map[string]bool) string {
	for _, d := range order {
		if !placed[d] {
			return d
		}
	}
	return ""
}
