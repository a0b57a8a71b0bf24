package workflow

import (
	"fmt"
	"sort"
)

// graph is the validated dependency graph of an orchestrator. It is built
// once at construction time and never mutated afterwards.
type graph struct {
	// steps maps step names to their descriptors.
	steps map[string]*Step
	// order preserves the caller's declaration order for deterministic
	// wavefront dispatch and error messages.
	order []string
}

// newGraph builds the name→step map and proves the graph is fully
// resolvable and acyclic. A graph that fails validation never executes.
func newGraph(steps []Step) (*graph, error) {
	g := &graph{
		steps: make(map[string]*Step, len(steps)),
		order: make([]string, 0, len(steps)),
	}

	for i := range steps {
		step := steps[i]
		if step.Name == "" {
			return nil, fmt.Errorf("step at index %d: %w", i, ErrEmptyStepName)
		}
		if step.Work == nil {
			return nil, fmt.Errorf("step %q: %w", step.Name, ErrNilWork)
		}
		if _, exists := g.steps[step.Name]; exists {
			return nil, fmt.Errorf("step %q: %w", step.Name, ErrDuplicateStep)
		}
		g.steps[step.Name] = &step
		g.order = append(g.order, step.Name)
	}

	// Every depends_on entry must reference a declared step.
	for _, name := range g.order {
		for _, dep := range g.steps[name].DependsOn {
			if _, exists := g.steps[dep]; !exists {
				return nil, fmt.Errorf("step %q depends on %q: %w", name, dep, ErrUnknownDependency)
			}
		}
	}

	if err := g.detectCycles(); err != nil {
		return nil, err
	}

	return g, nil
}

// detectCycles walks the dependency edges with a DFS per unvisited node,
// maintaining a recursion-stack set. A dependency already on the stack is a
// back edge. O(V+E).
func (g *graph) detectCycles() error {
	visited := make(map[string]bool, len(g.steps))
	recStack := make(map[string]bool, len(g.steps))

	for _, name := range g.order {
		if !visited[name] {
			if g.hasCycleDFS(name, visited, recStack) {
				return fmt.Errorf("step %q: %w", name, ErrCycleDetected)
			}
		}
	}

	return nil
}

func (g *graph) hasCycleDFS(name string, visited, recStack map[string]bool) bool {
	visited[name] = true
	recStack[name] = true

	for _, dep := range g.steps[name].DependsOn {
		if !visited[dep] {
			if g.hasCycleDFS(dep, visited, recStack) {
				return true
			}
		} else if recStack[dep] {
			// Back edge found - cycle detected
			return true
		}
	}

	recStack[name] = false
	return false
}

// names returns all step names in declaration order.
func (g *graph) names() []string {
	names := make([]string, len(g.order))
	copy(names, g.order)
	return names
}

// sortedNames returns all step names sorted lexically, for stable error
// messages.
func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
