package planner

import (
	"errors"
	"fmt"
	"sort"

	"github.com/VenkataVardineni/flowforge-automations/common/models"
)

// Graph shapes the runner cannot execute
var (
	ErrNoTrigger = errors.New("workflow has no trigger node")
	ErrCycle     = errors.New("workflow contains a cycle")
)

// Plan is the compiled execution view of a workflow graph. It is immutable
// after Compile; the engine drives readiness from it.
type Plan struct {
	nodes      map[string]*models.Node
	deps       map[string][]string
	successors map[string][]string
	triggers   []string
}

type edgeKey struct {
	from, to string
}

// Compile validates a workflow graph and derives the dependency and
// successor lists the engine schedules from.
func Compile(graph *models.WorkflowGraph) (*Plan, error) {
	p := &Plan{
		nodes:      make(map[string]*models.Node, len(graph.Nodes)),
		deps:       make(map[string][]string),
		successors: make(map[string][]string),
	}

	// 1. Index nodes
	for i := range graph.Nodes {
		node := &graph.Nodes[i]
		if _, exists := p.nodes[node.ID]; exists {
			return nil, fmt.Errorf("duplicate node id: %s", node.ID)
		}
		p.nodes[node.ID] = node
	}

	// 2. Build dependency and successor lists. Dependencies keep edge order
	// (it decides merge precedence for join nodes); duplicate edges collapse.
	seen := make(map[edgeKey]bool, len(graph.Edges))
	for _, edge := range graph.Edges {
		if _, exists := p.nodes[edge.Source]; !exists {
			return nil, fmt.Errorf("edge references non-existent node: %s", edge.Source)
		}
		if _, exists := p.nodes[edge.Target]; !exists {
			return nil, fmt.Errorf("edge references non-existent node: %s", edge.Target)
		}
		if edge.Source == edge.Target {
			return nil, fmt.Errorf("node %s depends on itself", edge.Source)
		}

		key := edgeKey{from: edge.Source, to: edge.Target}
		if seen[key] {
			continue
		}
		seen[key] = true

		p.deps[edge.Target] = append(p.deps[edge.Target], edge.Source)
		p.successors[edge.Source] = append(p.successors[edge.Source], edge.Target)
	}

	// Successor order decides ready order between siblings; keep it stable
	for id := range p.successors {
		sort.Strings(p.successors[id])
	}

	ids := make([]string, 0, len(p.nodes))
	for id := range p.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// 3. Triggers are nodes with no incoming edges
	for _, id := range ids {
		if len(p.deps[id]) == 0 {
			p.triggers = append(p.triggers, id)
		}
	}

	if len(p.triggers) == 0 {
		return nil, ErrNoTrigger
	}

	// 4. DFS cycle check, entered in sorted id order so the reported
	// cycle node is stable
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	var cycleNode string

	var hasCycle func(nodeID string) bool
	hasCycle = func(nodeID string) bool {
		visited[nodeID] = true
		recStack[nodeID] = true

		for _, next := range p.successors[nodeID] {
			if !visited[next] {
				if hasCycle(next) {
					return true
				}
			} else if recStack[next] {
				cycleNode = next
				return true
			}
		}

		recStack[nodeID] = false
		return false
	}

	for _, id := range ids {
		if !visited[id] {
			if hasCycle(id) {
				return nil, fmt.Errorf("%w through node %s", ErrCycle, cycleNode)
			}
		}
	}

	return p, nil
}

// Deps returns the node's dependencies in edge order
func (p *Plan) Deps(nodeID string) []string {
	return p.deps[nodeID]
}

// Successors returns the node's downstream nodes sorted by id
func (p *Plan) Successors(nodeID string) []string {
	return p.successors[nodeID]
}

// Triggers returns the entry nodes sorted by id
func (p *Plan) Triggers() []string {
	return p.triggers
}

// Node returns the graph node by id
func (p *Plan) Node(nodeID string) (*models.Node, bool) {
	node, ok := p.nodes[nodeID]
	return node, ok
}

// Len returns the number of nodes in the plan
func (p *Plan) Len() int {
	return len(p.nodes)
}
