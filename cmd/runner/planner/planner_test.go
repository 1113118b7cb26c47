package planner

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VenkataVardineni/flowforge-automations/common/models"
)

func node(id, nodeType string) models.Node {
	return models.Node{
		ID:   id,
		Data: models.NodeData{Type: nodeType},
	}
}

func edge(source, target string) models.Edge {
	return models.Edge{Source: source, Target: target}
}

func TestCompileLinearChain(t *testing.T) {
	graph := &models.WorkflowGraph{
		Nodes: []models.Node{
			node("trigger", "webhookTrigger"),
			node("fetch", "httpRequest"),
			node("notify", "notification"),
		},
		Edges: []models.Edge{
			edge("trigger", "fetch"),
			edge("fetch", "notify"),
		},
	}

	plan, err := Compile(graph)
	require.NoError(t, err)

	assert.Equal(t, 3, plan.Len())
	assert.Equal(t, []string{"trigger"}, plan.Triggers())
	assert.Empty(t, plan.Deps("trigger"))
	assert.Equal(t, []string{"trigger"}, plan.Deps("fetch"))
	assert.Equal(t, []string{"fetch"}, plan.Deps("notify"))
	assert.Equal(t, []string{"fetch"}, plan.Successors("trigger"))
	assert.Empty(t, plan.Successors("notify"))

	fetch, ok := plan.Node("fetch")
	require.True(t, ok)
	assert.Equal(t, "httpRequest", fetch.Data.Type)

	_, ok = plan.Node("missing")
	assert.False(t, ok)
}

func TestCompileDiamond(t *testing.T) {
	// trigger fans out to b and a; both join into sink.
	// Deps keep edge order, successors are sorted.
	graph := &models.WorkflowGraph{
		Nodes: []models.Node{
			node("trigger", "webhookTrigger"),
			node("b", "httpRequest"),
			node("a", "transform"),
			node("sink", "notification"),
		},
		Edges: []models.Edge{
			edge("trigger", "b"),
			edge("trigger", "a"),
			edge("b", "sink"),
			edge("a", "sink"),
		},
	}

	plan, err := Compile(graph)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, plan.Successors("trigger"))
	assert.Equal(t, []string{"b", "a"}, plan.Deps("sink"), "deps keep edge insertion order")
	assert.Equal(t, []string{"trigger"}, plan.Triggers())
}

func TestCompileMultipleTriggersSorted(t *testing.T) {
	graph := &models.WorkflowGraph{
		Nodes: []models.Node{
			node("zeta", "webhookTrigger"),
			node("alpha", "webhookTrigger"),
			node("sink", "notification"),
		},
		Edges: []models.Edge{
			edge("zeta", "sink"),
			edge("alpha", "sink"),
		},
	}

	plan, err := Compile(graph)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, plan.Triggers())
}

func TestCompileDeduplicatesEdges(t *testing.T) {
	graph := &models.WorkflowGraph{
		Nodes: []models.Node{
			node("a", "webhookTrigger"),
			node("b", "transform"),
		},
		Edges: []models.Edge{
			edge("a", "b"),
			edge("a", "b"),
		},
	}

	plan, err := Compile(graph)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, plan.Deps("b"))
	assert.Equal(t, []string{"b"}, plan.Successors("a"))
}

func TestCompileRejectsDuplicateNodeID(t *testing.T) {
	graph := &models.WorkflowGraph{
		Nodes: []models.Node{
			node("a", "webhookTrigger"),
			node("a", "transform"),
		},
	}

	_, err := Compile(graph)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node id: a")
}

func TestCompileRejectsUnknownEdgeEndpoint(t *testing.T) {
	graph := &models.WorkflowGraph{
		Nodes: []models.Node{
			node("a", "webhookTrigger"),
		},
		Edges: []models.Edge{
			edge("a", "ghost"),
		},
	}

	_, err := Compile(graph)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-existent node: ghost")
}

func TestCompileRejectsSelfLoop(t *testing.T) {
	graph := &models.WorkflowGraph{
		Nodes: []models.Node{
			node("a", "webhookTrigger"),
			node("b", "transform"),
		},
		Edges: []models.Edge{
			edge("a", "b"),
			edge("b", "b"),
		},
	}

	_, err := Compile(graph)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depends on itself")
}

func TestCompileNoTrigger(t *testing.T) {
	// Two nodes feeding each other: every node has an incoming edge
	graph := &models.WorkflowGraph{
		Nodes: []models.Node{
			node("a", "transform"),
			node("b", "transform"),
		},
		Edges: []models.Edge{
			edge("a", "b"),
			edge("b", "a"),
		},
	}

	_, err := Compile(graph)
	require.ErrorIs(t, err, ErrNoTrigger)
}

func TestCompileCycleBehindTrigger(t *testing.T) {
	graph := &models.WorkflowGraph{
		Nodes: []models.Node{
			node("trigger", "webhookTrigger"),
			node("a", "transform"),
			node("b", "transform"),
			node("c", "transform"),
		},
		Edges: []models.Edge{
			edge("trigger", "a"),
			edge("a", "b"),
			edge("b", "c"),
			edge("c", "a"),
		},
	}

	_, err := Compile(graph)
	require.ErrorIs(t, err, ErrCycle)
}

func BenchmarkCompile(b *testing.B) {
	// Layered fan-out/fan-in graph: 1 trigger, 10 layers of 10 nodes
	graph := &models.WorkflowGraph{}
	graph.Nodes = append(graph.Nodes, node("trigger", "webhookTrigger"))

	prev := []string{"trigger"}
	for layer := 0; layer < 10; layer++ {
		var current []string
		for i := 0; i < 10; i++ {
			id := fmt.Sprintf("l%d-n%d", layer, i)
			graph.Nodes = append(graph.Nodes, node(id, "transform"))
			for _, p := range prev {
				graph.Edges = append(graph.Edges, edge(p, id))
			}
			current = append(current, id)
		}
		prev = current
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Compile(graph); err != nil {
			b.Fatal(err)
		}
	}
}
