package models

// WorkflowGraph is the declarative workflow definition fetched from the
// workflow service. The runner treats it as read-only.
type WorkflowGraph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is a vertex of the workflow graph
type Node struct {
	ID   string   `json:"id"`
	Data NodeData `json:"data"`
}

// NodeData carries the node type and its executor configuration
type NodeData struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
}

// Edge is a directed dependency: target runs after source
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}
