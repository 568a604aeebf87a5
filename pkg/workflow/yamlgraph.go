package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// graphDoc is the declarative YAML shape a workflow graph definition is
// authored in. Node functions and edge conditions can't travel through
// YAML, so LoadGraph resolves Fn/Condition references by name against
// caller-supplied lookup tables built at startup.
type graphDoc struct {
	Start string    `yaml:"start"`
	End   string    `yaml:"end"`
	Nodes []nodeDoc `yaml:"nodes"`
	Edges []edgeDoc `yaml:"edges"`
}

type nodeDoc struct {
	ID        string `yaml:"id"`
	Kind      string `yaml:"kind"`
	AgentType string `yaml:"agent_type,omitempty"`
	ToolName  string `yaml:"tool_name,omitempty"`
	Fn        string `yaml:"fn,omitempty"`
}

type edgeDoc struct {
	From      string `yaml:"from"`
	Kind      string `yaml:"kind"`
	To        string `yaml:"to,omitempty"`
	Condition string `yaml:"condition,omitempty"`
}

// LoadGraph parses a declarative YAML workflow-graph definition into a
// Graph. fns and conditions map the names referenced by a node's `fn`
// or a conditional edge's `condition` field to the actual Go functions
// registered for this workflow at startup — a node or edge naming an
// unregistered function fails to load rather than silently running a
// no-op.
func LoadGraph(doc []byte, fns map[string]NodeFunc, conditions map[string]Condition) (*Graph, error) {
	var gd graphDoc
	if err := yaml.Unmarshal(doc, &gd); err != nil {
		return nil, fmt.Errorf("workflow: parse graph definition: %w", err)
	}
	if gd.Start == "" || gd.End == "" {
		return nil, fmt.Errorf("workflow: graph definition must set start and end")
	}

	g := NewGraph(gd.Start, gd.End)
	for _, n := range gd.Nodes {
		node := Node{ID: n.ID, Kind: NodeKind(n.Kind), AgentType: n.AgentType, ToolName: n.ToolName}
		if n.Fn != "" {
			fn, ok := fns[n.Fn]
			if !ok {
				return nil, fmt.Errorf("workflow: node %q references unknown function %q", n.ID, n.Fn)
			}
			node.Fn = fn
		}
		g.AddNode(node)
	}

	for _, e := range gd.Edges {
		edge := Edge{From: e.From, Kind: EdgeKind(e.Kind), To: e.To}
		if edge.Kind == EdgeConditional {
			cond, ok := conditions[e.Condition]
			if !ok {
				return nil, fmt.Errorf("workflow: edge from %q references unknown condition %q", e.From, e.Condition)
			}
			edge.Condition = cond
		}
		g.AddEdge(edge)
	}

	return g, nil
}
