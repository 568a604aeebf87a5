// Package workflow implements the durable graph-based workflow runtime:
// a directed graph of START/END/AGENT/TOOL/ROUTER/HUMAN nodes, executed
// step by step with a checkpoint written at every node boundary and
// divergence-checked durable replay. The checkpoint/replay half is
// grounded directly on pkg/replay/engine.go's Session/divergence model;
// the per-step execution gate follows pkg/executor/executor.go's staged
// fail-closed-check style; TOOL-node dispatch generalizes
// pkg/agent/adapter.go's KernelBridge.Dispatch switch into a
// pkg/toolregistry.Registry map lookup.
package workflow

import (
	"context"
	"fmt"

	"github.com/aegis-health/core/pkg/canonicalize"
)

// NodeKind enumerates the kinds of node a workflow graph may contain.
type NodeKind string

const (
	NodeStart  NodeKind = "START"
	NodeEnd    NodeKind = "END"
	NodeAgent  NodeKind = "AGENT"
	NodeTool   NodeKind = "TOOL"
	NodeRouter NodeKind = "ROUTER"
	NodeHuman  NodeKind = "HUMAN"
)

// EdgeKind distinguishes a plain transition from one gated by a
// condition function evaluated against the live state.
type EdgeKind string

const (
	EdgeNormal      EdgeKind = "NORMAL"
	EdgeConditional EdgeKind = "CONDITIONAL"
)

// State is opaque to the runtime beyond the fields it reads itself
// (CurrentNode, History, Errors); Context and Messages carry whatever a
// node function needs. Serialized as a JSON blob for checkpointing.
type State struct {
	Messages    []any          `json:"messages"`
	Context     map[string]any `json:"context"`
	History     []string       `json:"history"`
	Errors      []string       `json:"errors"`
	CurrentNode string         `json:"current_node"`
}

func (s *State) clone() State {
	cp := State{
		Messages:    append([]any(nil), s.Messages...),
		History:     append([]string(nil), s.History...),
		Errors:      append([]string(nil), s.Errors...),
		CurrentNode: s.CurrentNode,
	}
	cp.Context = make(map[string]any, len(s.Context))
	for k, v := range s.Context {
		cp.Context[k] = v
	}
	return cp
}

// NodeFunc runs a node's behavior against the live state. A returned
// error becomes a state.Errors entry and an immediate transition to the
// graph's end node — it never panics the runtime.
type NodeFunc func(ctx context.Context, state *State) error

// Node is one vertex in the workflow graph.
type Node struct {
	ID   string
	Kind NodeKind
	// Fn runs for AGENT/ROUTER/HUMAN/START nodes; execution stops on
	// reaching the end node, so its Fn is never run. TOOL nodes instead
	// dispatch through Registry using ToolName and leave Fn nil.
	Fn NodeFunc
	// AgentType names the kill-switch-gated actor this node invokes, for
	// AGENT and TOOL nodes. Empty means the node is never paused.
	AgentType string
	// ToolName is the pkg/toolregistry.Registry key used by a TOOL node.
	ToolName string
}

// Condition inspects live state and returns the name of the next node.
// An unknown returned name is a terminal error (§4.9 conditional semantics).
type Condition func(state *State) string

// Edge is one outgoing transition from a node.
type Edge struct {
	From      string
	Kind      EdgeKind
	To        string // NORMAL
	Condition Condition
}

// Graph is a directed workflow graph: a start node, an end node, and
// the nodes/edges between them. Edges are evaluated in registration
// order; the first one whose condition matches (or that is NORMAL)
// wins, per §4.9 "first matching outgoing edge".
type Graph struct {
	Start string
	End   string
	nodes map[string]Node
	edges map[string][]Edge
}

// NewGraph builds an empty graph with the given start/end node names.
func NewGraph(start, end string) *Graph {
	return &Graph{
		Start: start,
		End:   end,
		nodes: make(map[string]Node),
		edges: make(map[string][]Edge),
	}
}

// AddNode registers a node under its own ID.
func (g *Graph) AddNode(n Node) {
	g.nodes[n.ID] = n
}

// AddEdge registers an outgoing edge for Edge.From, in call order.
func (g *Graph) AddEdge(e Edge) {
	g.edges[e.From] = append(g.edges[e.From], e)
}

func (g *Graph) node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// next determines the outgoing transition from `from` given the live
// state: the first matching edge, CONDITIONAL edges calling Condition
// to name the target. No outgoing edge from a non-end node is a
// terminal configuration error.
func (g *Graph) next(from string, state *State) (string, error) {
	edges := g.edges[from]
	for _, e := range edges {
		switch e.Kind {
		case EdgeNormal:
			return e.To, nil
		case EdgeConditional:
			target := e.Condition(state)
			if _, ok := g.node(target); !ok {
				return "", fmt.Errorf("workflow: condition from node %q named unknown target %q", from, target)
			}
			return target, nil
		}
	}
	return "", fmt.Errorf("workflow: node %q has no outgoing edge", from)
}

// hashState computes the checkpoint integrity hash: SHA-256 of the
// canonical JSON encoding of state, truncated to 16 hex characters
// (state_hash = SHA-256(canonical(state))[:16]). Uses the same
// RFC 8785 canonicalization the receipt/decision pipeline hashes with,
// rather than plain json.Marshal, so key ordering can never vary the
// hash across equivalent state blobs.
func hashState(state State) (string, error) {
	full, err := canonicalize.CanonicalHash(state)
	if err != nil {
		return "", fmt.Errorf("workflow: canonicalize state for hashing: %w", err)
	}
	return full[:16], nil
}
