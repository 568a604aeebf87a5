package workflow

import (
	"context"
	"fmt"

	"github.com/aegis-health/core/pkg/toolregistry"
)

// DefaultMaxSteps is the hard cap on node transitions per execution
// when a Runner is built without an explicit override (§4.9).
const DefaultMaxSteps = 50

// Runner drives one workflow Graph to completion, writing a checkpoint
// at every node boundary and gating AGENT/TOOL nodes on the kill-switch.
type Runner struct {
	graph      *Graph
	store      CheckpointStore
	killSwitch KillSwitch
	tools      *toolregistry.Registry
	maxSteps   int
}

// NewRunner builds a Runner. store may be nil to disable checkpointing
// (tests only — production callers always configure one so Resume is
// possible); killSwitch and tools may be nil to skip those checks.
// maxSteps <= 0 falls back to DefaultMaxSteps.
func NewRunner(graph *Graph, store CheckpointStore, killSwitch KillSwitch, tools *toolregistry.Registry, maxSteps int) *Runner {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Runner{graph: graph, store: store, killSwitch: killSwitch, tools: tools, maxSteps: maxSteps}
}

// Start runs a fresh execution from the graph's start node.
func (r *Runner) Start(ctx context.Context, executionID string, initial State) (*State, error) {
	state := initial.clone()
	state.CurrentNode = r.graph.Start
	return r.loop(ctx, executionID, state, 0)
}

// Resume fetches the latest checkpoint for executionID, recomputes its
// state hash, and compares it against the stored hash before
// continuing. A mismatch means the stored state blob has diverged from
// what produced it, and Resume refuses to build on untrusted state
// rather than silently continuing (§4.9 durable replay, §6 invariant 3).
func (r *Runner) Resume(ctx context.Context, executionID string) (*State, error) {
	if r.store == nil {
		return nil, fmt.Errorf("workflow: resume requires a checkpoint store")
	}
	cp, err := r.store.Latest(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("workflow: fetch latest checkpoint: %w", err)
	}
	if cp == nil {
		return nil, fmt.Errorf("workflow: no checkpoint found for execution %q", executionID)
	}

	recomputed, err := hashState(cp.State)
	if err != nil {
		return nil, err
	}
	if recomputed != cp.StateHash {
		return nil, &DivergenceInfo{
			StepNumber: cp.StepNo,
			Reason:     fmt.Sprintf("checkpoint hash mismatch at step %d: stored %s, recomputed %s", cp.StepNo, cp.StateHash, recomputed),
		}
	}

	state := cp.State.clone()
	if state.CurrentNode == r.graph.End {
		return &state, nil
	}
	return r.loop(ctx, executionID, state, cp.StepNo+1)
}

// stepLocator is satisfied by a CheckpointStore that can also retrieve
// a checkpoint at an arbitrary step rather than only the latest one —
// MemCheckpointStore.ByStep, or a durable store's equivalent query.
type stepLocator interface {
	ByStep(ctx context.Context, executionID string, stepNo int) (*Checkpoint, error)
}

// ResumeFromStep behaves like Resume but rehydrates state from the
// checkpoint recorded at fromStep instead of the latest one, then
// replays forward from there — e.g. when an operator wants to re-run a
// workflow from a known-good point rather than wherever it last
// stopped. The configured store must implement stepLocator.
func (r *Runner) ResumeFromStep(ctx context.Context, executionID string, fromStep int) (*State, error) {
	locator, ok := r.store.(stepLocator)
	if !ok {
		return nil, fmt.Errorf("workflow: configured checkpoint store does not support resuming from a specific step")
	}
	cp, err := locator.ByStep(ctx, executionID, fromStep)
	if err != nil {
		return nil, fmt.Errorf("workflow: fetch checkpoint at step %d: %w", fromStep, err)
	}
	if cp == nil {
		return nil, fmt.Errorf("workflow: no checkpoint found for execution %q at step %d", executionID, fromStep)
	}

	recomputed, err := hashState(cp.State)
	if err != nil {
		return nil, err
	}
	if recomputed != cp.StateHash {
		return nil, &DivergenceInfo{
			StepNumber: cp.StepNo,
			Reason:     fmt.Sprintf("checkpoint hash mismatch at step %d: stored %s, recomputed %s", cp.StepNo, cp.StateHash, recomputed),
		}
	}

	state := cp.State.clone()
	if state.CurrentNode == r.graph.End {
		return &state, nil
	}
	return r.loop(ctx, executionID, state, cp.StepNo+1)
}

func (r *Runner) loop(ctx context.Context, executionID string, state State, stepNo int) (*State, error) {
	for {
		if stepNo >= r.maxSteps {
			state.Errors = append(state.Errors, fmt.Sprintf("max_steps exceeded at %d", r.maxSteps))
			return &state, nil
		}

		currentID := state.CurrentNode
		node, ok := r.graph.node(currentID)
		if !ok {
			return nil, fmt.Errorf("workflow: unknown node %q", currentID)
		}

		var nextID string
		paused := false

		if node.AgentType != "" && r.killSwitch != nil {
			active, err := r.killSwitch.IsActive(ctx, node.AgentType)
			if err != nil {
				return nil, fmt.Errorf("workflow: kill-switch check for %q: %w", node.AgentType, err)
			}
			if !active {
				state.Errors = append(state.Errors, fmt.Sprintf("error=paused: agent_type %q is inactive", node.AgentType))
				nextID = r.graph.End
				paused = true
			}
		}

		if !paused {
			if node.ID == r.graph.End {
				nextID = r.graph.End
			} else if err := r.runNode(ctx, node, &state); err != nil {
				state.Errors = append(state.Errors, err.Error())
				nextID = r.graph.End
			} else {
				next, err := r.graph.next(node.ID, &state)
				if err != nil {
					return nil, err
				}
				nextID = next
			}
		}

		state.History = append(state.History, node.ID)
		state.CurrentNode = nextID

		if err := r.checkpoint(ctx, executionID, stepNo, node.ID, state); err != nil {
			return nil, err
		}

		stepNo++

		if nextID == r.graph.End {
			return &state, nil
		}
	}
}

// runNode executes a node's behavior, recovering from a panic so one
// misbehaving node function never crashes the whole runtime — the
// panic becomes an ordinary node error, handled by the caller the same
// way as any other returned error.
func (r *Runner) runNode(ctx context.Context, node Node, state *State) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in node %q: %v", node.ID, rec)
		}
	}()

	switch node.Kind {
	case NodeTool:
		if r.tools == nil {
			return fmt.Errorf("tool node %q: no tool registry configured", node.ID)
		}
		args, _ := state.Context["tool_args"].(map[string]any)
		result, derr := r.tools.Dispatch(ctx, node.ToolName, args)
		if derr != nil {
			return derr
		}
		if state.Context == nil {
			state.Context = make(map[string]any)
		}
		state.Context["tool_result"] = result
		return nil
	default:
		if node.Fn == nil {
			return nil
		}
		return node.Fn(ctx, state)
	}
}

func (r *Runner) checkpoint(ctx context.Context, executionID string, stepNo int, nodeID string, state State) error {
	if r.store == nil {
		return nil
	}
	hash, err := hashState(state)
	if err != nil {
		return err
	}
	cp := Checkpoint{ExecutionID: executionID, StepNo: stepNo, NodeID: nodeID, State: state, StateHash: hash}
	if err := r.store.Save(ctx, cp); err != nil {
		return fmt.Errorf("workflow: save checkpoint step %d: %w", stepNo, err)
	}
	return nil
}
