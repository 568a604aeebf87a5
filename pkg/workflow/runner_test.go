package workflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aegis-health/core/pkg/toolregistry"
	"github.com/aegis-health/core/pkg/workflow"
)

func linearGraph() *workflow.Graph {
	g := workflow.NewGraph("start", "end")
	g.AddNode(workflow.Node{ID: "start", Kind: workflow.NodeStart})
	g.AddNode(workflow.Node{ID: "A", Kind: workflow.NodeAgent, Fn: func(ctx context.Context, s *workflow.State) error {
		s.Context["visited_a"] = true
		return nil
	}})
	g.AddNode(workflow.Node{ID: "B", Kind: workflow.NodeAgent, Fn: func(ctx context.Context, s *workflow.State) error {
		s.Context["visited_b"] = true
		return nil
	}})
	g.AddNode(workflow.Node{ID: "end", Kind: workflow.NodeEnd})
	g.AddEdge(workflow.Edge{From: "start", Kind: workflow.EdgeNormal, To: "A"})
	g.AddEdge(workflow.Edge{From: "A", Kind: workflow.EdgeNormal, To: "B"})
	g.AddEdge(workflow.Edge{From: "B", Kind: workflow.EdgeNormal, To: "end"})
	return g
}

func freshState() workflow.State {
	return workflow.State{Context: map[string]any{}}
}

func TestRunnerCompletesLinearGraph(t *testing.T) {
	store := workflow.NewMemCheckpointStore()
	r := workflow.NewRunner(linearGraph(), store, nil, nil, 0)

	final, err := r.Start(context.Background(), "exec-1", freshState())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.CurrentNode != "end" {
		t.Fatalf("expected execution to reach end, got %q", final.CurrentNode)
	}
	if final.Context["visited_a"] != true || final.Context["visited_b"] != true {
		t.Fatalf("expected both A and B to run, got %+v", final.Context)
	}
	if len(final.History) != 4 {
		t.Fatalf("expected history of start,A,B,end, got %v", final.History)
	}
	if len(store.All("exec-1")) != 4 {
		t.Fatalf("expected 4 checkpoints, got %d", len(store.All("exec-1")))
	}
}

func TestRunnerNodeErrorTransitionsToEnd(t *testing.T) {
	g := workflow.NewGraph("start", "end")
	g.AddNode(workflow.Node{ID: "start", Kind: workflow.NodeStart})
	g.AddNode(workflow.Node{ID: "A", Kind: workflow.NodeAgent, Fn: func(ctx context.Context, s *workflow.State) error {
		return errors.New("boom")
	}})
	g.AddNode(workflow.Node{ID: "end", Kind: workflow.NodeEnd})
	g.AddEdge(workflow.Edge{From: "start", Kind: workflow.EdgeNormal, To: "A"})
	g.AddEdge(workflow.Edge{From: "A", Kind: workflow.EdgeNormal, To: "end"})

	r := workflow.NewRunner(g, workflow.NewMemCheckpointStore(), nil, nil, 0)
	final, err := r.Start(context.Background(), "exec-2", freshState())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.CurrentNode != "end" {
		t.Fatalf("expected a node error to terminate at end, got %q", final.CurrentNode)
	}
	if len(final.Errors) != 1 {
		t.Fatalf("expected 1 recorded error, got %v", final.Errors)
	}
}

func TestRunnerConditionalEdgeRoutesByState(t *testing.T) {
	g := workflow.NewGraph("start", "end")
	g.AddNode(workflow.Node{ID: "start", Kind: workflow.NodeStart})
	g.AddNode(workflow.Node{ID: "router", Kind: workflow.NodeRouter})
	g.AddNode(workflow.Node{ID: "high", Kind: workflow.NodeAgent, Fn: func(ctx context.Context, s *workflow.State) error {
		s.Context["branch"] = "high"
		return nil
	}})
	g.AddNode(workflow.Node{ID: "low", Kind: workflow.NodeAgent, Fn: func(ctx context.Context, s *workflow.State) error {
		s.Context["branch"] = "low"
		return nil
	}})
	g.AddNode(workflow.Node{ID: "end", Kind: workflow.NodeEnd})
	g.AddEdge(workflow.Edge{From: "start", Kind: workflow.EdgeNormal, To: "router"})
	g.AddEdge(workflow.Edge{From: "router", Kind: workflow.EdgeConditional, Condition: func(s *workflow.State) string {
		if s.Context["risk"] == "high" {
			return "high"
		}
		return "low"
	}})
	g.AddEdge(workflow.Edge{From: "high", Kind: workflow.EdgeNormal, To: "end"})
	g.AddEdge(workflow.Edge{From: "low", Kind: workflow.EdgeNormal, To: "end"})

	r := workflow.NewRunner(g, workflow.NewMemCheckpointStore(), nil, nil, 0)
	state := freshState()
	state.Context["risk"] = "high"
	final, err := r.Start(context.Background(), "exec-3", state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Context["branch"] != "high" {
		t.Fatalf("expected conditional edge to route to the high branch, got %+v", final.Context)
	}
}

func TestRunnerUnknownConditionTargetIsTerminalError(t *testing.T) {
	g := workflow.NewGraph("start", "end")
	g.AddNode(workflow.Node{ID: "start", Kind: workflow.NodeStart})
	g.AddNode(workflow.Node{ID: "end", Kind: workflow.NodeEnd})
	g.AddEdge(workflow.Edge{From: "start", Kind: workflow.EdgeConditional, Condition: func(s *workflow.State) string {
		return "nonexistent"
	}})

	r := workflow.NewRunner(g, workflow.NewMemCheckpointStore(), nil, nil, 0)
	_, err := r.Start(context.Background(), "exec-4", freshState())
	if err == nil {
		t.Fatal("expected an error for a condition naming an unknown node")
	}
}

func TestRunnerStopsAtMaxSteps(t *testing.T) {
	g := workflow.NewGraph("start", "end")
	g.AddNode(workflow.Node{ID: "start", Kind: workflow.NodeStart})
	g.AddNode(workflow.Node{ID: "loop", Kind: workflow.NodeAgent})
	g.AddNode(workflow.Node{ID: "end", Kind: workflow.NodeEnd})
	g.AddEdge(workflow.Edge{From: "start", Kind: workflow.EdgeNormal, To: "loop"})
	g.AddEdge(workflow.Edge{From: "loop", Kind: workflow.EdgeNormal, To: "loop"})

	r := workflow.NewRunner(g, workflow.NewMemCheckpointStore(), nil, nil, 3)
	final, err := r.Start(context.Background(), "exec-5", freshState())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.CurrentNode == "end" {
		t.Fatal("expected the loop to be cut off by max_steps, not reach end")
	}
	if len(final.Errors) == 0 {
		t.Fatal("expected a max_steps error to be recorded")
	}
}

func TestRunnerKillSwitchPausesAgentNode(t *testing.T) {
	g := workflow.NewGraph("start", "end")
	g.AddNode(workflow.Node{ID: "start", Kind: workflow.NodeStart})
	g.AddNode(workflow.Node{ID: "A", Kind: workflow.NodeAgent, AgentType: "risk-scorer", Fn: func(ctx context.Context, s *workflow.State) error {
		s.Context["ran"] = true
		return nil
	}})
	g.AddNode(workflow.Node{ID: "end", Kind: workflow.NodeEnd})
	g.AddEdge(workflow.Edge{From: "start", Kind: workflow.EdgeNormal, To: "A"})
	g.AddEdge(workflow.Edge{From: "A", Kind: workflow.EdgeNormal, To: "end"})

	r := workflow.NewRunner(g, workflow.NewMemCheckpointStore(), pausedKillSwitch{}, nil, 0)
	final, err := r.Start(context.Background(), "exec-6", freshState())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Context["ran"] == true {
		t.Fatal("expected the paused agent node to never run")
	}
	if final.CurrentNode != "end" {
		t.Fatalf("expected a paused node to terminate at end, got %q", final.CurrentNode)
	}
}

type pausedKillSwitch struct{}

func (pausedKillSwitch) IsActive(ctx context.Context, agentType string) (bool, error) { return false, nil }

func TestRunnerToolNodeDispatchesThroughRegistry(t *testing.T) {
	tools := toolregistry.NewRegistry()
	tools.Register(toolregistry.ToolDescriptor{
		Name: "lookup_patient",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return "found", nil
		},
	})

	g := workflow.NewGraph("start", "end")
	g.AddNode(workflow.Node{ID: "start", Kind: workflow.NodeStart})
	g.AddNode(workflow.Node{ID: "lookup", Kind: workflow.NodeTool, ToolName: "lookup_patient"})
	g.AddNode(workflow.Node{ID: "end", Kind: workflow.NodeEnd})
	g.AddEdge(workflow.Edge{From: "start", Kind: workflow.EdgeNormal, To: "lookup"})
	g.AddEdge(workflow.Edge{From: "lookup", Kind: workflow.EdgeNormal, To: "end"})

	r := workflow.NewRunner(g, workflow.NewMemCheckpointStore(), nil, tools, 0)
	final, err := r.Start(context.Background(), "exec-7", freshState())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Context["tool_result"] != "found" {
		t.Fatalf("expected tool_result to be populated, got %+v", final.Context)
	}
}

func TestRunnerPanicInNodeFuncBecomesTerminalError(t *testing.T) {
	g := workflow.NewGraph("start", "end")
	g.AddNode(workflow.Node{ID: "start", Kind: workflow.NodeStart})
	g.AddNode(workflow.Node{ID: "A", Kind: workflow.NodeAgent, Fn: func(ctx context.Context, s *workflow.State) error {
		panic("unexpected nil pointer")
	}})
	g.AddNode(workflow.Node{ID: "end", Kind: workflow.NodeEnd})
	g.AddEdge(workflow.Edge{From: "start", Kind: workflow.EdgeNormal, To: "A"})
	g.AddEdge(workflow.Edge{From: "A", Kind: workflow.EdgeNormal, To: "end"})

	r := workflow.NewRunner(g, workflow.NewMemCheckpointStore(), nil, nil, 0)
	final, err := r.Start(context.Background(), "exec-8", freshState())
	if err != nil {
		t.Fatalf("expected the runtime to survive a panicking node, got error: %v", err)
	}
	if final.CurrentNode != "end" || len(final.Errors) != 1 {
		t.Fatalf("expected the panic to become a single terminal error, got %+v", final)
	}
}

func TestResumeDetectsDivergenceOnTamperedCheckpoint(t *testing.T) {
	store := workflow.NewMemCheckpointStore()
	r := workflow.NewRunner(linearGraph(), store, nil, nil, 0)

	if _, err := r.Start(context.Background(), "exec-9", freshState()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cps := store.All("exec-9")
	tampered := cps[0]
	tampered.State.Context["injected"] = "tampered"
	_ = store.Save(context.Background(), tampered)

	_, err := r.Resume(context.Background(), "exec-9")
	var div *workflow.DivergenceInfo
	if !errors.As(err, &div) {
		t.Fatalf("expected a DivergenceInfo error, got %v", err)
	}
}

func TestResumeContinuesFromLastGoodCheckpoint(t *testing.T) {
	g := workflow.NewGraph("start", "end")
	g.AddNode(workflow.Node{ID: "start", Kind: workflow.NodeStart})
	g.AddNode(workflow.Node{ID: "A", Kind: workflow.NodeAgent, Fn: func(ctx context.Context, s *workflow.State) error {
		s.Context["a_ran"] = true
		return nil
	}})
	g.AddNode(workflow.Node{ID: "end", Kind: workflow.NodeEnd})
	g.AddEdge(workflow.Edge{From: "start", Kind: workflow.EdgeNormal, To: "A"})
	g.AddEdge(workflow.Edge{From: "A", Kind: workflow.EdgeNormal, To: "end"})

	store := workflow.NewMemCheckpointStore()
	startOnlyRunner := workflow.NewRunner(g, store, nil, nil, 1)
	if _, err := startOnlyRunner.Start(context.Background(), "exec-10", freshState()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fullRunner := workflow.NewRunner(g, store, nil, nil, 0)
	final, err := fullRunner.Resume(context.Background(), "exec-10")
	if err != nil {
		t.Fatalf("unexpected error resuming: %v", err)
	}
	if final.CurrentNode != "end" || final.Context["a_ran"] != true {
		t.Fatalf("expected resume to complete the remaining steps, got %+v", final)
	}
}
