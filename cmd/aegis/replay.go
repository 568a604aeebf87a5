package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/aegis-health/core/pkg/config"
	"github.com/aegis-health/core/pkg/errs"
	"github.com/aegis-health/core/pkg/killswitch"
	"github.com/aegis-health/core/pkg/toolregistry"
	"github.com/aegis-health/core/pkg/workflow"
)

// runReplay resumes a durable workflow execution from its last
// checkpoint, or from a specific step when --from-step is given. The
// graph definition itself isn't part of a checkpoint (node functions
// can't travel through a checkpoint blob), so the operator points at
// the same declarative YAML graph definition the execution originally
// ran against. Ad hoc Go node functions have no names to re-resolve
// outside the process that registered them, so the graph is loaded with
// no node functions or edge conditions and run with an empty tool
// registry: with or without --from-step, a graph whose nodes name an
// `fn` or whose edges name a `condition` fails to load, and a TOOL node
// ends the run with a dispatch error.
func runReplay(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fromStep := fs.Int("from-step", -1, "resume from this checkpoint step instead of the latest one")
	graphPath := fs.String("graph", "", "path to the YAML graph definition this execution ran against")
	if err := fs.Parse(args); err != nil {
		return &errs.Validation{Message: err.Error()}
	}
	rest := fs.Args()
	if len(rest) > 1 {
		// flag.Parse stops at the execution id; parse the flags after it too.
		if err := fs.Parse(rest[1:]); err != nil {
			return &errs.Validation{Message: err.Error()}
		}
		rest = append([]string{rest[0]}, fs.Args()...)
	}
	if len(rest) != 1 {
		return &errs.Validation{Message: "usage: aegis replay <execution_id> [--from-step N] --graph <path>"}
	}
	if *graphPath == "" {
		return &errs.Validation{Field: "graph", Message: "replay requires --graph pointing at the execution's graph definition"}
	}
	executionID := rest[0]

	graphDoc, err := os.ReadFile(*graphPath)
	if err != nil {
		return &errs.Validation{Field: "graph", Message: err.Error()}
	}
	graph, err := workflow.LoadGraph(graphDoc, nil, nil)
	if err != nil {
		return &errs.Validation{Field: "graph", Message: err.Error()}
	}

	store, err := workflow.NewFileCheckpointStore(cfg.CheckpointDir)
	if err != nil {
		return &errs.Integrity{Message: err.Error()}
	}

	ks := killswitch.New(killswitch.NewMemStore())
	runner := workflow.NewRunner(graph, store, ks, toolregistry.NewRegistry(), 0)

	var (
		state  *workflow.State
		runErr error
	)
	if *fromStep >= 0 {
		state, runErr = runner.ResumeFromStep(ctx, executionID, *fromStep)
	} else {
		state, runErr = runner.Resume(ctx, executionID)
	}

	var divergence *workflow.DivergenceInfo
	if errors.As(runErr, &divergence) {
		return &errs.Integrity{Message: divergence.Error()}
	}
	if runErr != nil {
		return &errs.Upstream{Provider: "workflow", Err: runErr}
	}

	fmt.Printf("execution %s replayed to node %q\n", executionID, state.CurrentNode)
	return nil
}
