package killswitch_test

import (
	"context"
	"testing"
	"time"

	"github.com/aegis-health/core/pkg/killswitch"
)

func TestIsActiveDefaultsTrueWhenNeverPaused(t *testing.T) {
	e := killswitch.New(killswitch.NewMemStore())
	active, err := e.IsActive(context.Background(), "care-gap-agent")
	if err != nil {
		t.Fatal(err)
	}
	if !active {
		t.Fatal("expected active=true for an agent never paused")
	}
}

func TestPauseThenResume(t *testing.T) {
	e := killswitch.New(killswitch.NewMemStore())
	ctx := context.Background()

	if err := e.Pause(ctx, "risk-agent", "ops-user", "incident-123", nil); err != nil {
		t.Fatal(err)
	}
	if active, _ := e.IsActive(ctx, "risk-agent"); active {
		t.Fatal("expected paused agent to be inactive")
	}

	if err := e.Resume(ctx, "risk-agent", "ops-user"); err != nil {
		t.Fatal(err)
	}
	if active, _ := e.IsActive(ctx, "risk-agent"); !active {
		t.Fatal("expected resumed agent to be active")
	}
}

func TestPauseAllPausesEveryAgent(t *testing.T) {
	e := killswitch.New(killswitch.NewMemStore())
	ctx := context.Background()

	if err := e.Pause(ctx, killswitch.AllAgents, "ops-user", "global freeze", nil); err != nil {
		t.Fatal(err)
	}
	if active, _ := e.IsActive(ctx, "any-agent-type"); active {
		t.Fatal("expected global pause to disable every agent type")
	}

	if err := e.Resume(ctx, killswitch.AllAgents, "ops-user"); err != nil {
		t.Fatal(err)
	}
	if active, _ := e.IsActive(ctx, "any-agent-type"); !active {
		t.Fatal("expected resume of \"all\" to re-enable agents")
	}
}

func TestScheduledResumeEnforcedLazilyOnNextCheck(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	e := killswitch.New(killswitch.NewMemStore()).WithClock(func() time.Time { return clock })
	ctx := context.Background()

	resumeAfter := 5 * time.Minute
	if err := e.Pause(ctx, "risk-agent", "ops-user", "maintenance", &resumeAfter); err != nil {
		t.Fatal(err)
	}
	if active, _ := e.IsActive(ctx, "risk-agent"); active {
		t.Fatal("expected still paused before resume_after elapses")
	}

	clock = now.Add(6 * time.Minute)
	if active, err := e.IsActive(ctx, "risk-agent"); err != nil || !active {
		t.Fatalf("expected lazy auto-resume past the scheduled time, active=%v err=%v", active, err)
	}
}
