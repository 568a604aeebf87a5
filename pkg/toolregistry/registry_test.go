package toolregistry_test

import (
	"context"
	"testing"

	"github.com/aegis-health/core/pkg/toolregistry"
)

func TestDispatchInvokesRegisteredHandler(t *testing.T) {
	r := toolregistry.NewRegistry()
	r.Register(toolregistry.ToolDescriptor{
		Name: "lookup_patient",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"patient_id": args["patient_id"]}, nil
		},
	})

	result, err := r.Dispatch(context.Background(), "lookup_patient", map[string]any{"patient_id": "P1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := result.(map[string]any)
	if m["patient_id"] != "P1" {
		t.Fatalf("unexpected result: %+v", m)
	}
}

func TestDispatchUnregisteredToolErrors(t *testing.T) {
	r := toolregistry.NewRegistry()
	_, err := r.Dispatch(context.Background(), "unknown_tool", nil)
	if err == nil {
		t.Fatal("expected an error for an unregistered tool")
	}
}

func TestNamesListsRegisteredTools(t *testing.T) {
	r := toolregistry.NewRegistry()
	r.Register(toolregistry.ToolDescriptor{Name: "a", Handler: func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }})
	r.Register(toolregistry.ToolDescriptor{Name: "b", Handler: func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }})

	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 registered tool names, got %d", len(names))
	}
}
