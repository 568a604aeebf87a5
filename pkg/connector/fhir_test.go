package connector

import (
	"context"
	"testing"
)

func TestFHIRParsePatientBundle(t *testing.T) {
	c := NewFHIRConnector(100, 10)
	payload := []byte(`{
		"resourceType": "Bundle",
		"entry": [
			{"resource": {"resourceType": "Patient", "id": "P1", "gender": "female"}}
		]
	}`)

	if errs := c.Validate(payload); len(errs) != 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}

	result, err := c.Parse(context.Background(), "tenant-a", "epic", payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, errors: %v", result.Errors)
	}
	if len(result.Vertices) != 1 {
		t.Fatalf("expected 1 vertex, got %d", len(result.Vertices))
	}
	if result.Vertices[0].Label != "Patient" || result.Vertices[0].ID != "Patient/P1" {
		t.Fatalf("unexpected vertex: %+v", result.Vertices[0])
	}
}

func TestFHIRParseEncounterWithSubjectEdge(t *testing.T) {
	c := NewFHIRConnector(100, 10)
	payload := []byte(`{
		"resourceType": "Bundle",
		"entry": [
			{"resource": {"resourceType": "Encounter", "id": "E1", "status": "in-progress", "subject": {"reference": "Patient/P1"}}}
		]
	}`)

	result, err := c.Parse(context.Background(), "tenant-a", "epic", payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(result.Edges))
	}
	if result.Edges[0].FromID != "Patient/P1" || result.Edges[0].ToID != "Encounter/E1" {
		t.Fatalf("unexpected edge: %+v", result.Edges[0])
	}
}

func TestFHIRParseUnknownResourceWarns(t *testing.T) {
	c := NewFHIRConnector(100, 10)
	payload := []byte(`{"resourceType": "Bundle", "entry": [{"resource": {"resourceType": "Immunization", "id": "I1"}}]}`)

	result, err := c.Parse(context.Background(), "tenant-a", "epic", payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Vertices) != 0 {
		t.Fatalf("expected no vertices for unsupported resource type")
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(result.Warnings))
	}
}

func TestFHIRValidateRejectsNonBundle(t *testing.T) {
	c := NewFHIRConnector(100, 10)
	errs := c.Validate([]byte(`{"resourceType": "Patient"}`))
	if len(errs) == 0 {
		t.Fatal("expected validation error for non-Bundle payload")
	}
}
