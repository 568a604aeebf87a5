package connector

import "testing"

func TestRegistryResolveUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Resolve(SourceFHIR); err == nil {
		t.Fatal("expected error resolving unregistered source type")
	}
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	r.Register(NewFHIRConnector(100, 10))
	c, err := r.Resolve(SourceFHIR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Type() != SourceFHIR {
		t.Fatalf("expected fhir connector, got %s", c.Type())
	}
}
