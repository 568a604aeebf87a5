package normalize

import (
	"context"
	"testing"

	"github.com/aegis-health/core/pkg/entity"
	"github.com/aegis-health/core/pkg/llm"
	"github.com/aegis-health/core/pkg/terminology"
)

type fakeClient struct {
	content string
	err     error
}

func (f *fakeClient) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, options *llm.SamplingOptions) (*llm.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.content}, nil
}

func newTermsWithGlucose() *terminology.Service {
	s := terminology.New()
	s.LoadCodes([]terminology.CodeEntry{
		{System: terminology.SystemLOINC, Code: "2345-7", Display: "Glucose"},
	})
	return s
}

func TestResolveKBHitShortCircuits(t *testing.T) {
	terms := newTermsWithGlucose()
	terms.PutVerifiedMapping(entity.VerifiedMapping{
		SourceSystem: "legacy-ehr", LocalCode: "GLU", StdCode: "2345-7", StdSystem: "LOINC", Confidence: 1.0,
	})
	e := NewEngine(terms, &fakeClient{content: `should not be called`})

	m, err := e.Resolve(context.Background(), "legacy-ehr", "GLU", "glucose test", terminology.SystemLOINC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Method != MethodExpertVerified || m.Confidence != 1.0 {
		t.Fatalf("expected expert_verified mapping, got %+v", m)
	}
}

func TestResolveExactMatch(t *testing.T) {
	terms := newTermsWithGlucose()
	e := NewEngine(terms, nil)

	m, err := e.Resolve(context.Background(), "legacy-ehr", "2345-7", "glucose", terminology.SystemLOINC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Method != MethodExact {
		t.Fatalf("expected exact mapping, got %+v", m)
	}
}

func TestResolveNoClientFallsBackToNil(t *testing.T) {
	terms := newTermsWithGlucose()
	e := NewEngine(terms, nil)

	m, err := e.Resolve(context.Background(), "legacy-ehr", "UNKNOWN", "mystery", terminology.SystemLOINC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Fatalf("expected nil mapping without a client, got %+v", m)
	}
}

func TestResolveLLMValidatedMatch(t *testing.T) {
	terms := newTermsWithGlucose()
	e := NewEngine(terms, &fakeClient{content: `{"standard_code": "2345-7", "standard_description": "Glucose", "confidence": 0.9, "reasoning": "close synonym"}`})

	m, err := e.Resolve(context.Background(), "legacy-ehr", "GLUC", "glucose level", terminology.SystemLOINC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Method != MethodLLM || m.Confidence != 0.9 {
		t.Fatalf("expected validated llm mapping, got %+v", m)
	}
}

func TestResolveLLMUnvalidatedCodeKeptForReview(t *testing.T) {
	terms := newTermsWithGlucose()
	e := NewEngine(terms, &fakeClient{content: `{"standard_code": "9999-9", "standard_description": "Unknown", "confidence": 0.4, "reasoning": "guess"}`})

	m, err := e.Resolve(context.Background(), "legacy-ehr", "GLUC", "glucose level", terminology.SystemLOINC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Method != MethodLLMUnverified || m.Confidence != 0 || !m.NeedsReview {
		t.Fatalf("expected llm_unverified with confidence 0 and needs_review, got %+v", m)
	}
}

func TestResolveLLMUnparseableResponseKeptForReview(t *testing.T) {
	terms := newTermsWithGlucose()
	e := NewEngine(terms, &fakeClient{content: "not json"})

	m, err := e.Resolve(context.Background(), "legacy-ehr", "GLUC", "glucose level", terminology.SystemLOINC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Method != MethodLLMUnverified || !m.NeedsReview {
		t.Fatalf("expected llm_unverified for unparseable response, got %+v", m)
	}
}
