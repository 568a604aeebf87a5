// Package normalize implements the semantic normalization cascade that
// maps a connector's local code to a standard terminology code: a
// verified-mapping knowledge base hit, then an exact terminology match,
// then an LLM fuzzy fallback. The LLM step reuses the teacher's
// llm.Client chat interface rather than a bespoke embedding client.
package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aegis-health/core/pkg/llm"
	"github.com/aegis-health/core/pkg/terminology"
)

// Method identifies which cascade stage produced a CodeMapping.
type Method string

const (
	MethodExpertVerified Method = "expert_verified"
	MethodExact          Method = "exact"
	MethodLLM            Method = "llm"
	MethodLLMUnverified  Method = "llm_unverified"
)

// CodeMapping is the result of resolving a local code to a standard one.
type CodeMapping struct {
	LocalCode        string
	LocalDescription string
	StandardSystem   terminology.CodeSystem
	StandardCode     string
	StandardDesc     string
	Confidence       float64
	Method           Method
	NeedsReview      bool
	Reasoning        string
}

// Engine runs the KB-hit -> exact -> LLM-fuzzy resolution cascade.
type Engine struct {
	terms  *terminology.Service
	client llm.Client
}

// NewEngine builds a normalization Engine. client may be nil, in which
// case the cascade stops after the exact-match stage (fallback step 4).
func NewEngine(terms *terminology.Service, client llm.Client) *Engine {
	return &Engine{terms: terms, client: client}
}

// Resolve runs the full cascade for one (source_system, local_code).
// Returns (nil, nil) when no mapping could be produced and no client was
// configured to attempt one — callers keep the local code unchanged and
// mark the record for review.
func (e *Engine) Resolve(ctx context.Context, sourceSystem, localCode, localDescription string, target terminology.CodeSystem) (*CodeMapping, error) {
	if m, ok := e.terms.GetVerifiedMapping(sourceSystem, localCode); ok {
		return &CodeMapping{
			LocalCode: localCode, LocalDescription: localDescription,
			StandardSystem: terminology.CodeSystem(m.StdSystem), StandardCode: m.StdCode, StandardDesc: m.StdDesc,
			Confidence: 1.0, Method: MethodExpertVerified,
		}, nil
	}

	if entry, ok := e.terms.Lookup(target, localCode); ok {
		return &CodeMapping{
			LocalCode: localCode, LocalDescription: localDescription,
			StandardSystem: target, StandardCode: entry.Code, StandardDesc: entry.Display,
			Confidence: 1.0, Method: MethodExact,
		}, nil
	}

	if e.client == nil {
		return nil, nil
	}

	return e.resolveViaLLM(ctx, localCode, localDescription, target)
}

type llmFuzzyResult struct {
	StandardCode        string  `json:"standard_code"`
	StandardDescription string  `json:"standard_description"`
	Confidence           float64 `json:"confidence"`
	Reasoning            string  `json:"reasoning"`
}

func (e *Engine) resolveViaLLM(ctx context.Context, localCode, localDescription string, target terminology.CodeSystem) (*CodeMapping, error) {
	prompt := fmt.Sprintf(
		`Map the local code %q (description: %q) to the closest %s standard code. `+
			`Respond with JSON only: {"standard_code": "...", "standard_description": "...", "confidence": 0.0-1.0, "reasoning": "..."}.`,
		localCode, localDescription, target)

	resp, err := e.client.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("normalize: llm fuzzy match: %w", err)
	}

	var parsed llmFuzzyResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Content)), &parsed); err != nil {
		return &CodeMapping{
			LocalCode: localCode, LocalDescription: localDescription,
			StandardSystem: target, Method: MethodLLMUnverified, Confidence: 0, NeedsReview: true,
			Reasoning: "unparseable LLM response",
		}, nil
	}

	if !e.terms.Validate(target, parsed.StandardCode) {
		return &CodeMapping{
			LocalCode: localCode, LocalDescription: localDescription,
			StandardSystem: target, StandardCode: parsed.StandardCode, StandardDesc: parsed.StandardDescription,
			Method: MethodLLMUnverified, Confidence: 0, NeedsReview: true, Reasoning: parsed.Reasoning,
		}, nil
	}

	return &CodeMapping{
		LocalCode: localCode, LocalDescription: localDescription,
		StandardSystem: target, StandardCode: parsed.StandardCode, StandardDesc: parsed.StandardDescription,
		Method: MethodLLM, Confidence: parsed.Confidence, Reasoning: parsed.Reasoning,
	}, nil
}
