package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aegis-health/core/pkg/metering"
	"github.com/aegis-health/core/pkg/store"
)

// Gateway fans out a chat request across an ordered list of provider
// slots, tries each in order until one succeeds, and meters completed
// attempts. Generalizes router.go's fixed fast/smart pair into an
// arbitrary-length ordered failover chain (§4.7); each slot gets its
// own circuit breaker so a provider tripped open is skipped without a
// network round trip until its cooldown elapses.
//
// An optional airgap cache (store.AirgapStore) backs the chain as a
// last resort: when every provider slot fails, Chat serves the most
// recent successful response for the same tenant+prompt if one was
// cached, rather than failing a request a prior identical call already
// answered. This absorbs immunity_verifier.go's airgap-fallback
// concern directly into the failover path it always belonged next to.
type Gateway struct {
	slots           []*ProviderSlot
	meter           metering.Meter
	inputGuardrail  Guardrail
	outputGuardrail Guardrail
	airgap          *store.AirgapStore
}

// WithAirgap attaches an airgap cache used as a last-resort fallback
// once every provider slot in the chain has failed.
func (g *Gateway) WithAirgap(airgap *store.AirgapStore) *Gateway {
	g.airgap = airgap
	return g
}

// GuardrailBlockedError is returned when a guardrail blocks a request
// or response. Callers should treat this as terminal — no fallback
// provider is tried once a guardrail blocks.
type GuardrailBlockedError struct {
	Direction string // "input" | "output"
	Reason    string
}

func (e *GuardrailBlockedError) Error() string {
	return fmt.Sprintf("llm: %s guardrail blocked request: %s", e.Direction, e.Reason)
}

// Guardrail inspects text before it leaves the gateway (direction
// "input") or before it is returned to the caller (direction
// "output"). A PHI-redaction implementation lives in pkg/redact; the
// gateway only depends on this narrow interface so it has no import
// dependency on that package.
type Guardrail interface {
	Check(ctx context.Context, direction string, text string) (blocked bool, reason string, err error)
}

// ProviderSlot is one entry in the gateway's ordered failover chain:
// a named Client wrapped in its own circuit breaker, with the
// per-token pricing needed to accumulate total_cost_usd.
type ProviderSlot struct {
	Name                    string
	Client                  Client
	PricePerPromptToken     float64
	PricePerCompletionToken float64
	breaker                 *gobreaker.CircuitBreaker
}

// NewProviderSlot wraps client in a circuit breaker that trips open
// after 5 consecutive failures and allows one trial request after a
// 30s cooldown.
func NewProviderSlot(name string, client Client, pricePerPromptToken, pricePerCompletionToken float64) *ProviderSlot {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &ProviderSlot{
		Name: name, Client: client,
		PricePerPromptToken: pricePerPromptToken, PricePerCompletionToken: pricePerCompletionToken,
		breaker: breaker,
	}
}

func (s *ProviderSlot) cost(u Usage) float64 {
	return float64(u.PromptTokens)*s.PricePerPromptToken + float64(u.CompletionTokens)*s.PricePerCompletionToken
}

// NewGateway builds a Gateway over an ordered provider chain. meter
// may be nil to disable usage accounting; either guardrail may be nil
// to skip that check.
func NewGateway(slots []*ProviderSlot, meter metering.Meter, inputGuardrail, outputGuardrail Guardrail) *Gateway {
	return &Gateway{slots: slots, meter: meter, inputGuardrail: inputGuardrail, outputGuardrail: outputGuardrail}
}

// Chat tries each provider slot in order. A rate-limit or transient
// provider error falls through to the next slot; a caller
// cancellation (ctx.Err() != nil) aborts the whole chain immediately
// without metering, per Open Question 2 — a cancelled call produced no
// billable provider usage. Completed attempts, success or
// provider-reported failure, are always metered.
func (g *Gateway) Chat(ctx context.Context, tenantID string, msgs []Message, tools []ToolDefinition, options *SamplingOptions) (*Response, error) {
	if g.inputGuardrail != nil && len(msgs) > 0 {
		blocked, reason, err := g.inputGuardrail.Check(ctx, "input", msgs[len(msgs)-1].Content)
		if err != nil {
			return nil, fmt.Errorf("llm: input guardrail check: %w", err)
		}
		if blocked {
			return nil, &GuardrailBlockedError{Direction: "input", Reason: reason}
		}
	}

	if len(g.slots) == 0 {
		return nil, fmt.Errorf("llm: no provider slots configured")
	}

	var lastErr error
	for _, slot := range g.slots {
		result, err := slot.breaker.Execute(func() (any, error) {
			return slot.Client.Chat(ctx, msgs, tools, options)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.recordAttempt(ctx, tenantID, slot, Usage{}, false)
			lastErr = err
			continue
		}

		resp := result.(*Response)
		g.recordAttempt(ctx, tenantID, slot, resp.Usage, true)

		if g.outputGuardrail != nil {
			blocked, reason, gerr := g.outputGuardrail.Check(ctx, "output", resp.Content)
			if gerr != nil {
				return nil, fmt.Errorf("llm: output guardrail check: %w", gerr)
			}
			if blocked {
				return nil, &GuardrailBlockedError{Direction: "output", Reason: reason}
			}
		}

		if g.airgap != nil {
			if data, merr := json.Marshal(resp); merr == nil {
				_ = g.airgap.Put(ctx, airgapKey(tenantID, msgs), data)
			}
		}
		return resp, nil
	}

	if g.airgap != nil {
		if data, gerr := g.airgap.Get(ctx, airgapKey(tenantID, msgs)); gerr == nil {
			var resp Response
			if json.Unmarshal(data, &resp) == nil {
				return &resp, nil
			}
		}
	}

	return nil, fmt.Errorf("llm: all providers exhausted, last error: %w", lastErr)
}

// airgapKey derives a stable cache key for a tenant+prompt pair. The
// key only needs to collide on identical requests, not resist
// tampering, so a plain content hash is enough.
func airgapKey(tenantID string, msgs []Message) string {
	h := sha256.New()
	h.Write([]byte(tenantID))
	for _, m := range msgs {
		h.Write([]byte(m.Role))
		h.Write([]byte(m.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (g *Gateway) recordAttempt(ctx context.Context, tenantID string, slot *ProviderSlot, usage Usage, success bool) {
	if g.meter == nil || tenantID == "" {
		return
	}
	now := time.Now()
	outcome := "error"
	if success {
		outcome = "success"
	}
	events := []metering.Event{
		{TenantID: tenantID, EventType: metering.EventRequest, Quantity: 1, Timestamp: now,
			Metadata: map[string]any{"provider": slot.Name, "outcome": outcome}},
	}
	if success && usage.TotalTokens() > 0 {
		events = append(events, metering.Event{
			TenantID: tenantID, EventType: metering.EventLLMToken, Quantity: usage.TotalTokens(), Timestamp: now,
			Metadata: map[string]any{"provider": slot.Name, "cost_usd": slot.cost(usage)},
		})
	}
	_ = g.meter.RecordBatch(ctx, events)
}
