// Package pbac implements purpose-based access control: role, resource,
// purpose, and action must all match a Policy, plus any CEL
// side-condition, for a request to be allowed. Adapted from the
// teacher's pkg/governance.PolicyDecisionPoint — same
// PDPRequest/PDPResponse/DecisionTrace/fail-closed-on-cancel shape,
// generalized from the teacher's effect/intent/approval vocabulary to
// this platform's role/resource/purpose/action vocabulary, and from a
// hardcoded allowlist to declarative, priority-ordered Policy matching.
package pbac

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/aegis-health/core/pkg/tenant"
)

// Decision is the outcome of a policy evaluation.
type Decision string

const (
	DecisionAllow Decision = "ALLOW"
	DecisionDeny  Decision = "DENY"
)

// AccessContext describes one access attempt to be decided.
type AccessContext struct {
	User          string
	Roles         []string
	TenantID      string
	ResourceType  string
	ResourceID    string
	Action        string
	Purpose       tenant.Purpose
	PurposeDetail string
	IP            string
	PatientID     string
	Emergency     bool
}

// Policy is one declarative access rule. Lower Priority values are
// evaluated first; the first match decides.
type Policy struct {
	ID        string
	Priority  int
	Roles     []string // "*" matches any role
	Resources []string // glob: "*", "Patient/*", "*Observation"
	Purposes  []string // "*" matches any purpose
	Actions   []string // "*" matches any action
	Condition string   // optional CEL expression evaluated against the AccessContext
}

// DecisionTrace makes a decision explainable after the fact.
type DecisionTrace struct {
	RulesFired []string
	InputsHash string
}

// Result is the outcome of one Evaluate call.
type Result struct {
	Decision        Decision
	MatchedPolicyID string
	Trace           DecisionTrace
	EmergencyGrant  bool
}

// Engine evaluates AccessContext values against a priority-ordered
// policy set, with CEL side-conditions cached by compiled program.
type Engine struct {
	mu       sync.RWMutex
	policies []Policy
	env      *cel.Env
	prgCache map[string]cel.Program
}

// NewEngine compiles a CEL environment over an AccessContext-shaped
// dynamic map and sorts policies by ascending priority.
func NewEngine(policies []Policy) (*Engine, error) {
	env, err := cel.NewEnv(cel.Variable("ctx", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("pbac: create CEL environment: %w", err)
	}

	sorted := make([]Policy, len(policies))
	copy(sorted, policies)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	return &Engine{policies: sorted, env: env, prgCache: make(map[string]cel.Program)}, nil
}

// Evaluate runs the cascade: emergency override, then priority-ordered
// policy match, default-deny if nothing matches. Cancellation is
// fail-closed — a cancelled context always denies.
func (e *Engine) Evaluate(ctx context.Context, ac AccessContext) (*Result, error) {
	inputsHash := hashContext(ac)

	if err := ctx.Err(); err != nil {
		return &Result{
			Decision: DecisionDeny,
			Trace:    DecisionTrace{RulesFired: []string{"system.deny.context_cancellation"}, InputsHash: inputsHash},
		}, err
	}

	if ac.Purpose == tenant.PurposeEmergency && ac.Emergency && ac.Action == "read" {
		return &Result{
			Decision:       DecisionAllow,
			Trace:          DecisionTrace{RulesFired: []string{"system.allow.emergency_override"}, InputsHash: inputsHash},
			EmergencyGrant: true,
		}, nil
	}

	e.mu.RLock()
	policies := e.policies
	e.mu.RUnlock()

	for _, p := range policies {
		if !matchesAny(p.Roles, ac.Roles) {
			continue
		}
		if !matchGlobAny(p.Resources, ac.ResourceType) {
			continue
		}
		if !containsOrWildcard(p.Purposes, string(ac.Purpose)) {
			continue
		}
		if !containsOrWildcard(p.Actions, ac.Action) {
			continue
		}
		if p.Condition != "" {
			ok, err := e.evalCondition(p.Condition, ac)
			if err != nil {
				return &Result{
					Decision: DecisionDeny,
					Trace:    DecisionTrace{RulesFired: []string{"system.deny.condition_error." + p.ID}, InputsHash: inputsHash},
				}, fmt.Errorf("pbac: evaluate condition for policy %s: %w", p.ID, err)
			}
			if !ok {
				continue
			}
		}
		return &Result{
			Decision:        DecisionAllow,
			MatchedPolicyID: p.ID,
			Trace:           DecisionTrace{RulesFired: []string{"policy.allow." + p.ID}, InputsHash: inputsHash},
		}, nil
	}

	return &Result{
		Decision: DecisionDeny,
		Trace:    DecisionTrace{RulesFired: []string{"system.deny.default"}, InputsHash: inputsHash},
	}, nil
}

func (e *Engine) evalCondition(expr string, ac AccessContext) (bool, error) {
	e.mu.RLock()
	prg, hit := e.prgCache[expr]
	e.mu.RUnlock()

	if !hit {
		e.mu.Lock()
		if prg, hit = e.prgCache[expr]; !hit {
			ast, issues := e.env.Compile(expr)
			if issues != nil && issues.Err() != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("compile: %w", issues.Err())
			}
			p, err := e.env.Program(ast, cel.InterruptCheckFrequency(100), cel.CostLimit(10000))
			if err != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("program: %w", err)
			}
			e.prgCache[expr] = p
			prg = p
		}
		e.mu.Unlock()
	}

	input := map[string]any{"ctx": map[string]any{
		"user": ac.User, "roles": ac.Roles, "tenant_id": ac.TenantID,
		"resource_type": ac.ResourceType, "resource_id": ac.ResourceID, "action": ac.Action,
		"purpose": string(ac.Purpose), "ip": ac.IP, "patient_id": ac.PatientID,
	}}
	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition did not evaluate to bool")
	}
	return val, nil
}

func matchesAny(allowed, have []string) bool {
	for _, a := range allowed {
		if a == "*" {
			return true
		}
		for _, h := range have {
			if a == h {
				return true
			}
		}
	}
	return false
}

func containsOrWildcard(allowed []string, value string) bool {
	for _, a := range allowed {
		if a == "*" || a == value {
			return true
		}
	}
	return false
}

// matchGlob supports "*", a prefix glob "foo*", a suffix glob "*foo",
// or an exact match.
func matchGlob(pattern, value string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*") && strings.HasPrefix(pattern, "*"):
		return strings.Contains(value, strings.Trim(pattern, "*"))
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(value, strings.TrimPrefix(pattern, "*"))
	default:
		return pattern == value
	}
}

func matchGlobAny(patterns []string, value string) bool {
	for _, p := range patterns {
		if matchGlob(p, value) {
			return true
		}
	}
	return false
}

func hashContext(ac AccessContext) string {
	data, _ := json.Marshal(ac)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
