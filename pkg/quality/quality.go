// Package quality implements the data quality validator: declarative
// per-entity rule sets built from small constructor functions, mirroring
// the teacher's declarative-option-struct convention (pkg/tiers.Tier).
package quality

import (
	"fmt"
	"regexp"

	"github.com/aegis-health/core/pkg/entity"
)

// Severity classifies how a failed rule affects the record.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// Category groups rules by the kind of quality concern they check.
type Category string

const (
	CategoryCompleteness Category = "completeness"
	CategoryConformance  Category = "conformance"
	CategoryConsistency  Category = "consistency"
	CategoryAccuracy     Category = "accuracy"
)

// Result is the outcome of running one Rule against one Vertex.
type Result struct {
	RuleID   string
	Passed   bool
	Severity Severity
	Category Category
	Field    string
	Expected string
	Actual   any
	Message  string
}

// Rule is a single declarative check against an entity.Vertex.
type Rule struct {
	ID       string
	Category Category
	Severity Severity
	Field    string
	Expected string
	check    func(v entity.Vertex) (passed bool, actual any, message string)
}

func (r Rule) run(v entity.Vertex) Result {
	passed, actual, message := r.check(v)
	return Result{
		RuleID: r.ID, Passed: passed, Severity: r.Severity, Category: r.Category,
		Field: r.Field, Expected: r.Expected, Actual: actual, Message: message,
	}
}

// RequiredField fails when the named field is absent, nil, or an empty string.
func RequiredField(id, field string) Rule {
	return Rule{
		ID: id, Category: CategoryCompleteness, Severity: SeverityError,
		Field: field, Expected: "non-empty",
		check: func(v entity.Vertex) (bool, any, string) {
			val, ok := v.Fields[field]
			if !ok || val == nil {
				return false, nil, fmt.Sprintf("%s: required field missing", field)
			}
			if s, isStr := val.(string); isStr && s == "" {
				return false, val, fmt.Sprintf("%s: required field empty", field)
			}
			return true, val, ""
		},
	}
}

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(T\d{2}:\d{2}:\d{2}Z?)?$`)

// DateFormat fails when the named field, if present, does not match an
// ISO-8601 date or date-time string.
func DateFormat(id, field string, severity Severity) Rule {
	return Rule{
		ID: id, Category: CategoryConformance, Severity: severity,
		Field: field, Expected: "ISO-8601 date",
		check: func(v entity.Vertex) (bool, any, string) {
			val, ok := v.Fields[field]
			if !ok || val == nil {
				return true, nil, "" // absence handled by RequiredField
			}
			s, isStr := val.(string)
			if !isStr || !isoDatePattern.MatchString(s) {
				return false, val, fmt.Sprintf("%s: not an ISO-8601 date", field)
			}
			return true, val, ""
		},
	}
}

// NumericRange fails when the named numeric field falls outside [min, max].
func NumericRange(id, field string, min, max float64, severity Severity) Rule {
	return Rule{
		ID: id, Category: CategoryAccuracy, Severity: severity,
		Field: field, Expected: fmt.Sprintf("[%g, %g]", min, max),
		check: func(v entity.Vertex) (bool, any, string) {
			val, ok := v.Fields[field]
			if !ok || val == nil {
				return true, nil, ""
			}
			n, isNum := toFloat(val)
			if !isNum {
				return false, val, fmt.Sprintf("%s: not numeric", field)
			}
			if n < min || n > max {
				return false, n, fmt.Sprintf("%s: %g out of range %s", field, n, fmt.Sprintf("[%g, %g]", min, max))
			}
			return true, n, ""
		},
	}
}

// CodeInSet fails when the named field's value is not one of allowed.
func CodeInSet(id, field string, allowed []string, severity Severity) Rule {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return Rule{
		ID: id, Category: CategoryConformance, Severity: severity,
		Field: field, Expected: fmt.Sprintf("one of %v", allowed),
		check: func(v entity.Vertex) (bool, any, string) {
			val, ok := v.Fields[field]
			if !ok || val == nil {
				return true, nil, ""
			}
			s, _ := val.(string)
			if _, inSet := set[s]; !inSet {
				return false, val, fmt.Sprintf("%s: %q not in allowed set", field, s)
			}
			return true, val, ""
		},
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// RuleSet is the ordered collection of rules for one entity label.
type RuleSet []Rule

// Validator holds a RuleSet per entity.Label and runs them on demand.
type Validator struct {
	rules map[entity.Label]RuleSet
}

// NewValidator builds a Validator from a label -> RuleSet map.
func NewValidator(rules map[entity.Label]RuleSet) *Validator {
	return &Validator{rules: rules}
}

// Validate runs every registered rule for the vertex's label. A label
// with no registered RuleSet always passes with no results.
func (val *Validator) Validate(v entity.Vertex) []Result {
	set, ok := val.rules[v.Label]
	if !ok {
		return nil
	}
	results := make([]Result, 0, len(set))
	for _, r := range set {
		results = append(results, r.run(v))
	}
	return results
}

// HasError reports whether any result carries ERROR severity and failed.
func HasError(results []Result) bool {
	for _, r := range results {
		if !r.Passed && r.Severity == SeverityError {
			return true
		}
	}
	return false
}
