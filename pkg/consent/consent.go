// Package consent implements the deny-precedence consent decision
// engine: given a patient, an action, a purpose, and the data
// categories an access would touch, decide whether an active consent
// permits it. Grounded on pkg/governance/pdp.go's ordered-rule,
// first-terminal-decision evaluation shape, adapted from PBAC's
// first-match-wins semantics to consent's permit-accumulate /
// deny-short-circuits semantics (§4.6).
package consent

import (
	"fmt"
	"sync"
	"time"

	"github.com/aegis-health/core/pkg/entity"
)

const scopeTreatment = "TREATMENT"

// Request is one consent check: does a patient's consent permit this
// actor to perform this action, for this purpose, touching these
// data categories, right now?
type Request struct {
	PatientID      string
	Action         string
	Purpose        string
	Actor          string
	DataCategories []string
	Now            time.Time
}

// Decision is the outcome of evaluating a Request against a patient's
// consents.
type Decision struct {
	Allowed           bool
	ConsentID         string
	Reason            string
	ProvisionsApplied []int
	Restrictions      []string
}

// Store resolves a patient's consent records. MapStore is the
// in-memory reference implementation; production deployments back
// this with the same graph store the ingestion orchestrator writes
// Consent/Provision vertices into.
type Store interface {
	ConsentsForPatient(patientID string) []entity.Consent
}

// MapStore is a concurrency-safe in-memory Store.
type MapStore struct {
	mu        sync.RWMutex
	byPatient map[string][]entity.Consent
}

func NewMapStore() *MapStore {
	return &MapStore{byPatient: make(map[string][]entity.Consent)}
}

// Put upserts a consent record, replacing any prior record with the
// same ID for the same patient.
func (s *MapStore) Put(c entity.Consent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.byPatient[c.PatientID]
	for i, e := range existing {
		if e.ID == c.ID {
			existing[i] = c
			return
		}
	}
	s.byPatient[c.PatientID] = append(existing, c)
}

func (s *MapStore) ConsentsForPatient(patientID string) []entity.Consent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.Consent, len(s.byPatient[patientID]))
	copy(out, s.byPatient[patientID])
	return out
}

// Engine decides consent requests against a Store.
type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Decide runs the consent cascade (§4.6):
//  1. select ACTIVE consents for the patient
//  2. filter by scope == purpose, falling back to TREATMENT scope
//  3. walk provisions: a matching deny short-circuits; matching
//     permits accumulate; no matching permit defaults to deny; a
//     consent with no provisions defaults to permit under its scope.
func (e *Engine) Decide(req Request) Decision {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	all := e.store.ConsentsForPatient(req.PatientID)
	active := make([]entity.Consent, 0, len(all))
	for _, c := range all {
		if c.Status == "ACTIVE" {
			active = append(active, c)
		}
	}
	if len(active) == 0 {
		return Decision{Allowed: false, Reason: "no active consent on file"}
	}

	scoped := filterByScope(active, req.Purpose)
	if len(scoped) == 0 {
		scoped = filterByScope(active, scopeTreatment)
	}
	if len(scoped) == 0 {
		return Decision{Allowed: false, Reason: fmt.Sprintf("no active consent scoped to purpose %q or fallback %q", req.Purpose, scopeTreatment)}
	}

	permitted := false
	var permittedConsentID string
	var applied []int
	var restrictions []string

	for _, c := range scoped {
		if len(c.Provisions) == 0 {
			return Decision{Allowed: true, ConsentID: c.ID, Reason: "consent has no provisions; default permit under scope"}
		}
		for i, p := range c.Provisions {
			if !provisionMatches(p, req, now) {
				continue
			}
			if p.Type == entity.ProvisionDeny {
				return Decision{
					Allowed: false, ConsentID: c.ID,
					Reason:            "denied by provision",
					ProvisionsApplied: []int{i},
				}
			}
			permitted = true
			permittedConsentID = c.ID
			applied = append(applied, i)
			restrictions = append(restrictions, p.DataCategories...)
		}
	}

	if !permitted {
		return Decision{Allowed: false, Reason: "no matching permit provision"}
	}
	return Decision{
		Allowed:           true,
		ConsentID:         permittedConsentID,
		Reason:            "matched permit provision",
		ProvisionsApplied: applied,
		Restrictions:      dedupe(restrictions),
	}
}

func filterByScope(consents []entity.Consent, scope string) []entity.Consent {
	out := make([]entity.Consent, 0, len(consents))
	for _, c := range consents {
		if c.Scope == scope {
			out = append(out, c)
		}
	}
	return out
}

func provisionMatches(p entity.Provision, req Request, now time.Time) bool {
	if len(p.Actions) > 0 && !containsOrStar(p.Actions, req.Action) {
		return false
	}
	if len(p.Purposes) > 0 && !containsOrStar(p.Purposes, req.Purpose) {
		return false
	}
	if len(p.DataCategories) > 0 && !overlaps(p.DataCategories, req.DataCategories) {
		return false
	}
	if len(p.Actors) > 0 && req.Actor != "" && !containsOrStar(p.Actors, req.Actor) {
		return false
	}
	if p.PeriodStart != nil && now.Before(*p.PeriodStart) {
		return false
	}
	if p.PeriodEnd != nil && !now.Before(*p.PeriodEnd) {
		return false
	}
	return true
}

func containsOrStar(values []string, v string) bool {
	for _, x := range values {
		if x == "*" || x == v {
			return true
		}
	}
	return false
}

func overlaps(a, b []string) bool {
	if len(b) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(a))
	for _, x := range a {
		set[x] = struct{}{}
	}
	for _, x := range b {
		if _, ok := set[x]; ok {
			return true
		}
	}
	return false
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
