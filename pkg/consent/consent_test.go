package consent_test

import (
	"testing"
	"time"

	"github.com/aegis-health/core/pkg/consent"
	"github.com/aegis-health/core/pkg/entity"
)

func TestDecideNoActiveConsentDenies(t *testing.T) {
	store := consent.NewMapStore()
	eng := consent.NewEngine(store)
	d := eng.Decide(consent.Request{PatientID: "P1", Action: "read", Purpose: "treatment"})
	if d.Allowed {
		t.Fatal("expected deny with no consent on file")
	}
}

func TestDecideConsentWithNoProvisionsDefaultPermits(t *testing.T) {
	store := consent.NewMapStore()
	store.Put(entity.Consent{ID: "C1", PatientID: "P1", Status: "ACTIVE", Scope: "TREATMENT"})
	eng := consent.NewEngine(store)

	d := eng.Decide(consent.Request{PatientID: "P1", Action: "read", Purpose: "treatment"})
	if !d.Allowed || d.ConsentID != "C1" {
		t.Fatalf("expected default permit under scope, got %+v", d)
	}
}

func TestDecideDenyProvisionShortCircuitsOverPermit(t *testing.T) {
	store := consent.NewMapStore()
	store.Put(entity.Consent{
		ID: "C1", PatientID: "P1", Status: "ACTIVE", Scope: "TREATMENT",
		Provisions: []entity.Provision{
			{Type: entity.ProvisionPermit, Actions: []string{"read"}, Purposes: []string{"treatment"}},
			{Type: entity.ProvisionDeny, Actions: []string{"read"}, Purposes: []string{"treatment"}, DataCategories: []string{"substance_abuse"}},
		},
	})
	eng := consent.NewEngine(store)

	d := eng.Decide(consent.Request{
		PatientID: "P1", Action: "read", Purpose: "treatment",
		DataCategories: []string{"substance_abuse"},
	})
	if d.Allowed {
		t.Fatalf("expected deny provision to win, got %+v", d)
	}
}

func TestDecideAccumulatesPermitAcrossMultipleProvisions(t *testing.T) {
	store := consent.NewMapStore()
	store.Put(entity.Consent{
		ID: "C1", PatientID: "P1", Status: "ACTIVE", Scope: "TREATMENT",
		Provisions: []entity.Provision{
			{Type: entity.ProvisionPermit, Actions: []string{"read"}, Purposes: []string{"treatment"}, DataCategories: []string{"labs"}},
			{Type: entity.ProvisionPermit, Actions: []string{"read"}, Purposes: []string{"treatment"}, DataCategories: []string{"vitals"}},
		},
	})
	eng := consent.NewEngine(store)

	d := eng.Decide(consent.Request{
		PatientID: "P1", Action: "read", Purpose: "treatment",
		DataCategories: []string{"labs", "vitals"},
	})
	if !d.Allowed || len(d.ProvisionsApplied) != 2 {
		t.Fatalf("expected both permit provisions applied, got %+v", d)
	}
}

func TestDecideNoMatchingPermitDefaultsDeny(t *testing.T) {
	store := consent.NewMapStore()
	store.Put(entity.Consent{
		ID: "C1", PatientID: "P1", Status: "ACTIVE", Scope: "TREATMENT",
		Provisions: []entity.Provision{
			{Type: entity.ProvisionPermit, Actions: []string{"write"}, Purposes: []string{"treatment"}},
		},
	})
	eng := consent.NewEngine(store)

	d := eng.Decide(consent.Request{PatientID: "P1", Action: "read", Purpose: "treatment"})
	if d.Allowed {
		t.Fatalf("expected deny when no provision matches the requested action, got %+v", d)
	}
}

func TestDecideFallsBackToTreatmentScopeWhenPurposeScopeAbsent(t *testing.T) {
	store := consent.NewMapStore()
	store.Put(entity.Consent{ID: "C1", PatientID: "P1", Status: "ACTIVE", Scope: "TREATMENT"})
	eng := consent.NewEngine(store)

	d := eng.Decide(consent.Request{PatientID: "P1", Action: "read", Purpose: "research"})
	if !d.Allowed {
		t.Fatalf("expected fallback to TREATMENT scope to permit, got %+v", d)
	}
}

func TestDecideIgnoresInactiveConsent(t *testing.T) {
	store := consent.NewMapStore()
	store.Put(entity.Consent{ID: "C1", PatientID: "P1", Status: "EXPIRED", Scope: "TREATMENT"})
	eng := consent.NewEngine(store)

	d := eng.Decide(consent.Request{PatientID: "P1", Action: "read", Purpose: "treatment"})
	if d.Allowed {
		t.Fatalf("expected expired consent to be ignored, got %+v", d)
	}
}

func TestDecideRespectsProvisionPeriod(t *testing.T) {
	store := consent.NewMapStore()
	future := time.Now().Add(24 * time.Hour)
	store.Put(entity.Consent{
		ID: "C1", PatientID: "P1", Status: "ACTIVE", Scope: "TREATMENT",
		Provisions: []entity.Provision{
			{Type: entity.ProvisionPermit, Actions: []string{"read"}, Purposes: []string{"treatment"}, PeriodStart: &future},
		},
	})
	eng := consent.NewEngine(store)

	d := eng.Decide(consent.Request{PatientID: "P1", Action: "read", Purpose: "treatment"})
	if d.Allowed {
		t.Fatalf("expected a not-yet-effective provision to be skipped, got %+v", d)
	}
}

func TestMapStorePutReplacesExistingConsentByID(t *testing.T) {
	store := consent.NewMapStore()
	store.Put(entity.Consent{ID: "C1", PatientID: "P1", Status: "ACTIVE", Scope: "TREATMENT"})
	store.Put(entity.Consent{ID: "C1", PatientID: "P1", Status: "INACTIVE", Scope: "TREATMENT"})

	consents := store.ConsentsForPatient("P1")
	if len(consents) != 1 || consents[0].Status != "INACTIVE" {
		t.Fatalf("expected consent to be replaced in place, got %+v", consents)
	}
}
