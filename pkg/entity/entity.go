// Package entity defines the tenant-tagged healthcare entity and edge
// model shared by every connector, the normalization engine, the data
// quality validator, and the unified data service. Entities serialize to
// plain graph properties (map[string]any) so any graph driver — the
// concrete implementation is an external collaborator — can upsert them
// without this package depending on a specific driver.
package entity

import "time"

// Label identifies an entity's vertex type in the graph.
type Label string

const (
	LabelPatient       Label = "Patient"
	LabelEncounter     Label = "Encounter"
	LabelCondition     Label = "Condition"
	LabelObservation   Label = "Observation"
	LabelMedication    Label = "MedicationRequest"
	LabelProcedure     Label = "Procedure"
	LabelClaim         Label = "Claim"
	LabelClaimLine     Label = "ClaimLine"
	LabelDenial        Label = "Denial"
	LabelCoverage      Label = "Coverage"
	LabelAuthorization Label = "Authorization"
	LabelConsent       Label = "Consent"
	LabelProvision     Label = "Provision"
	LabelRiskScore     Label = "RiskScore"
	LabelCareGap       Label = "CareGap"
	LabelReasoningPath Label = "ReasoningPath"
)

// EdgeLabel identifies a directed, typed relationship between two vertices.
type EdgeLabel string

const (
	EdgeHasEncounter        EdgeLabel = "HAS_ENCOUNTER"
	EdgeHasCondition        EdgeLabel = "HAS_CONDITION"
	EdgeHasObservation      EdgeLabel = "HAS_OBSERVATION"
	EdgeHasMedication       EdgeLabel = "HAS_MEDICATION"
	EdgeHasProcedure        EdgeLabel = "HAS_PROCEDURE"
	EdgeHasClaim            EdgeLabel = "HAS_CLAIM"
	EdgeHasLine             EdgeLabel = "HAS_LINE"
	EdgeHasDenial           EdgeLabel = "HAS_DENIAL"
	EdgeHasCoverage         EdgeLabel = "HAS_COVERAGE"
	EdgeHasConsent          EdgeLabel = "HAS_CONSENT"
	EdgeHasProvision        EdgeLabel = "HAS_PROVISION"
	EdgeHasAuthorization    EdgeLabel = "HAS_AUTHORIZATION"
	EdgeHasCareGap          EdgeLabel = "HAS_CARE_GAP"
	EdgeHasRiskScore        EdgeLabel = "HAS_RISK_SCORE"
	EdgeDocumentsCondition  EdgeLabel = "DOCUMENTS_CONDITION"
	EdgeDocumentsMedication EdgeLabel = "DOCUMENTS_MEDICATION"
	EdgeDocumentsAllergy    EdgeLabel = "DOCUMENTS_ALLERGY"
	EdgeHasEvidence         EdgeLabel = "HAS_EVIDENCE"
)

// Vertex is the graph-property representation every connector emits.
// Fields is the entity-specific payload; Label/ID/TenantID/SourceSystem
// and CreatedAt are hoisted so persistence and DQ rules don't need to
// reach into Fields for them.
type Vertex struct {
	Label        Label
	ID           string // natural key, e.g. "Patient/12345"
	TenantID     string
	SourceSystem string
	CreatedAt    time.Time
	Fields       map[string]any
}

// Edge is a directed, typed relationship between two vertices.
type Edge struct {
	Label     EdgeLabel
	FromLabel Label
	FromID    string
	ToLabel   Label
	ToID      string
	TenantID  string
	Props     map[string]any
}

// Properties flattens a Vertex into plain graph properties, merging the
// hoisted fields with Fields (hoisted fields win on collision).
func (v *Vertex) Properties() map[string]any {
	props := make(map[string]any, len(v.Fields)+4)
	for k, val := range v.Fields {
		props[k] = val
	}
	props["label"] = string(v.Label)
	props["id"] = v.ID
	props["tenant_id"] = v.TenantID
	if v.SourceSystem != "" {
		props["source_system"] = v.SourceSystem
	}
	if !v.CreatedAt.IsZero() {
		props["created_at"] = v.CreatedAt.Format(time.RFC3339)
	}
	return props
}

// Key returns the (label, id, tenant_id) tuple used for upsert addressing.
func (v *Vertex) Key() (Label, string, string) { return v.Label, v.ID, v.TenantID }

// Patient is the canonical person record.
type Patient struct {
	ID        string
	TenantID  string
	MRN       string
	Names     []Name
	BirthDate string // ISO 8601 date, may omit day
	Gender    string
	Deceased  bool
	Address   *Address
	Contact   []ContactPoint
}

type Name struct {
	Given  []string
	Family string
}

type Address struct {
	Line       []string
	City       string
	State      string
	PostalCode string
	Country    string
}

type ContactPoint struct {
	System string // phone | email
	Value  string
}

// Encounter is a clinical visit.
type Encounter struct {
	ID          string
	TenantID    string
	PatientID   string
	Class       string // inpatient | outpatient | ER
	Status      string // in-progress | finished | cancelled
	StartTS     time.Time
	EndTS       *time.Time
	LocationRef string
	ProviderRef string
	Reason      string
}

// Condition is a diagnosis.
type Condition struct {
	ID             string
	PatientID      string
	Code           string
	CodeSystem     string
	ClinicalStatus string
	OnsetTS        *time.Time
	EncounterID    string
}

// ObservationValue is a tagged union over the observation's reported value.
type ObservationValue struct {
	Kind   string // numeric | string | bool
	Number float64
	Text   string
	Bool   bool
}

// Observation is a lab result, vital sign, or survey response.
type Observation struct {
	ID          string
	PatientID   string
	Code        string
	Value       ObservationValue
	Unit        string
	RefRange    string
	EffectiveTS time.Time
	Category    string // laboratory | vital-signs | survey | sdoh
	EncounterID string
}

// MedicationRequest is a prescribed or administered medication order.
type MedicationRequest struct {
	ID        string
	PatientID string
	Code      string
	Dosage    string
	Route     string
	Frequency string
	Status    string
	StartTS   time.Time
	EndTS     *time.Time
}

// Procedure is a performed clinical procedure.
type Procedure struct {
	ID          string
	PatientID   string
	Code        string
	PerformedTS time.Time
	PerformerID string
}

// Claim is a billed encounter or service submitted to a payer.
type Claim struct {
	ID               string
	PatientID        string
	EncounterID      string
	PayerID          string
	Type             string // 837P | 837I | 837D
	Status           string
	ServiceStart     time.Time
	ServiceEnd       time.Time
	Billed           float64
	Allowed          float64
	Paid             float64
	PatientResp      float64
}

// ClaimLine is one billed service line within a Claim.
type ClaimLine struct {
	ClaimID        string
	LineNo         int
	ProcedureCode  string
	Modifiers      []string
	Units          int
	ServiceStart   time.Time
	ServiceEnd     time.Time
	BilledAmount   float64
	AllowedAmount  float64
	PaidAmount     float64
}

// DenialCategory classifies why a claim line was denied.
type DenialCategory string

const (
	DenialEligibility DenialCategory = "eligibility"
	DenialAuth        DenialCategory = "auth"
	DenialMedNec      DenialCategory = "medNec"
	DenialCoding      DenialCategory = "coding"
	DenialTimely      DenialCategory = "timely"
	DenialDup         DenialCategory = "dup"
	DenialBundle      DenialCategory = "bundle"
	DenialDocs        DenialCategory = "docs"
	DenialContract    DenialCategory = "contract"
	DenialOther       DenialCategory = "other"
)

// Denial is a payer's adjustment/rejection of a claim or claim line.
type Denial struct {
	ClaimID        string
	Code           string
	CodeType       string // CARC | RARC
	Category       DenialCategory
	DeniedAmount   float64
	DenialTS       time.Time
	AppealDeadline *time.Time
	Status         string
}

// Coverage is a patient's payer enrollment.
type Coverage struct {
	PatientID   string
	PayerID     string
	MemberID    string
	Type        string
	Effective   time.Time
	Termination *time.Time
}

// Authorization is a pre-approval for a set of service codes.
type Authorization struct {
	PatientID    string
	Number       string
	ServiceCodes []string
	Status       string
	Effective    time.Time
	Expiry       *time.Time
}

// ProvisionType controls whether a Provision permits or denies access.
type ProvisionType string

const (
	ProvisionPermit ProvisionType = "permit"
	ProvisionDeny   ProvisionType = "deny"
)

// Provision is one rule within a Consent.
type Provision struct {
	Type          ProvisionType
	Actions       []string
	Purposes      []string
	DataCategories []string
	PeriodStart   *time.Time
	PeriodEnd     *time.Time
	Actors        []string
}

// Consent is a patient's authorization record, scoped and time-bounded.
type Consent struct {
	ID         string
	PatientID  string
	Status     string // ACTIVE | INACTIVE | EXPIRED
	Scope      string // e.g. TREATMENT, RESEARCH
	DateTime   time.Time
	Provisions []Provision
}

// VerifiedMapping records an expert-confirmed code mapping, keyed by
// (source_system, local_code).
type VerifiedMapping struct {
	SourceSystem string
	LocalCode    string
	StdCode      string
	StdSystem    string
	StdDesc      string
	Confidence   float64
	VerifiedBy   string
	VerifiedAt   time.Time
}

// RiskScore is an agent-computed risk estimate for a patient, traceable
// back to the ReasoningPath that produced it.
type RiskScore struct {
	ID          string
	PatientID   string
	TenantID    string
	Kind        string // e.g. readmission, deterioration
	Value       float64
	Band        string // low | moderate | high | critical
	ComputedAt  time.Time
	ReasoningID string
}

// CareGap is missing evidence of a due preventive or chronic-care action
// against a quality measure.
type CareGap struct {
	ID          string
	PatientID   string
	TenantID    string
	MeasureID   string
	MeasureName string
	DueDate     *time.Time
	Status      string // open | closed | waived
	Reasoning   string
}

// AIRecommendation is an agent-proposed action surfaced to a human,
// carrying the evidence trail behind it.
type AIRecommendation struct {
	ID          string
	PatientID   string
	TenantID    string
	Kind        string
	Summary     string
	Confidence  float64
	ReasoningID string
	CreatedAt   time.Time
}

// ReasoningPath is the evidence trail an agent cites for a RiskScore,
// CareGap, or AIRecommendation: a flat list of entity references rather
// than a graph of back-pointers, so reasoning output never forms a
// cycle back into the entities it evaluated.
type ReasoningPath struct {
	ID         string
	TenantID   string
	Steps      []ReasoningStep
	Conclusion string
	CreatedAt  time.Time
}

// ReasoningStep cites one piece of evidence by stable (label, id), never
// an embedded back-pointer to the entity itself.
type ReasoningStep struct {
	EvidenceLabel Label
	EvidenceID    string
	Note          string
}
