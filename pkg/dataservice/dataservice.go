// Package dataservice implements the unified data service: a repository
// facade over Patient/Condition/MedicationRequest/Encounter/Observation,
// composing a read-only patient-360 view and delegating graph traversal
// to an external graph driver with a max-depth guard. Every repository
// method is tenant-scoped — invariant 1 (no entity crosses a tenant
// boundary) is enforced here, not left to callers to remember.
//
// Grounded on the teacher's pkg/budget.PostgresStorage: same
// database/sql + lib/pq query/Scan/upsert idiom, generalized from one
// table (budgets) to one repository per entity type, composed by a
// facade the way pkg/budget.Enforcer composes PostgresStorage.
package dataservice

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aegis-health/core/pkg/trend"
)

// maxNetworkDepth is the hard ceiling GetPatientNetwork clamps any
// caller-requested depth to, regardless of what the graph driver itself
// would otherwise allow — an unbounded traversal is never safe to
// expose to a caller-supplied parameter.
const maxNetworkDepth = 5

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("dataservice: tenant_id is required")
	}
	return nil
}

// Service is the unified data service facade.
type Service struct {
	Patients     *PatientRepository
	Conditions   *ConditionRepository
	Medications  *MedicationRepository
	Encounters   *EncounterRepository
	Observations *ObservationRepository
	graph        GraphReader
}

// New builds a Service over a shared *sql.DB and an optional graph
// driver (nil disables GetPatientNetwork).
func New(db *sql.DB, graph GraphReader) *Service {
	return &Service{
		Patients:     &PatientRepository{db: db},
		Conditions:   &ConditionRepository{db: db},
		Medications:  &MedicationRepository{db: db},
		Encounters:   &EncounterRepository{db: db},
		Observations: &ObservationRepository{db: db},
		graph:        graph,
	}
}

// GetPatient360 composes demographics, active conditions, active
// medications, recent encounters, and the latest vitals into one
// read-only view. The queries run inside a single read-only
// transaction so the composed view reflects one consistent snapshot —
// spec §4.11's "single logical transaction (read-only)".
func (s *Service) GetPatient360(ctx context.Context, tenantID, patientID string) (*Patient360, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	tx, err := s.Patients.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("dataservice: begin 360 tx: %w", err)
	}
	defer tx.Rollback()

	patient, err := s.Patients.getTx(ctx, tx, tenantID, patientID)
	if err != nil {
		return nil, err
	}
	conditions, err := s.Conditions.listActiveTx(ctx, tx, tenantID, patientID)
	if err != nil {
		return nil, err
	}
	meds, err := s.Medications.listActiveTx(ctx, tx, tenantID, patientID)
	if err != nil {
		return nil, err
	}
	encounters, err := s.Encounters.listRecentTx(ctx, tx, tenantID, patientID, 10)
	if err != nil {
		return nil, err
	}
	vitals, err := s.Observations.listLatestByCodeTx(ctx, tx, tenantID, patientID, "vital-signs")
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("dataservice: commit 360 tx: %w", err)
	}

	return &Patient360{
		Patient:           *patient,
		ActiveConditions:  conditions,
		ActiveMedications: meds,
		RecentEncounters:  encounters,
		LatestVitals:      vitals,
	}, nil
}

// GetPatientNetwork delegates graph traversal to the configured
// GraphReader, clamping the requested depth to maxNetworkDepth.
func (s *Service) GetPatientNetwork(ctx context.Context, tenantID, patientID string, maxDepth int) (*Network, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if s.graph == nil {
		return nil, fmt.Errorf("dataservice: no graph driver configured")
	}
	if maxDepth <= 0 || maxDepth > maxNetworkDepth {
		maxDepth = maxNetworkDepth
	}
	network, err := s.graph.Traverse(ctx, tenantID, "Patient", patientID, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("dataservice: traverse patient network: %w", err)
	}
	return &network, nil
}

// deteriorationWindow is the trailing period GetVitalTrends fits its
// trend lines over (§4.10: "over last 24h").
const deteriorationWindow = 24 * time.Hour

// deteriorationVitals are the observation codes CompositeDeterioration
// watches, keyed by the metric name pkg/trend.adverseDirection expects.
var deteriorationVitals = []string{"spo2", "heart_rate", "respiratory_rate"}

// VitalTrends is the per-metric trend analysis plus any composite
// deterioration alert raised across them.
type VitalTrends struct {
	Metrics       map[string]trend.Result
	Deterioration *trend.Alert
}

// GetVitalTrends fits a trend line over each of spo2, heart_rate, and
// respiratory_rate across the trailing deteriorationWindow, then checks
// whether enough of them are independently adverse to raise a composite
// deterioration alert.
func (s *Service) GetVitalTrends(ctx context.Context, tenantID, patientID string) (*VitalTrends, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	since := time.Now().Add(-deteriorationWindow)
	out := &VitalTrends{Metrics: make(map[string]trend.Result, len(deteriorationVitals))}
	var vitalTrends []trend.VitalTrend

	for _, code := range deteriorationVitals {
		series, err := s.Observations.ListSeriesByCode(ctx, tenantID, patientID, code, since)
		if err != nil {
			return nil, err
		}
		points := make([]trend.Point, len(series))
		for i, o := range series {
			points[i] = trend.Point{Timestamp: o.EffectiveTS, Value: o.Value.Number}
		}
		result := trend.Analyze(points)
		out.Metrics[code] = result
		vitalTrends = append(vitalTrends, trend.VitalTrend{Metric: code, Result: result})
	}

	out.Deterioration = trend.CompositeDeterioration(vitalTrends)
	return out, nil
}
