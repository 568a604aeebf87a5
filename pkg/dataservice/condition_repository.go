package dataservice

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aegis-health/core/pkg/entity"
)

// ConditionRepository is the tenant-scoped Condition repository. Joins
// against the owning patient for tenant scoping, since Condition itself
// carries only patient_id (no direct tenant_id column — see
// pkg/entity.Condition).
type ConditionRepository struct {
	db *sql.DB
}

// ListActive returns a patient's non-resolved conditions.
func (r *ConditionRepository) ListActive(ctx context.Context, tenantID, patientID string) ([]entity.Condition, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	return r.listActiveTx(ctx, r.db, tenantID, patientID)
}

func (r *ConditionRepository) listActiveTx(ctx context.Context, q querier, tenantID, patientID string) ([]entity.Condition, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT c.id, c.patient_id, c.code, c.code_system, c.clinical_status, c.onset_ts, c.encounter_id
		FROM conditions c JOIN patients p ON p.id = c.patient_id AND p.tenant_id = $2
		WHERE c.patient_id = $1 AND c.clinical_status NOT IN ('resolved', 'inactive')`,
		patientID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("dataservice: list active conditions: %w", err)
	}
	defer rows.Close()

	var out []entity.Condition
	for rows.Next() {
		var c entity.Condition
		var onset sql.NullTime
		var encounterID sql.NullString
		if err := rows.Scan(&c.ID, &c.PatientID, &c.Code, &c.CodeSystem, &c.ClinicalStatus, &onset, &encounterID); err != nil {
			return nil, fmt.Errorf("dataservice: scan condition: %w", err)
		}
		if onset.Valid {
			c.OnsetTS = &onset.Time
		}
		if encounterID.Valid {
			c.EncounterID = encounterID.String
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Upsert writes c, keyed by id.
func (r *ConditionRepository) Upsert(ctx context.Context, tenantID string, c entity.Condition) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conditions (id, patient_id, code, code_system, clinical_status, onset_ts, encounter_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code, code_system = EXCLUDED.code_system,
			clinical_status = EXCLUDED.clinical_status, onset_ts = EXCLUDED.onset_ts,
			encounter_id = EXCLUDED.encounter_id`,
		c.ID, c.PatientID, c.Code, c.CodeSystem, c.ClinicalStatus, c.OnsetTS, c.EncounterID)
	if err != nil {
		return fmt.Errorf("dataservice: upsert condition: %w", err)
	}
	return nil
}
