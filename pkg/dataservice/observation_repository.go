package dataservice

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aegis-health/core/pkg/entity"
)

// ObservationRepository is the tenant-scoped Observation repository.
type ObservationRepository struct {
	db *sql.DB
}

// ListLatestByCode returns a patient's most recent observation per code
// within category, one row per code ordered by code — e.g.
// category="vital-signs" for the
// latest-vitals panel in GetPatient360.
func (r *ObservationRepository) ListLatestByCode(ctx context.Context, tenantID, patientID, category string) ([]entity.Observation, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	return r.listLatestByCodeTx(ctx, r.db, tenantID, patientID, category)
}

func (r *ObservationRepository) listLatestByCodeTx(ctx context.Context, q querier, tenantID, patientID, category string) ([]entity.Observation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT ON (o.code) o.id, o.patient_id, o.code, o.value_kind, o.value_number,
			o.value_text, o.value_bool, o.unit, o.ref_range, o.effective_ts, o.category, o.encounter_id
		FROM observations o JOIN patients p ON p.id = o.patient_id AND p.tenant_id = $2
		WHERE o.patient_id = $1 AND o.category = $3
		ORDER BY o.code, o.effective_ts DESC`,
		patientID, tenantID, category)
	if err != nil {
		return nil, fmt.Errorf("dataservice: list latest observations: %w", err)
	}
	defer rows.Close()

	var out []entity.Observation
	for rows.Next() {
		var o entity.Observation
		var encounterID sql.NullString
		if err := rows.Scan(&o.ID, &o.PatientID, &o.Code, &o.Value.Kind, &o.Value.Number,
			&o.Value.Text, &o.Value.Bool, &o.Unit, &o.RefRange, &o.EffectiveTS, &o.Category, &encounterID); err != nil {
			return nil, fmt.Errorf("dataservice: scan observation: %w", err)
		}
		if encounterID.Valid {
			o.EncounterID = encounterID.String
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListSeriesByCode returns every observation for one code within the
// trailing window, oldest first — the shape pkg/trend.Analyze needs to
// fit a slope, as opposed to ListLatestByCode's newest-per-code panel.
func (r *ObservationRepository) ListSeriesByCode(ctx context.Context, tenantID, patientID, code string, since time.Time) ([]entity.Observation, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id, o.patient_id, o.code, o.value_kind, o.value_number,
			o.value_text, o.value_bool, o.unit, o.ref_range, o.effective_ts, o.category, o.encounter_id
		FROM observations o JOIN patients p ON p.id = o.patient_id AND p.tenant_id = $2
		WHERE o.patient_id = $1 AND o.code = $3 AND o.effective_ts >= $4
		ORDER BY o.effective_ts ASC`,
		patientID, tenantID, code, since)
	if err != nil {
		return nil, fmt.Errorf("dataservice: list observation series: %w", err)
	}
	defer rows.Close()

	var out []entity.Observation
	for rows.Next() {
		var o entity.Observation
		var encounterID sql.NullString
		if err := rows.Scan(&o.ID, &o.PatientID, &o.Code, &o.Value.Kind, &o.Value.Number,
			&o.Value.Text, &o.Value.Bool, &o.Unit, &o.RefRange, &o.EffectiveTS, &o.Category, &encounterID); err != nil {
			return nil, fmt.Errorf("dataservice: scan observation: %w", err)
		}
		if encounterID.Valid {
			o.EncounterID = encounterID.String
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Upsert writes o, keyed by id.
func (r *ObservationRepository) Upsert(ctx context.Context, tenantID string, o entity.Observation) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO observations (id, patient_id, code, value_kind, value_number, value_text, value_bool,
			unit, ref_range, effective_ts, category, encounter_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			value_kind = EXCLUDED.value_kind, value_number = EXCLUDED.value_number,
			value_text = EXCLUDED.value_text, value_bool = EXCLUDED.value_bool,
			unit = EXCLUDED.unit, ref_range = EXCLUDED.ref_range,
			effective_ts = EXCLUDED.effective_ts, category = EXCLUDED.category, encounter_id = EXCLUDED.encounter_id`,
		o.ID, o.PatientID, o.Code, o.Value.Kind, o.Value.Number, o.Value.Text, o.Value.Bool,
		o.Unit, o.RefRange, o.EffectiveTS, o.Category, o.EncounterID)
	if err != nil {
		return fmt.Errorf("dataservice: upsert observation: %w", err)
	}
	return nil
}
