package dataservice

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aegis-health/core/pkg/entity"
)

// MedicationRepository is the tenant-scoped MedicationRequest repository.
type MedicationRepository struct {
	db *sql.DB
}

// ListActive returns a patient's active medication orders.
func (r *MedicationRepository) ListActive(ctx context.Context, tenantID, patientID string) ([]entity.MedicationRequest, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	return r.listActiveTx(ctx, r.db, tenantID, patientID)
}

func (r *MedicationRepository) listActiveTx(ctx context.Context, q querier, tenantID, patientID string) ([]entity.MedicationRequest, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT m.id, m.patient_id, m.code, m.dosage, m.route, m.frequency, m.status, m.start_ts, m.end_ts
		FROM medication_requests m JOIN patients p ON p.id = m.patient_id AND p.tenant_id = $2
		WHERE m.patient_id = $1 AND m.status = 'active'`,
		patientID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("dataservice: list active medications: %w", err)
	}
	defer rows.Close()

	var out []entity.MedicationRequest
	for rows.Next() {
		var m entity.MedicationRequest
		var end sql.NullTime
		if err := rows.Scan(&m.ID, &m.PatientID, &m.Code, &m.Dosage, &m.Route, &m.Frequency, &m.Status, &m.StartTS, &end); err != nil {
			return nil, fmt.Errorf("dataservice: scan medication: %w", err)
		}
		if end.Valid {
			m.EndTS = &end.Time
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Upsert writes m, keyed by id.
func (r *MedicationRepository) Upsert(ctx context.Context, tenantID string, m entity.MedicationRequest) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO medication_requests (id, patient_id, code, dosage, route, frequency, status, start_ts, end_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code, dosage = EXCLUDED.dosage, route = EXCLUDED.route,
			frequency = EXCLUDED.frequency, status = EXCLUDED.status,
			start_ts = EXCLUDED.start_ts, end_ts = EXCLUDED.end_ts`,
		m.ID, m.PatientID, m.Code, m.Dosage, m.Route, m.Frequency, m.Status, m.StartTS, m.EndTS)
	if err != nil {
		return fmt.Errorf("dataservice: upsert medication: %w", err)
	}
	return nil
}
