package dataservice

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aegis-health/core/pkg/entity"
)

// EncounterRepository is the tenant-scoped Encounter repository.
type EncounterRepository struct {
	db *sql.DB
}

// ListRecent returns a patient's most recent encounters, newest first.
func (r *EncounterRepository) ListRecent(ctx context.Context, tenantID, patientID string, limit int) ([]entity.Encounter, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	return r.listRecentTx(ctx, r.db, tenantID, patientID, limit)
}

func (r *EncounterRepository) listRecentTx(ctx context.Context, q querier, tenantID, patientID string, limit int) ([]entity.Encounter, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, patient_id, class, status, start_ts, end_ts, location_ref, provider_ref, reason
		FROM encounters WHERE patient_id = $1 AND tenant_id = $2
		ORDER BY start_ts DESC LIMIT $3`,
		patientID, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("dataservice: list recent encounters: %w", err)
	}
	defer rows.Close()

	var out []entity.Encounter
	for rows.Next() {
		var e entity.Encounter
		var end sql.NullTime
		if err := rows.Scan(&e.ID, &e.PatientID, &e.Class, &e.Status, &e.StartTS, &end, &e.LocationRef, &e.ProviderRef, &e.Reason); err != nil {
			return nil, fmt.Errorf("dataservice: scan encounter: %w", err)
		}
		if end.Valid {
			e.EndTS = &end.Time
		}
		e.TenantID = tenantID
		out = append(out, e)
	}
	return out, rows.Err()
}

// Upsert writes e, keyed by (id, tenant_id).
func (r *EncounterRepository) Upsert(ctx context.Context, e entity.Encounter) error {
	if err := requireTenant(e.TenantID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO encounters (id, tenant_id, patient_id, class, status, start_ts, end_ts, location_ref, provider_ref, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id, tenant_id) DO UPDATE SET
			class = EXCLUDED.class, status = EXCLUDED.status, start_ts = EXCLUDED.start_ts,
			end_ts = EXCLUDED.end_ts, location_ref = EXCLUDED.location_ref,
			provider_ref = EXCLUDED.provider_ref, reason = EXCLUDED.reason`,
		e.ID, e.TenantID, e.PatientID, e.Class, e.Status, e.StartTS, e.EndTS, e.LocationRef, e.ProviderRef, e.Reason)
	if err != nil {
		return fmt.Errorf("dataservice: upsert encounter: %w", err)
	}
	return nil
}
