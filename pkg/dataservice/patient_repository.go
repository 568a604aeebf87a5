package dataservice

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aegis-health/core/pkg/entity"
)

// PatientRepository is the tenant-scoped Patient repository.
type PatientRepository struct {
	db *sql.DB
}

// Get returns the patient (name, birth_date, gender, deceased, address,
// contact, mrn columns), scoped to tenantID.
func (r *PatientRepository) Get(ctx context.Context, tenantID, patientID string) (*entity.Patient, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	return r.getTx(ctx, r.db, tenantID, patientID)
}

// queryRower is satisfied by both *sql.DB and *sql.Tx, so Get and the
// 360-view composition share one scan path.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *PatientRepository) getTx(ctx context.Context, q queryRower, tenantID, patientID string) (*entity.Patient, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, mrn, names, birth_date, gender, deceased, address, contact
		FROM patients WHERE id = $1 AND tenant_id = $2`, patientID, tenantID)

	var p entity.Patient
	var namesJSON, addrJSON, contactJSON []byte
	if err := row.Scan(&p.ID, &p.MRN, &namesJSON, &p.BirthDate, &p.Gender, &p.Deceased, &addrJSON, &contactJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("dataservice: patient %s not found for tenant %s", patientID, tenantID)
		}
		return nil, fmt.Errorf("dataservice: get patient: %w", err)
	}
	p.TenantID = tenantID
	if len(namesJSON) > 0 {
		if err := json.Unmarshal(namesJSON, &p.Names); err != nil {
			return nil, fmt.Errorf("dataservice: decode patient names: %w", err)
		}
	}
	if len(addrJSON) > 0 {
		if err := json.Unmarshal(addrJSON, &p.Address); err != nil {
			return nil, fmt.Errorf("dataservice: decode patient address: %w", err)
		}
	}
	if len(contactJSON) > 0 {
		if err := json.Unmarshal(contactJSON, &p.Contact); err != nil {
			return nil, fmt.Errorf("dataservice: decode patient contact: %w", err)
		}
	}
	return &p, nil
}

// Upsert writes p, keyed by (id, tenant_id) — the same natural-key
// upsert idiom L3's connectors rely on for idempotent re-ingestion.
func (r *PatientRepository) Upsert(ctx context.Context, p entity.Patient) error {
	if err := requireTenant(p.TenantID); err != nil {
		return err
	}
	namesJSON, err := json.Marshal(p.Names)
	if err != nil {
		return fmt.Errorf("dataservice: encode patient names: %w", err)
	}
	addrJSON, err := json.Marshal(p.Address)
	if err != nil {
		return fmt.Errorf("dataservice: encode patient address: %w", err)
	}
	contactJSON, err := json.Marshal(p.Contact)
	if err != nil {
		return fmt.Errorf("dataservice: encode patient contact: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO patients (id, tenant_id, mrn, names, birth_date, gender, deceased, address, contact)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id, tenant_id) DO UPDATE SET
			mrn = EXCLUDED.mrn, names = EXCLUDED.names, birth_date = EXCLUDED.birth_date,
			gender = EXCLUDED.gender, deceased = EXCLUDED.deceased,
			address = EXCLUDED.address, contact = EXCLUDED.contact`,
		p.ID, p.TenantID, p.MRN, namesJSON, p.BirthDate, p.Gender, p.Deceased, addrJSON, contactJSON)
	if err != nil {
		return fmt.Errorf("dataservice: upsert patient: %w", err)
	}
	return nil
}
