// Package terminology provides standard code-system lookups (LOINC,
// SNOMED-CT, RxNorm, ICD-10) and a verified-mapping knowledge base of
// expert-confirmed local-code-to-standard-code translations.
//
// The in-memory index follows the teacher's mutex-guarded map-of-maps
// convention (pkg/store/audit_store.go's entryByID/entryByHash indices);
// persistence follows pkg/budget/postgres_store.go's database/sql +
// ON CONFLICT upsert idiom.
package terminology

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aegis-health/core/pkg/entity"
	"github.com/aegis-health/core/pkg/errs"
)

// CodeSystem is one of the standard terminologies this service resolves.
type CodeSystem string

const (
	SystemLOINC   CodeSystem = "LOINC"
	SystemSNOMED  CodeSystem = "SNOMED-CT"
	SystemRxNorm  CodeSystem = "RxNorm"
	SystemICD10   CodeSystem = "ICD-10"
)

// CodeEntry is one known standard code within a system.
type CodeEntry struct {
	System   CodeSystem
	Code     string
	Display  string
	Synonyms []string
}

// Service resolves standard codes and stores verified local-code mappings.
type Service struct {
	mu       sync.RWMutex
	codes    map[CodeSystem]map[string]CodeEntry // system -> code -> entry
	mappings map[string]entity.VerifiedMapping    // "system|code" -> mapping
}

// New creates an empty Service. Use LoadCodes to seed the code tables.
func New() *Service {
	return &Service{
		codes:    make(map[CodeSystem]map[string]CodeEntry),
		mappings: make(map[string]entity.VerifiedMapping),
	}
}

func mappingKey(sourceSystem, localCode string) string {
	return sourceSystem + "|" + localCode
}

// LoadCodes seeds the terminology service with a set of known codes.
func (s *Service) LoadCodes(entries []CodeEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if s.codes[e.System] == nil {
			s.codes[e.System] = make(map[string]CodeEntry)
		}
		s.codes[e.System][e.Code] = e
	}
}

// Lookup returns the CodeEntry for an exact code match, checking the
// code itself and its registered synonyms.
func (s *Service) Lookup(system CodeSystem, code string) (CodeEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table := s.codes[system]
	if table == nil {
		return CodeEntry{}, false
	}
	if e, ok := table[code]; ok {
		return e, true
	}
	for _, e := range table {
		for _, syn := range e.Synonyms {
			if strings.EqualFold(syn, code) {
				return e, true
			}
		}
	}
	return CodeEntry{}, false
}

// Validate reports whether a (system, code) pair is known.
func (s *Service) Validate(system CodeSystem, code string) bool {
	_, ok := s.Lookup(system, code)
	return ok
}

// GetVerifiedMapping returns an expert-verified mapping, if one exists.
func (s *Service) GetVerifiedMapping(sourceSystem, localCode string) (entity.VerifiedMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[mappingKey(sourceSystem, localCode)]
	return m, ok
}

// PutVerifiedMapping upserts a mapping in-memory; newer verifications
// overwrite older ones (callers are responsible for auditing the write).
func (s *Service) PutVerifiedMapping(m entity.VerifiedMapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[mappingKey(m.SourceSystem, m.LocalCode)] = m
}

// Store persists VerifiedMapping rows to Postgres.
type Store struct {
	db *sql.DB
}

// NewStore wraps a *sql.DB for verified-mapping persistence.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Get fetches a persisted VerifiedMapping by its natural key.
func (s *Store) Get(ctx context.Context, sourceSystem, localCode string) (*entity.VerifiedMapping, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT source_system, local_code, std_code, std_system, std_desc, confidence, verified_by, verified_at
		 FROM verified_mappings WHERE source_system = $1 AND local_code = $2`,
		sourceSystem, localCode)

	var m entity.VerifiedMapping
	err := row.Scan(&m.SourceSystem, &m.LocalCode, &m.StdCode, &m.StdSystem, &m.StdDesc, &m.Confidence, &m.VerifiedBy, &m.VerifiedAt)
	if err == sql.ErrNoRows {
		return nil, &errs.NotFound{Kind: "VerifiedMapping", ID: mappingKey(sourceSystem, localCode)}
	}
	if err != nil {
		return nil, fmt.Errorf("terminology: get verified mapping: %w", err)
	}
	return &m, nil
}

// Upsert inserts or overwrites a VerifiedMapping row. The (source_system,
// local_code) key is unique; newer verifications overwrite.
func (s *Store) Upsert(ctx context.Context, m entity.VerifiedMapping) error {
	if m.VerifiedAt.IsZero() {
		m.VerifiedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verified_mappings (source_system, local_code, std_code, std_system, std_desc, confidence, verified_by, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_system, local_code) DO UPDATE SET
			std_code = EXCLUDED.std_code,
			std_system = EXCLUDED.std_system,
			std_desc = EXCLUDED.std_desc,
			confidence = EXCLUDED.confidence,
			verified_by = EXCLUDED.verified_by,
			verified_at = EXCLUDED.verified_at
	`, m.SourceSystem, m.LocalCode, m.StdCode, m.StdSystem, m.StdDesc, m.Confidence, m.VerifiedBy, m.VerifiedAt)
	if err != nil {
		return fmt.Errorf("terminology: upsert verified mapping: %w", err)
	}
	return nil
}
