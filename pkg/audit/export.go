package audit

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyTenantID      = errors.New("audit: tenant_id must not be empty")
	ErrInvalidTimeRange   = errors.New("audit: start_time must be before end_time")
	ErrStoreNotConfigured = errors.New("audit: store not configured (fail-closed)")
	ErrEmptyBundle        = errors.New("audit: bundle is empty")
)

// ExportRequest defines the scope of an evidentiary export.
type ExportRequest struct {
	TenantID  string
	StartTime time.Time
	EndTime   time.Time
}

// Bundle is an exportable, independently verifiable slice of the chain.
type Bundle struct {
	BundleID   string   `json:"bundle_id"`
	TenantID   string   `json:"tenant_id"`
	GeneratedAt time.Time `json:"generated_at"`
	StartSeq   uint64   `json:"start_sequence"`
	EndSeq     uint64   `json:"end_sequence"`
	EntryCount int      `json:"entry_count"`
	Entries    []*Entry `json:"entries"`
	ChainHead  string   `json:"chain_head"`
	BundleHash string   `json:"bundle_hash"`
}

// Exporter builds evidentiary bundles and zipped evidence packs.
type Exporter struct {
	store *Store
}

func NewExporter(s *Store) *Exporter { return &Exporter{store: s} }

// ExportBundle selects entries by filter and wraps them with a bundle
// hash over the serialized entry set, for later independent verification.
func (e *Exporter) ExportBundle(req ExportRequest) (*Bundle, error) {
	if req.TenantID == "" {
		return nil, ErrEmptyTenantID
	}
	if !req.StartTime.IsZero() && !req.EndTime.IsZero() && req.StartTime.After(req.EndTime) {
		return nil, ErrInvalidTimeRange
	}
	if e.store == nil {
		return nil, ErrStoreNotConfigured
	}

	filter := QueryFilter{Subject: req.TenantID}
	if !req.StartTime.IsZero() {
		filter.StartTime = &req.StartTime
	}
	if !req.EndTime.IsZero() {
		filter.EndTime = &req.EndTime
	}
	entries := e.store.Query(filter)
	if len(entries) == 0 {
		return nil, ErrEmptyBundle
	}

	entriesJSON, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal bundle entries: %w", err)
	}

	bundle := &Bundle{
		BundleID:    uuid.New().String(),
		TenantID:    req.TenantID,
		GeneratedAt: time.Now().UTC(),
		StartSeq:    entries[0].Sequence,
		EndSeq:      entries[len(entries)-1].Sequence,
		EntryCount:  len(entries),
		Entries:     entries,
		ChainHead:   entries[len(entries)-1].EntryHash,
	}
	bundle.BundleHash = hash32(entriesJSON)
	return bundle, nil
}

// VerifyBundle recomputes the bundle hash and checks internal chain
// consistency between consecutive entries.
func VerifyBundle(bundle *Bundle) error {
	if len(bundle.Entries) == 0 {
		return ErrEmptyBundle
	}
	entriesJSON, err := json.Marshal(bundle.Entries)
	if err != nil {
		return fmt.Errorf("audit: marshal bundle entries: %w", err)
	}
	if hash32(entriesJSON) != bundle.BundleHash {
		return fmt.Errorf("%w: bundle hash mismatch", ErrChainBroken)
	}
	for i := 1; i < len(bundle.Entries); i++ {
		if bundle.Entries[i].PreviousHash != bundle.Entries[i-1].EntryHash {
			return fmt.Errorf("%w: entry %d", ErrChainBroken, i)
		}
	}
	return nil
}

// GeneratePack renders a Bundle as a zip (events.json + manifest.json +
// README.txt) and returns the zip bytes with a SHA-256 checksum over them.
func (e *Exporter) GeneratePack(ctx context.Context, req ExportRequest) ([]byte, string, error) {
	bundle, err := e.ExportBundle(req)
	if err != nil {
		return nil, "", err
	}

	eventsJSON, err := json.MarshalIndent(bundle.Entries, "", "  ")
	if err != nil {
		return nil, "", err
	}
	manifestJSON, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("audit: marshal manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	f, err := w.Create("events.json")
	if err != nil {
		return nil, "", err
	}
	if _, err := f.Write(eventsJSON); err != nil {
		return nil, "", err
	}

	f, err = w.Create("manifest.json")
	if err != nil {
		return nil, "", err
	}
	if _, err := f.Write(manifestJSON); err != nil {
		return nil, "", err
	}

	f, err = w.Create("README.txt")
	if err != nil {
		return nil, "", err
	}
	if _, err := fmt.Fprintf(f, "Evidence pack for tenant %s\ngenerated at %s\n", req.TenantID, time.Now().UTC()); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	zipBytes := buf.Bytes()
	sum := sha256.Sum256(zipBytes)
	return zipBytes, hex.EncodeToString(sum[:]), nil
}
