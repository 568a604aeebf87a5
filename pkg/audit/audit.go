// Package audit implements the hash-chained, append-only audit log.
// Adapted from the teacher's pkg/store.AuditStore: same sequence +
// previous-hash chaining shape, but entry hashes are truncated to 32
// hex characters (platform invariant 2) instead of the teacher's full
// 64-hex "sha256:"-prefixed digest, and EventKind replaces EntryType
// with the platform's own vocabulary.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aegis-health/core/pkg/canonicalize"
	"github.com/aegis-health/core/pkg/tenant"
)

var (
	ErrEntryNotFound = errors.New("audit: entry not found")
	ErrChainBroken   = errors.New("audit: hash chain is broken")
)

// EventKind categorizes an audit entry.
type EventKind string

const (
	EventAccess         EventKind = "access"
	EventDenied         EventKind = "denied"
	EventModify         EventKind = "modify"
	EventExport         EventKind = "export"
	EventBreakGlass     EventKind = "break_glass"
	EventAuthentication EventKind = "authentication"
	EventConsentCheck   EventKind = "consent_check"
	eventSystem         EventKind = "system" // internal-only, e.g. SIEM-forward failures
)

// Severity marks an entry for downstream alerting priority.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityNormal   Severity = "NORMAL"
)

// Entry is a single immutable audit record.
type Entry struct {
	EntryID      string          `json:"entry_id"`
	Sequence     uint64          `json:"sequence"`
	Timestamp    time.Time       `json:"timestamp"`
	Kind         EventKind       `json:"kind"`
	Severity     Severity        `json:"severity"`
	TenantID     string          `json:"tenant_id"`
	ActorID      string          `json:"actor_id"`
	Action       string          `json:"action"`
	Resource     string          `json:"resource"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	PayloadHash  string          `json:"payload_hash"`
	PreviousHash string          `json:"previous_hash"`
	EntryHash    string          `json:"entry_hash"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// hash32 computes a SHA-256 digest truncated to its first 32 hex chars.
func hash32(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:32]
}

// Store is the append-only, hash-chained audit log.
type Store struct {
	mu        sync.RWMutex
	entries   []*Entry
	byID      map[string]*Entry
	sequence  uint64
	chainHead string
	siem      SIEMSink
}

// NewStore builds an empty Store. siem may be nil; break-glass events
// are then chained locally only, with no out-of-band forward attempted.
func NewStore(siem SIEMSink) *Store {
	return &Store{
		entries:   make([]*Entry, 0),
		byID:      make(map[string]*Entry),
		chainHead: "genesis",
		siem:      siem,
	}
}

// NewStoreFromEntries rebuilds a Store around a chain of entries loaded
// from durable storage (e.g. a prior process's JSONL export), so a new
// process can keep appending to the same chain rather than starting a
// fresh one at "genesis" every run. The chain is verified before it is
// accepted.
func NewStoreFromEntries(siem SIEMSink, entries []*Entry) (*Store, error) {
	if len(entries) == 0 {
		return NewStore(siem), nil
	}
	if ok, failingID := VerifyChain(entries); !ok {
		return nil, fmt.Errorf("%w: entry %s", ErrChainBroken, failingID)
	}

	s := NewStore(siem)
	s.entries = append(s.entries, entries...)
	for _, e := range entries {
		s.byID[e.EntryID] = e
		if e.Sequence > s.sequence {
			s.sequence = e.Sequence
		}
	}
	s.chainHead = entries[len(entries)-1].EntryHash
	return s, nil
}

// Append writes a new entry to the chain, synchronously. Break-glass
// events are additionally forwarded to the configured SIEMSink on a
// best-effort, non-blocking goroutine after the local append succeeds —
// a SIEM failure is itself logged but never blocks or reverses the
// local grant (Open Question 3).
func (s *Store) Append(ctx context.Context, kind EventKind, action, resource string, payload any, metadata map[string]string) (*Entry, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal payload: %w", err)
	}

	tenantID, actorID := "system", "system"
	if p, err := tenant.GetPrincipal(ctx); err == nil {
		tenantID, actorID = p.GetTenantID(), p.GetID()
	}

	severity := SeverityNormal
	if kind == EventBreakGlass {
		severity = SeverityCritical
	}

	s.mu.Lock()
	s.sequence++
	entry := &Entry{
		EntryID:     uuid.New().String(),
		Sequence:    s.sequence,
		Timestamp:   time.Now().UTC(),
		Kind:        kind,
		Severity:    severity,
		TenantID:    tenantID,
		ActorID:     actorID,
		Action:      action,
		Resource:    resource,
		Payload:     payloadBytes,
		PayloadHash: hash32(payloadBytes),
		Metadata:    metadata,
	}
	entry.PreviousHash = s.chainHead
	entry.EntryHash = computeEntryHash(entry)
	s.chainHead = entry.EntryHash

	s.entries = append(s.entries, entry)
	s.byID[entry.EntryID] = entry
	s.mu.Unlock()

	if kind == EventBreakGlass && s.siem != nil {
		go s.forwardToSIEM(*entry)
	}

	return entry, nil
}

func (s *Store) forwardToSIEM(entry Entry) {
	if err := s.siem.Forward(context.Background(), entry); err != nil {
		// best-effort: record the failure, never touch the original entry
		_, _ = s.Append(context.Background(), eventSystem, "siem_forward_failed", entry.EntryID,
			map[string]string{"error": err.Error()}, nil)
	}
}

// computeEntryHash hashes the chain-relevant fields, including the
// previous entry's hash, so any tampering breaks every subsequent link.
// The fields are canonicalized (RFC 8785) before hashing so the digest
// never depends on struct field order or json.Marshal's formatting
// choices — the same requirement the checkpoint hash in pkg/workflow
// has on state.
func computeEntryHash(e *Entry) string {
	hashable := struct {
		EntryID      string    `json:"entry_id"`
		Sequence     uint64    `json:"sequence"`
		Timestamp    time.Time `json:"timestamp"`
		Kind         EventKind `json:"kind"`
		TenantID     string    `json:"tenant_id"`
		ActorID      string    `json:"actor_id"`
		Action       string    `json:"action"`
		Resource     string    `json:"resource"`
		PayloadHash  string    `json:"payload_hash"`
		PreviousHash string    `json:"previous_hash"`
	}{
		EntryID: e.EntryID, Sequence: e.Sequence, Timestamp: e.Timestamp, Kind: e.Kind,
		TenantID: e.TenantID, ActorID: e.ActorID, Action: e.Action, Resource: e.Resource,
		PayloadHash: e.PayloadHash, PreviousHash: e.PreviousHash,
	}
	data, err := canonicalize.JCS(hashable)
	if err != nil {
		data, _ = json.Marshal(hashable)
	}
	return hash32(data)
}

// Get retrieves an entry by ID.
func (s *Store) Get(entryID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[entryID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return e, nil
}

// ChainHead returns the current chain head hash.
func (s *Store) ChainHead() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chainHead
}

// QueryFilter narrows a Query call.
type QueryFilter struct {
	Kind       EventKind
	Subject    string // tenant ID
	StartTime  *time.Time
	EndTime    *time.Time
	StartSeq   uint64
	EndSeq     uint64
	MaxResults int
}

func (f QueryFilter) matches(e *Entry) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Subject != "" && e.TenantID != f.Subject {
		return false
	}
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	if f.StartSeq > 0 && e.Sequence < f.StartSeq {
		return false
	}
	if f.EndSeq > 0 && e.Sequence > f.EndSeq {
		return false
	}
	return true
}

// Query returns entries matching filter, in append order.
func (s *Store) Query(filter QueryFilter) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*Entry, 0)
	for _, e := range s.entries {
		if filter.matches(e) {
			results = append(results, e)
			if filter.MaxResults > 0 && len(results) >= filter.MaxResults {
				break
			}
		}
	}
	return results
}

// VerifyIntegrity walks the chain and recomputes every hash. On the
// first mismatch it returns false and the offending entry ID.
func (s *Store) VerifyIntegrity() (ok bool, failingEntryID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ok, failingEntryID = VerifyChain(s.entries)
	return ok, failingEntryID
}

// Size returns the number of entries in the store.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// VerifyChain re-verifies a hash chain of entries produced by Append,
// without requiring a live Store — e.g. entries reloaded from a durable
// export for out-of-process verification (the CLI's verify-audit
// command).
func VerifyChain(entries []*Entry) (ok bool, failingEntryID string) {
	expectedPrev := "genesis"
	for _, e := range entries {
		if e.PreviousHash != expectedPrev {
			return false, e.EntryID
		}
		if computeEntryHash(e) != e.EntryHash {
			return false, e.EntryID
		}
		expectedPrev = e.EntryHash
	}
	return true, ""
}
