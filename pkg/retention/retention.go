// Package retention enforces per-entity-type time-to-live on stored
// artifacts, subject to legal-hold override, with an optional
// cold-archive step before deletion. Generalizes the teacher's
// pkg/tiers.Limits.RetentionDays — a single per-tier retention number —
// into a per-entity-type TTL table, and follows
// pkg/database/multiregion.go's config-struct convention for its
// optional archive target.
package retention

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Policy is the retention rule for one entity type.
type Policy struct {
	EntityType string
	TTL        time.Duration
	// MinEngineVersion is an optional semver constraint (e.g. ">= 1.4.0")
	// on the engine versions allowed to run this policy, for policies
	// that depend on retention features added after v1 (legal-hold
	// override shipped in 1.2, the archive step in 1.4). Empty means no
	// constraint.
	MinEngineVersion string
}

// Item is one artifact under retention management.
type Item struct {
	ID         string
	EntityType string
	TenantID   string
	CreatedAt  time.Time
	LegalHold  bool
}

// Archiver uploads an item's payload to cold storage before it is
// purged from primary storage. nil means no archive step runs.
type Archiver interface {
	Archive(ctx context.Context, item Item, payload []byte) error
}

// Disposition records what happened to one item during a sweep.
type Disposition struct {
	Item     Item
	Action   string // "retained" | "legal_hold" | "archived" | "purged"
	Reason   string
	ArchivedAt time.Time
}

// Manager evaluates items against per-entity-type policies.
type Manager struct {
	mu       sync.RWMutex
	policies map[string]Policy
	archiver Archiver
}

func NewManager(policies []Policy, archiver Archiver) *Manager {
	m := &Manager{policies: make(map[string]Policy, len(policies)), archiver: archiver}
	for _, p := range policies {
		m.policies[p.EntityType] = p
	}
	return m
}

func (m *Manager) SetPolicy(p Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[p.EntityType] = p
}

// CheckCompatibility verifies engineVersion against every configured
// policy's MinEngineVersion constraint, returning an error naming the
// first policy an older engine could not safely run. Call this once at
// startup, before the first Sweep, so a downgrade never silently skips
// a retention feature a policy assumes is present.
func (m *Manager) CheckCompatibility(engineVersion string) error {
	v, err := semver.NewVersion(engineVersion)
	if err != nil {
		return fmt.Errorf("retention: parse engine version %q: %w", engineVersion, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.policies {
		if p.MinEngineVersion == "" {
			continue
		}
		c, err := semver.NewConstraint(p.MinEngineVersion)
		if err != nil {
			return fmt.Errorf("retention: parse constraint %q for entity type %q: %w", p.MinEngineVersion, p.EntityType, err)
		}
		if !c.Check(v) {
			return fmt.Errorf("retention: policy %q requires engine %s, running %s", p.EntityType, p.MinEngineVersion, engineVersion)
		}
	}
	return nil
}

// Sweep evaluates every item against its entity type's TTL at `now`.
// Items on legal hold are always retained regardless of age. Items
// with no configured policy are retained (fail-safe: an unconfigured
// entity type is never silently destroyed). Payload is optional — pass
// nil for items whose Archiver does not need the underlying bytes.
// Archival is skipped (expired items go straight to purge accounting)
// only when the Manager has no Archiver.
func (m *Manager) Sweep(ctx context.Context, items []Item, payloads map[string][]byte, now time.Time) ([]Disposition, error) {
	m.mu.RLock()
	policies := make(map[string]Policy, len(m.policies))
	for k, v := range m.policies {
		policies[k] = v
	}
	m.mu.RUnlock()

	dispositions := make([]Disposition, 0, len(items))
	for _, item := range items {
		if item.LegalHold {
			dispositions = append(dispositions, Disposition{Item: item, Action: "legal_hold", Reason: "legal hold active"})
			continue
		}

		policy, ok := policies[item.EntityType]
		if !ok {
			dispositions = append(dispositions, Disposition{Item: item, Action: "retained", Reason: "no retention policy configured for entity type"})
			continue
		}

		age := now.Sub(item.CreatedAt)
		if age < policy.TTL {
			dispositions = append(dispositions, Disposition{Item: item, Action: "retained", Reason: fmt.Sprintf("age %s below TTL %s", age, policy.TTL)})
			continue
		}

		if m.archiver != nil {
			if err := m.archiver.Archive(ctx, item, payloads[item.ID]); err != nil {
				return dispositions, fmt.Errorf("retention: archive item %s: %w", item.ID, err)
			}
			dispositions = append(dispositions, Disposition{Item: item, Action: "archived", Reason: "TTL expired, archived before purge", ArchivedAt: now})
			continue
		}

		dispositions = append(dispositions, Disposition{Item: item, Action: "purged", Reason: "TTL expired"})
	}
	return dispositions, nil
}

// KeepLatestCheckpoints returns the subset of ids to purge so that at
// most keepN of the most recent checkpoints remain for one execution.
// Checkpoints are the one retention concern that isn't TTL-shaped: a
// running workflow needs its most recent N checkpoints regardless of
// their age, so this is evaluated by recency-rank rather than Policy TTL.
func KeepLatestCheckpoints(ids []string, stepNumbers map[string]int, keepN int) []string {
	if keepN <= 0 || len(ids) <= keepN {
		return nil
	}

	ordered := make([]string, len(ids))
	copy(ordered, ids)
	sort.Slice(ordered, func(i, j int) bool { return stepNumbers[ordered[i]] > stepNumbers[ordered[j]] })

	return ordered[keepN:]
}
