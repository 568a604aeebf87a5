package connector

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/aegis-health/core/pkg/entity"
)

// SourceType enumerates the supported connector formats.
type SourceType string

const (
	SourceFHIR      SourceType = "fhir"
	SourceHL7v2     SourceType = "hl7v2"
	SourceCCDA      SourceType = "ccda"
	SourceX12_837   SourceType = "x12_837"
	SourceX12_835   SourceType = "x12_835"
	SourceX12_270   SourceType = "x12_270"
	SourceX12_278   SourceType = "x12_278"
	SourceDICOMJSON SourceType = "dicom_json"
	SourcePROSDOH   SourceType = "pro_sdoh"
	SourceConsent   SourceType = "consent"
	SourceWearable  SourceType = "wearable"
)

// ParseResult is what every connector's Parse returns: never an error for
// recoverable per-record problems — those are collected in Errors. Only
// a malformed root payload sets Success=false with a single top-level error.
type ParseResult struct {
	Success  bool
	Vertices []entity.Vertex
	Edges    []entity.Edge
	Errors   []string
	Warnings []string
	Metadata map[string]any
}

// Connector is the tagged capability set every format-specific parser
// implements. Registered into a Registry keyed by SourceType — dispatch
// is a map lookup, never reflection (per the platform's "duck-typed
// connector interface -> tagged interface" redesign guidance).
type Connector interface {
	Type() SourceType
	Validate(payload []byte) []error
	Parse(ctx context.Context, tenantID, sourceSystem string, payload []byte) (*ParseResult, error)
}

// Registry maps SourceType to its registered Connector.
type Registry struct {
	mu         sync.RWMutex
	connectors map[SourceType]Connector
}

// NewRegistry creates an empty connector registry.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[SourceType]Connector)}
}

// Register adds a connector under its own Type(). Registration is a
// direct call performed once at startup, never a side effect of
// package initialization.
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.Type()] = c
}

// Registered returns the source types currently registered, in no
// particular order.
func (r *Registry) Registered() []SourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]SourceType, 0, len(r.connectors))
	for t := range r.connectors {
		types = append(types, t)
	}
	return types
}

// Resolve looks up a connector by source type.
func (r *Registry) Resolve(t SourceType) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[t]
	if !ok {
		return nil, fmt.Errorf("connector: unknown source type %q", t)
	}
	return c, nil
}

// BaseConnector supplies the rate-limited, provenance-tagged plumbing
// shared by every format-specific connector: a per-connector token
// bucket (adapted from pkg/arc/connector.go's BaseConnector) plus the
// zero-trust provenance tag attached to every parsed artifact.
type BaseConnector struct {
	id         string
	trustLevel TrustLevel
	limiter    *rate.Limiter
}

// NewBaseConnector builds the shared connector plumbing.
func NewBaseConnector(id string, trustLevel TrustLevel, r rate.Limit, burst int) BaseConnector {
	return BaseConnector{id: id, trustLevel: trustLevel, limiter: rate.NewLimiter(r, burst)}
}

// ID returns the connector's identifier, used as ProvenanceTag.ConnectorID.
func (b *BaseConnector) ID() string { return b.id }

// TrustLevel returns the connector's configured trust level.
func (b *BaseConnector) TrustLevel() TrustLevel { return b.trustLevel }

// Wait blocks until the rate limiter admits one more parse.
func (b *BaseConnector) Wait(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}

// Tag stamps a fresh ProvenanceTag for a just-parsed payload.
func (b *BaseConnector) Tag(payload []byte, ttlSeconds int) *ProvenanceTag {
	return ComputeProvenanceTag(b.id, payload, payload, ttlSeconds, b.trustLevel)
}
