// Package ingestion implements the pipeline orchestrator that turns a
// raw connector payload into persisted, published, and (optionally)
// indexed graph entities. It generalizes pkg/arc's single-artifact
// IngestionService.Ingest (connector fetch -> content-addressed store
// -> cost-weighted metering event -> receipt) into the multi-vertex,
// multi-sink flow the platform's connector registry produces.
package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aegis-health/core/pkg/connector"
	"github.com/aegis-health/core/pkg/entity"
	"github.com/aegis-health/core/pkg/metering"
	"github.com/aegis-health/core/pkg/quality"
	"github.com/aegis-health/core/pkg/store"
)

// costPerKB weights ingestion cost by connector trust level, mirroring
// pkg/arc.IngestionService's costPerKB switch on TrustClass, but keyed
// on the connector.TrustLevel vocabulary the platform's registered
// connectors actually report (FULL/VERIFIED/RESTRICTED/UNTRUSTED)
// rather than arc's own official/partner/community enum.
var costPerKB = map[connector.TrustLevel]float64{
	connector.TrustLevelFull:       0.001,
	connector.TrustLevelVerified:   0.003,
	connector.TrustLevelRestricted: 0.006,
	connector.TrustLevelUntrusted:  0.010,
}

func defaultCostPerKB() float64 { return 0.010 }

// GraphWriter upserts validated vertices and creates edges. pkg/entity
// deliberately stays driver-agnostic (see its package doc), so this
// interface is defined here, narrow to what the orchestrator needs, the
// same way pkg/consent.Store and pkg/retention.Archiver are each
// defined local to their own component.
type GraphWriter interface {
	UpsertVertex(ctx context.Context, v entity.Vertex) error
	CreateEdgeIfAbsent(ctx context.Context, e entity.Edge) error
}

// Publisher emits a validated record to a named topic, conventionally
// "<source_type>.validated", and a rejected record to a dead-letter
// topic with its failure reason.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Receipt records a successful external-connector fetch with its
// trust-weighted cost, mirroring arc.IngestionReceipt.
type Receipt struct {
	ReceiptID     string
	SourceType    connector.SourceType
	Status        string // SUCCESS | ERROR
	BytesIngested int64
	CostUSD       float64
	Timestamp     time.Time
	Error         string
}

// Result is what Ingest returns: counts only, never an error for a
// partially-bad payload — invalid vertices are routed to the DLQ, not
// surfaced as a hard failure.
type Result struct {
	Receipt        Receipt
	VerticesTotal  int
	VerticesValid  int
	VerticesDLQed  int
	EdgesCreated   int
	Indexed        int
	ParseErrors    []string
	ParseWarnings  []string
	PersistErrors  []string
	PublishErrors  []string
	IndexErrors    []string
}

type dlqEntry struct {
	Vertex entity.Vertex
	Reason string
}

// Orchestrator wires a connector registry to persistence, publish, and
// (optionally) vector-indexing sinks.
type Orchestrator struct {
	registry  *connector.Registry
	validator *quality.Validator
	writer    GraphWriter
	publisher Publisher
	embedder  store.Embedder
	vectors   store.VectorStore
	meter     metering.Meter
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

func WithValidator(v *quality.Validator) Option { return func(o *Orchestrator) { o.validator = v } }
func WithVectorIndex(e store.Embedder, vs store.VectorStore) Option {
	return func(o *Orchestrator) { o.embedder = e; o.vectors = vs }
}
func WithMeter(m metering.Meter) Option { return func(o *Orchestrator) { o.meter = m } }

func NewOrchestrator(registry *connector.Registry, writer GraphWriter, publisher Publisher, opts ...Option) *Orchestrator {
	o := &Orchestrator{registry: registry, writer: writer, publisher: publisher}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ingest runs the full pipeline for one payload: resolve connector,
// parse, validate, persist, publish, and optionally index — fanning the
// last three out across one goroutine per sink, following
// arc.IngestionService.Ingest's plain-goroutines concurrency idiom.
// Never returns an error for data-quality problems; those are reported
// as DLQ counts in Result. Ingest only errors when the source_type is
// unregistered or the connector itself fails to parse the payload.
func (o *Orchestrator) Ingest(ctx context.Context, sourceType connector.SourceType, payload []byte, tenantID, sourceSystem string, indexInRAG bool) (*Result, error) {
	conn, err := o.registry.Resolve(sourceType)
	if err != nil {
		return nil, fmt.Errorf("ingestion: resolve connector: %w", err)
	}

	parsed, err := conn.Parse(ctx, tenantID, sourceSystem, payload)
	if err != nil {
		return nil, fmt.Errorf("ingestion: parse payload: %w", err)
	}

	res := &Result{
		Receipt: Receipt{
			ReceiptID:     uuid.NewString(),
			SourceType:    sourceType,
			Status:        "SUCCESS",
			BytesIngested: int64(len(payload)),
			Timestamp:     time.Now(),
		},
		VerticesTotal: len(parsed.Vertices),
		ParseErrors:   parsed.Errors,
		ParseWarnings: parsed.Warnings,
	}
	res.Receipt.CostUSD = o.cost(conn, int64(len(payload)))

	valid, dlq := o.validateVertices(parsed.Vertices)
	res.VerticesValid = len(valid)
	res.VerticesDLQed = len(dlq)

	var wg sync.WaitGroup
	var mu sync.Mutex

	wg.Add(1)
	go func() {
		defer wg.Done()
		created, errs := o.persist(ctx, valid, parsed.Edges)
		mu.Lock()
		res.EdgesCreated = created
		res.PersistErrors = errs
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs := o.publish(ctx, sourceType, valid, dlq)
		mu.Lock()
		res.PublishErrors = errs
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if !indexInRAG || o.embedder == nil || o.vectors == nil {
			return
		}
		indexed, errs := o.index(ctx, valid)
		mu.Lock()
		res.Indexed = indexed
		res.IndexErrors = errs
		mu.Unlock()
	}()

	wg.Wait()

	if o.meter != nil && tenantID != "" {
		_ = o.meter.RecordBatch(ctx, []metering.Event{{
			TenantID: tenantID, EventType: metering.EventIngestion, Quantity: res.Receipt.BytesIngested,
			Timestamp: res.Receipt.Timestamp,
			Metadata: map[string]any{
				"source_type": string(sourceType),
				"cost_usd":    res.Receipt.CostUSD,
				"receipt_id":  res.Receipt.ReceiptID,
			},
		}})
	}

	return res, nil
}

func (o *Orchestrator) cost(conn connector.Connector, bytesIngested int64) float64 {
	weight := defaultCostPerKB()
	if tc, ok := conn.(interface{ TrustLevel() connector.TrustLevel }); ok {
		if w, found := costPerKB[tc.TrustLevel()]; found {
			weight = w
		}
	}
	return (float64(bytesIngested) / 1024.0) * weight
}

func (o *Orchestrator) validateVertices(vertices []entity.Vertex) (valid []entity.Vertex, dlq []dlqEntry) {
	if o.validator == nil {
		return vertices, nil
	}
	for _, v := range vertices {
		results := o.validator.Validate(v)
		if quality.HasError(results) {
			dlq = append(dlq, dlqEntry{Vertex: v, Reason: firstErrorMessage(results)})
			continue
		}
		valid = append(valid, v)
	}
	return valid, dlq
}

func firstErrorMessage(results []quality.Result) string {
	for _, r := range results {
		if !r.Passed && r.Severity == quality.SeverityError {
			return r.Message
		}
	}
	return "data quality validation failed"
}

func (o *Orchestrator) persist(ctx context.Context, vertices []entity.Vertex, edges []entity.Edge) (edgesCreated int, errs []string) {
	if o.writer == nil {
		return 0, nil
	}
	for _, v := range vertices {
		if err := o.writer.UpsertVertex(ctx, v); err != nil {
			errs = append(errs, fmt.Sprintf("upsert vertex %s/%s: %v", v.Label, v.ID, err))
		}
	}
	for _, e := range edges {
		if err := o.writer.CreateEdgeIfAbsent(ctx, e); err != nil {
			errs = append(errs, fmt.Sprintf("create edge %s: %v", e.Label, err))
			continue
		}
		edgesCreated++
	}
	return edgesCreated, errs
}

func (o *Orchestrator) publish(ctx context.Context, sourceType connector.SourceType, valid []entity.Vertex, dlq []dlqEntry) (errs []string) {
	if o.publisher == nil {
		return nil
	}
	topic := string(sourceType) + ".validated"
	for _, v := range valid {
		if err := o.publisher.Publish(ctx, topic, v); err != nil {
			errs = append(errs, fmt.Sprintf("publish %s/%s: %v", v.Label, v.ID, err))
		}
	}
	for _, d := range dlq {
		if err := o.publisher.Publish(ctx, "dlq."+string(sourceType), map[string]any{
			"vertex": d.Vertex, "reason": d.Reason,
		}); err != nil {
			errs = append(errs, fmt.Sprintf("publish dlq %s/%s: %v", d.Vertex.Label, d.Vertex.ID, err))
		}
	}
	return errs
}

func (o *Orchestrator) index(ctx context.Context, vertices []entity.Vertex) (indexed int, errs []string) {
	for _, v := range vertices {
		text := vertexText(v)
		if text == "" {
			continue
		}
		vec, err := o.embedder.Embed(ctx, text)
		if err != nil {
			errs = append(errs, fmt.Sprintf("embed %s/%s: %v", v.Label, v.ID, err))
			continue
		}
		meta := map[string]string{"label": string(v.Label), "tenant_id": v.TenantID}
		if err := o.vectors.Store(ctx, string(v.Label)+"/"+v.ID, text, vec, meta); err != nil {
			errs = append(errs, fmt.Sprintf("index %s/%s: %v", v.Label, v.ID, err))
			continue
		}
		indexed++
	}
	return indexed, errs
}

// vertexText renders a vertex's flattened properties into the plain
// text an embedder consumes. Fields are not sorted: they appear in
// Go's map iteration order, which is irrelevant for embedding quality.
func vertexText(v entity.Vertex) string {
	props := v.Properties()
	text := string(v.Label) + " " + v.ID
	for k, val := range props {
		if k == "label" || k == "id" || k == "tenant_id" {
			continue
		}
		text += fmt.Sprintf(" %s=%v", k, val)
	}
	return text
}
