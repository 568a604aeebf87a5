package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/aegis-health/core/pkg/audit"
	"github.com/aegis-health/core/pkg/config"
	"github.com/aegis-health/core/pkg/connector"
	"github.com/aegis-health/core/pkg/entity"
	"github.com/aegis-health/core/pkg/errs"
	"github.com/aegis-health/core/pkg/ingestion"
	"github.com/aegis-health/core/pkg/quality"
)

// logWriter is a GraphWriter that logs every upsert/edge instead of
// reaching into a real graph store — enough to demonstrate and audit
// the pipeline from a single CLI invocation with no database wired up.
type logWriter struct{}

func (logWriter) UpsertVertex(_ context.Context, v entity.Vertex) error {
	slog.Info("vertex upserted", "label", v.Label, "id", v.ID, "tenant_id", v.TenantID)
	return nil
}

func (logWriter) CreateEdgeIfAbsent(_ context.Context, e entity.Edge) error {
	slog.Info("edge created", "label", e.Label, "from", e.FromID, "to", e.ToID)
	return nil
}

// logPublisher is a Publisher that logs every publish instead of
// writing to a real message bus.
type logPublisher struct{}

func (logPublisher) Publish(_ context.Context, topic string, payload any) error {
	slog.Info("published", "topic", topic, "payload", payload)
	return nil
}

func runIngest(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	tenantID := fs.String("tenant", "default", "tenant ID the ingested records belong to")
	sourceSystem := fs.String("source-system", "cli", "identifier of the originating system")
	indexRAG := fs.Bool("index-rag", false, "index validated vertices into the vector store")
	if err := fs.Parse(args); err != nil {
		return &errs.Validation{Message: err.Error()}
	}
	rest := fs.Args()
	if len(rest) != 2 {
		return &errs.Validation{Message: "usage: aegis ingest <source_type> <path>"}
	}
	sourceType, path := connector.SourceType(rest[0]), rest[1]

	payload, err := os.ReadFile(path)
	if err != nil {
		return &errs.Validation{Field: "path", Message: err.Error()}
	}

	reg := defaultRegistry()
	orch := ingestion.NewOrchestrator(reg, logWriter{}, logPublisher{}, ingestion.WithValidator(quality.NewValidator(nil)))

	result, err := orch.Ingest(ctx, sourceType, payload, *tenantID, *sourceSystem, *indexRAG)
	if err != nil {
		return &errs.Upstream{Provider: string(sourceType), Err: err}
	}

	store, auditErr := openAuditStore(cfg.AuditLogPath)
	if auditErr != nil {
		return &errs.Integrity{Message: auditErr.Error()}
	}
	if _, err := store.Append(ctx, audit.EventModify, "ingest", string(sourceType), map[string]any{
		"receipt_id":     result.Receipt.ReceiptID,
		"vertices_total": result.VerticesTotal,
		"vertices_valid": result.VerticesValid,
		"vertices_dlqed": result.VerticesDLQed,
		"edges_created":  result.EdgesCreated,
		"cost_usd":       result.Receipt.CostUSD,
	}, map[string]string{"tenant_id": *tenantID, "source_system": *sourceSystem}); err != nil {
		return &errs.Integrity{Message: err.Error()}
	}
	if err := persistAuditStore(cfg.AuditLogPath, store); err != nil {
		return &errs.Integrity{Message: err.Error()}
	}

	fmt.Printf("receipt %s: %d/%d vertices valid, %d edges created, %d indexed, cost $%.4f\n",
		result.Receipt.ReceiptID, result.VerticesValid, result.VerticesTotal,
		result.EdgesCreated, result.Indexed, result.Receipt.CostUSD)
	for _, e := range result.ParseErrors {
		fmt.Fprintln(os.Stderr, "parse error:", e)
	}
	for _, e := range result.PersistErrors {
		fmt.Fprintln(os.Stderr, "persist error:", e)
	}
	for _, e := range result.PublishErrors {
		fmt.Fprintln(os.Stderr, "publish error:", e)
	}
	return nil
}
