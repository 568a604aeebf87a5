package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/aegis-health/core/pkg/entity"
)

// wearableReadingPayload is a single continuous-telemetry vital reading
// from a consumer or clinical wearable device.
type wearableReadingPayload struct {
	PatientID   string  `json:"patient_id"`
	DeviceID    string  `json:"device_id"`
	Metric      string  `json:"metric"` // heart_rate | spo2 | steps | sleep_minutes | glucose
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
	EffectiveTS string  `json:"effective_ts"`
}

// wearablePayload carries a batch of readings from one device upload.
type wearablePayload struct {
	PatientID string                   `json:"patient_id"`
	DeviceID  string                   `json:"device_id"`
	Readings  []wearableReadingPayload `json:"readings"`
}

// WearableConnector parses flat-JSON wearable-device telemetry batches
// into vital-category Observation vertices.
type WearableConnector struct {
	BaseConnector
}

func NewWearableConnector(ratePerSec rate.Limit, burst int) *WearableConnector {
	return &WearableConnector{BaseConnector: NewBaseConnector("wearable", TrustLevelRestricted, ratePerSec, burst)}
}

func (c *WearableConnector) Type() SourceType { return SourceWearable }

func (c *WearableConnector) Validate(payload []byte) []error {
	var p wearablePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return []error{fmt.Errorf("wearable: invalid JSON: %w", err)}
	}
	if p.PatientID == "" {
		return []error{fmt.Errorf("wearable: missing patient_id")}
	}
	if len(p.Readings) == 0 {
		return []error{fmt.Errorf("wearable: no readings in payload")}
	}
	return nil
}

func (c *WearableConnector) Parse(ctx context.Context, tenantID, sourceSystem string, payload []byte) (*ParseResult, error) {
	if err := c.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wearable: rate limit wait: %w", err)
	}

	var p wearablePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.PatientID == "" {
		return &ParseResult{Success: false, Errors: []string{"malformed wearable payload"}}, nil
	}

	now := time.Now()
	result := &ParseResult{Success: true, Metadata: map[string]any{"device_id": p.DeviceID}}

	for i, r := range p.Readings {
		if r.Metric == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("reading %d missing metric, skipped", i))
			continue
		}
		obsID := fmt.Sprintf("Observation/%s-%s-%d", p.PatientID, r.Metric, i)
		result.Vertices = append(result.Vertices, entity.Vertex{
			Label: entity.LabelObservation, ID: obsID, TenantID: tenantID,
			SourceSystem: sourceSystem, CreatedAt: now,
			Fields: map[string]any{
				"code":         r.Metric,
				"value":        r.Value,
				"unit":         r.Unit,
				"category":     "vital",
				"device_id":    p.DeviceID,
				"effective_ts": r.EffectiveTS,
			},
		})
		result.Edges = append(result.Edges, entity.Edge{
			Label: entity.EdgeHasObservation, TenantID: tenantID,
			FromLabel: entity.LabelPatient, FromID: "Patient/" + p.PatientID,
			ToLabel: entity.LabelObservation, ToID: obsID,
		})
	}

	return result, nil
}
