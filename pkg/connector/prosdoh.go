package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/aegis-health/core/pkg/entity"
)

// proSDOHPayload is a flat patient-reported outcome / social-determinants
// survey response.
type proSDOHPayload struct {
	PatientID   string  `json:"patient_id"`
	QuestionID  string  `json:"question_id"`
	Response    string  `json:"response"`
	Score       float64 `json:"score,omitempty"`
	Category    string  `json:"category"` // "survey" | "sdoh"
	EffectiveTS string  `json:"effective_ts"`
}

// PROSDOHConnector parses patient-reported outcome and social-determinants
// survey payloads into Observation vertices.
type PROSDOHConnector struct {
	BaseConnector
}

func NewPROSDOHConnector(ratePerSec rate.Limit, burst int) *PROSDOHConnector {
	return &PROSDOHConnector{BaseConnector: NewBaseConnector("pro_sdoh", TrustLevelRestricted, ratePerSec, burst)}
}

func (c *PROSDOHConnector) Type() SourceType { return SourcePROSDOH }

func (c *PROSDOHConnector) Validate(payload []byte) []error {
	var p proSDOHPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return []error{fmt.Errorf("pro_sdoh: invalid JSON: %w", err)}
	}
	if p.PatientID == "" {
		return []error{fmt.Errorf("pro_sdoh: missing patient_id")}
	}
	return nil
}

func (c *PROSDOHConnector) Parse(ctx context.Context, tenantID, sourceSystem string, payload []byte) (*ParseResult, error) {
	if err := c.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pro_sdoh: rate limit wait: %w", err)
	}

	var p proSDOHPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.PatientID == "" {
		return &ParseResult{Success: false, Errors: []string{"malformed PRO/SDOH payload"}}, nil
	}

	now := time.Now()
	obsID := fmt.Sprintf("Observation/%s-%s", p.PatientID, p.QuestionID)
	result := &ParseResult{
		Success: true,
		Vertices: []entity.Vertex{{
			Label: entity.LabelObservation, ID: obsID, TenantID: tenantID,
			SourceSystem: sourceSystem, CreatedAt: now,
			Fields: map[string]any{
				"code":         p.QuestionID,
				"value":        p.Response,
				"score":        p.Score,
				"category":     p.Category,
				"effective_ts": p.EffectiveTS,
			},
		}},
		Edges: []entity.Edge{{
			Label: entity.EdgeHasObservation, TenantID: tenantID,
			FromLabel: entity.LabelPatient, FromID: "Patient/" + p.PatientID,
			ToLabel: entity.LabelObservation, ToID: obsID,
		}},
		Metadata: map[string]any{},
	}
	return result, nil
}
