package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/aegis-health/core/pkg/entity"
)

type consentProvisionPayload struct {
	Type           string   `json:"type"` // permit | deny
	Actions        []string `json:"actions"`
	Purposes       []string `json:"purposes"`
	DataCategories []string `json:"data_categories"`
	PeriodStart    string   `json:"period_start,omitempty"`
	PeriodEnd      string   `json:"period_end,omitempty"`
	Actors         []string `json:"actors"`
}

type consentPayload struct {
	ID         string                    `json:"id"`
	PatientID  string                    `json:"patient_id"`
	Status     string                    `json:"status"`
	Scope      string                    `json:"scope"`
	DateTime   string                    `json:"date_time"`
	Provisions []consentProvisionPayload `json:"provisions"`
}

// ConsentConnector parses a patient consent document directly into
// Consent and Provision vertices feeding the Consent Engine's store.
type ConsentConnector struct {
	BaseConnector
}

func NewConsentConnector(ratePerSec rate.Limit, burst int) *ConsentConnector {
	return &ConsentConnector{BaseConnector: NewBaseConnector("consent", TrustLevelFull, ratePerSec, burst)}
}

func (c *ConsentConnector) Type() SourceType { return SourceConsent }

func (c *ConsentConnector) Validate(payload []byte) []error {
	var p consentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return []error{fmt.Errorf("consent: invalid JSON: %w", err)}
	}
	if p.PatientID == "" || p.ID == "" {
		return []error{fmt.Errorf("consent: missing id or patient_id")}
	}
	return nil
}

func (c *ConsentConnector) Parse(ctx context.Context, tenantID, sourceSystem string, payload []byte) (*ParseResult, error) {
	if err := c.Wait(ctx); err != nil {
		return nil, fmt.Errorf("consent: rate limit wait: %w", err)
	}

	var p consentPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.PatientID == "" || p.ID == "" {
		return &ParseResult{Success: false, Errors: []string{"malformed consent payload"}}, nil
	}

	now := time.Now()
	consentVertexID := "Consent/" + p.ID
	result := &ParseResult{Success: true, Metadata: map[string]any{}}

	result.Vertices = append(result.Vertices, entity.Vertex{
		Label: entity.LabelConsent, ID: consentVertexID, TenantID: tenantID,
		SourceSystem: sourceSystem, CreatedAt: now,
		Fields: map[string]any{
			"patient_id": p.PatientID,
			"status":     p.Status,
			"scope":      p.Scope,
			"date_time":  p.DateTime,
		},
	})
	result.Edges = append(result.Edges, entity.Edge{
		Label: entity.EdgeHasConsent, TenantID: tenantID,
		FromLabel: entity.LabelPatient, FromID: "Patient/" + p.PatientID,
		ToLabel: entity.LabelConsent, ToID: consentVertexID,
	})

	for i, prov := range p.Provisions {
		provID := fmt.Sprintf("Provision/%s-%d", p.ID, i)
		result.Vertices = append(result.Vertices, entity.Vertex{
			Label: entity.LabelProvision, ID: provID, TenantID: tenantID,
			SourceSystem: sourceSystem, CreatedAt: now,
			Fields: map[string]any{
				"type":            prov.Type,
				"actions":         prov.Actions,
				"purposes":        prov.Purposes,
				"data_categories": prov.DataCategories,
				"period_start":    prov.PeriodStart,
				"period_end":      prov.PeriodEnd,
				"actors":          prov.Actors,
			},
		})
		result.Edges = append(result.Edges, entity.Edge{
			Label: entity.EdgeHasProvision, TenantID: tenantID,
			FromLabel: entity.LabelConsent, FromID: consentVertexID,
			ToLabel: entity.LabelProvision, ToID: provID,
		})
	}

	return result, nil
}
