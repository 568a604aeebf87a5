package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/aegis-health/core/pkg/entity"
)

// FHIRConnector parses a FHIR R4 Bundle, dispatching on resourceType.
// Unknown resource types are skipped with a warning rather than an error.
type FHIRConnector struct {
	BaseConnector
}

// NewFHIRConnector builds a FHIR connector with the given per-second fetch rate.
func NewFHIRConnector(ratePerSec rate.Limit, burst int) *FHIRConnector {
	return &FHIRConnector{BaseConnector: NewBaseConnector("fhir", TrustLevelVerified, ratePerSec, burst)}
}

func (c *FHIRConnector) Type() SourceType { return SourceFHIR }

func (c *FHIRConnector) Validate(payload []byte) []error {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return []error{fmt.Errorf("fhir: invalid JSON: %w", err)}
	}
	if raw["resourceType"] != "Bundle" {
		return []error{fmt.Errorf("fhir: expected Bundle, got %v", raw["resourceType"])}
	}
	return nil
}

type fhirBundle struct {
	ResourceType string      `json:"resourceType"`
	Entry        []fhirEntry `json:"entry"`
}

type fhirEntry struct {
	Resource map[string]any `json:"resource"`
}

// Parse dispatches every bundle entry on resourceType, building vertices
// and edges from subject/encounter references.
func (c *FHIRConnector) Parse(ctx context.Context, tenantID, sourceSystem string, payload []byte) (*ParseResult, error) {
	if err := c.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fhir: rate limit wait: %w", err)
	}

	var bundle fhirBundle
	if err := json.Unmarshal(payload, &bundle); err != nil || bundle.ResourceType != "Bundle" {
		return &ParseResult{Success: false, Errors: []string{"malformed FHIR Bundle payload"}}, nil
	}

	result := &ParseResult{Success: true, Metadata: map[string]any{}}
	now := time.Now()

	for _, e := range bundle.Entry {
		res := e.Resource
		resourceType, _ := res["resourceType"].(string)
		id, _ := res["id"].(string)
		if resourceType == "" || id == "" {
			result.Warnings = append(result.Warnings, "entry missing resourceType or id, skipped")
			continue
		}

		switch resourceType {
		case "Patient":
			v := entity.Vertex{
				Label: entity.LabelPatient, ID: "Patient/" + id, TenantID: tenantID,
				SourceSystem: sourceSystem, CreatedAt: now,
				Fields: map[string]any{
					"names":      res["name"],
					"birth_date": res["birthDate"],
					"gender":     res["gender"],
				},
			}
			result.Vertices = append(result.Vertices, v)

		case "Encounter":
			v := entity.Vertex{
				Label: entity.LabelEncounter, ID: "Encounter/" + id, TenantID: tenantID,
				SourceSystem: sourceSystem, CreatedAt: now,
				Fields: map[string]any{
					"status": res["status"],
					"class":  res["class"],
					"period": res["period"],
				},
			}
			result.Vertices = append(result.Vertices, v)
			if ref := referenceID(res, "subject"); ref != "" {
				result.Edges = append(result.Edges, entity.Edge{
					Label: entity.EdgeHasEncounter, TenantID: tenantID,
					FromLabel: entity.LabelPatient, FromID: "Patient/" + ref,
					ToLabel: entity.LabelEncounter, ToID: "Encounter/" + id,
				})
			}

		case "Condition":
			v := entity.Vertex{
				Label: entity.LabelCondition, ID: "Condition/" + id, TenantID: tenantID,
				SourceSystem: sourceSystem, CreatedAt: now,
				Fields: map[string]any{
					"code":            res["code"],
					"clinical_status": res["clinicalStatus"],
					"onset":           res["onsetDateTime"],
				},
			}
			result.Vertices = append(result.Vertices, v)
			if ref := referenceID(res, "subject"); ref != "" {
				result.Edges = append(result.Edges, entity.Edge{
					Label: entity.EdgeHasCondition, TenantID: tenantID,
					FromLabel: entity.LabelPatient, FromID: "Patient/" + ref,
					ToLabel: entity.LabelCondition, ToID: "Condition/" + id,
				})
			}

		case "Observation":
			v := entity.Vertex{
				Label: entity.LabelObservation, ID: "Observation/" + id, TenantID: tenantID,
				SourceSystem: sourceSystem, CreatedAt: now,
				Fields: map[string]any{
					"code":         res["code"],
					"value":        res["valueQuantity"],
					"effective_ts": res["effectiveDateTime"],
					"category":     res["category"],
				},
			}
			result.Vertices = append(result.Vertices, v)
			if ref := referenceID(res, "subject"); ref != "" {
				result.Edges = append(result.Edges, entity.Edge{
					Label: entity.EdgeHasObservation, TenantID: tenantID,
					FromLabel: entity.LabelPatient, FromID: "Patient/" + ref,
					ToLabel: entity.LabelObservation, ToID: "Observation/" + id,
				})
			}

		case "MedicationRequest":
			v := entity.Vertex{
				Label: entity.LabelMedication, ID: "MedicationRequest/" + id, TenantID: tenantID,
				SourceSystem: sourceSystem, CreatedAt: now,
				Fields: map[string]any{
					"medication": res["medicationCodeableConcept"],
					"status":     res["status"],
					"dosage":     res["dosageInstruction"],
				},
			}
			result.Vertices = append(result.Vertices, v)
			if ref := referenceID(res, "subject"); ref != "" {
				result.Edges = append(result.Edges, entity.Edge{
					Label: entity.EdgeHasMedication, TenantID: tenantID,
					FromLabel: entity.LabelPatient, FromID: "Patient/" + ref,
					ToLabel: entity.LabelMedication, ToID: "MedicationRequest/" + id,
				})
			}

		case "Procedure":
			v := entity.Vertex{
				Label: entity.LabelProcedure, ID: "Procedure/" + id, TenantID: tenantID,
				SourceSystem: sourceSystem, CreatedAt: now,
				Fields: map[string]any{
					"code":         res["code"],
					"performed_ts": res["performedDateTime"],
				},
			}
			result.Vertices = append(result.Vertices, v)
			if ref := referenceID(res, "subject"); ref != "" {
				result.Edges = append(result.Edges, entity.Edge{
					Label: entity.EdgeHasProcedure, TenantID: tenantID,
					FromLabel: entity.LabelPatient, FromID: "Patient/" + ref,
					ToLabel: entity.LabelProcedure, ToID: "Procedure/" + id,
				})
			}

		default:
			result.Warnings = append(result.Warnings, fmt.Sprintf("unsupported resourceType %q ignored", resourceType))
		}
	}

	return result, nil
}

// referenceID extracts the trailing id segment of a FHIR reference field,
// e.g. {"reference":"Patient/P1"} -> "P1".
func referenceID(res map[string]any, field string) string {
	ref, ok := res[field].(map[string]any)
	if !ok {
		return ""
	}
	s, _ := ref["reference"].(string)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return s[i+1:]
		}
	}
	return s
}
