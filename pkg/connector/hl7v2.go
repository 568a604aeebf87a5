package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/aegis-health/core/pkg/entity"
)

// HL7v2Connector parses pipe-delimited ADT/ORU messages with the
// MSH/PID/PV1/OBX/DG1/IN1 segment grammar.
type HL7v2Connector struct {
	BaseConnector
}

func NewHL7v2Connector(ratePerSec rate.Limit, burst int) *HL7v2Connector {
	return &HL7v2Connector{BaseConnector: NewBaseConnector("hl7v2", TrustLevelVerified, ratePerSec, burst)}
}

func (c *HL7v2Connector) Type() SourceType { return SourceHL7v2 }

func (c *HL7v2Connector) Validate(payload []byte) []error {
	if !strings.HasPrefix(string(payload), "MSH") {
		return []error{fmt.Errorf("hl7v2: message does not start with MSH segment")}
	}
	return nil
}

// triggerStatus maps an MSH-9 trigger event to an Encounter status.
func triggerStatus(trigger string) (status string) {
	switch trigger {
	case "A01", "A04":
		return "in-progress"
	case "A03":
		return "finished"
	case "A08":
		return "update"
	default:
		return "unknown"
	}
}

// parseHL7Date converts HL7's YYYYMMDD[HHMMSS] to ISO-8601, zero-padding
// a missing day (used for birth dates where day-of-month may be absent).
func parseHL7Date(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case len(raw) >= 14:
		return fmt.Sprintf("%s-%s-%sT%s:%s:%sZ", raw[0:4], raw[4:6], raw[6:8], raw[8:10], raw[10:12], raw[12:14])
	case len(raw) == 8:
		return fmt.Sprintf("%s-%s-%s", raw[0:4], raw[4:6], raw[6:8])
	case len(raw) == 6:
		return fmt.Sprintf("%s-%s-01", raw[0:4], raw[4:6])
	case len(raw) == 4:
		return fmt.Sprintf("%s-01-01", raw)
	default:
		return raw
	}
}

func (c *HL7v2Connector) Parse(ctx context.Context, tenantID, sourceSystem string, payload []byte) (*ParseResult, error) {
	if err := c.Wait(ctx); err != nil {
		return nil, fmt.Errorf("hl7v2: rate limit wait: %w", err)
	}

	lines := strings.Split(strings.ReplaceAll(string(payload), "\r", "\n"), "\n")
	result := &ParseResult{Success: true, Metadata: map[string]any{}}
	now := time.Now()

	var patientID, encounterID string
	var trigger string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		segName := fields[0]

		switch segName {
		case "MSH":
			if len(fields) > 8 {
				trigger = strings.Split(fields[8], "^")[0]
			}

		case "PID":
			if len(fields) > 3 {
				patientID = firstComponent(fields[3])
			}
			var birthDate string
			if len(fields) > 7 {
				birthDate = parseHL7Date(fields[7])
			}
			if patientID == "" {
				result.Errors = append(result.Errors, "PID segment missing patient identifier")
				continue
			}
			v := entity.Vertex{
				Label: entity.LabelPatient, ID: "Patient/" + patientID, TenantID: tenantID,
				SourceSystem: sourceSystem, CreatedAt: now,
				Fields: map[string]any{"birth_date": birthDate},
			}
			result.Vertices = append(result.Vertices, v)

		case "PV1":
			if len(fields) > 19 {
				encounterID = firstComponent(fields[19])
			}
			if encounterID == "" {
				result.Warnings = append(result.Warnings, "PV1 segment missing visit number, encounter skipped")
				continue
			}
			class := "outpatient"
			if len(fields) > 2 {
				switch fields[2] {
				case "I":
					class = "inpatient"
				case "E":
					class = "ER"
				case "O":
					class = "outpatient"
				}
			}
			v := entity.Vertex{
				Label: entity.LabelEncounter, ID: "Encounter/" + encounterID, TenantID: tenantID,
				SourceSystem: sourceSystem, CreatedAt: now,
				Fields: map[string]any{
					"class":  class,
					"status": triggerStatus(trigger),
				},
			}
			result.Vertices = append(result.Vertices, v)
			if patientID != "" {
				result.Edges = append(result.Edges, entity.Edge{
					Label: entity.EdgeHasEncounter, TenantID: tenantID,
					FromLabel: entity.LabelPatient, FromID: "Patient/" + patientID,
					ToLabel: entity.LabelEncounter, ToID: "Encounter/" + encounterID,
				})
			}

		case "OBX":
			if len(fields) <= 5 {
				result.Warnings = append(result.Warnings, "OBX segment too short, skipped")
				continue
			}
			obsID := fmt.Sprintf("Observation/%s-obx-%d", encounterID, len(result.Vertices))
			v := entity.Vertex{
				Label: entity.LabelObservation, ID: obsID, TenantID: tenantID,
				SourceSystem: sourceSystem, CreatedAt: now,
				Fields: map[string]any{
					"code":  firstComponent(fields[3]),
					"value": fields[5],
				},
			}
			result.Vertices = append(result.Vertices, v)

		case "DG1":
			if len(fields) <= 3 {
				continue
			}
			diagID := fmt.Sprintf("Condition/%s-dg1-%d", encounterID, len(result.Vertices))
			v := entity.Vertex{
				Label: entity.LabelCondition, ID: diagID, TenantID: tenantID,
				SourceSystem: sourceSystem, CreatedAt: now,
				Fields: map[string]any{"code": firstComponent(fields[3])},
			}
			result.Vertices = append(result.Vertices, v)

		case "IN1":
			// Coverage segment: recorded as metadata, not a first-class
			// vertex in this connector (no payer-adjudication scope).
			result.Metadata["has_coverage"] = true
		}
	}

	return result, nil
}

func firstComponent(field string) string {
	return strings.Split(field, "^")[0]
}
