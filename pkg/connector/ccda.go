package connector

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/aegis-health/core/pkg/entity"
)

// C-CDA section LOINC codes that drive extraction.
const (
	sectionProblems  = "11450-4"
	sectionMeds      = "10160-0"
	sectionAllergies = "48765-2"
)

// CCDAConnector parses constrained clinical-document XML, using
// standardized section LOINC codes to drive extraction.
type CCDAConnector struct {
	BaseConnector
}

func NewCCDAConnector(ratePerSec rate.Limit, burst int) *CCDAConnector {
	return &CCDAConnector{BaseConnector: NewBaseConnector("ccda", TrustLevelVerified, ratePerSec, burst)}
}

func (c *CCDAConnector) Type() SourceType { return SourceCCDA }

func (c *CCDAConnector) Validate(payload []byte) []error {
	var doc ccdaDocument
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return []error{fmt.Errorf("ccda: invalid XML: %w", err)}
	}
	return nil
}

type ccdaDocument struct {
	XMLName    xml.Name     `xml:"ClinicalDocument"`
	RecordTarget recordTarget `xml:"recordTarget"`
	Sections   []ccdaSection `xml:"component>structuredBody>component>section"`
}

type recordTarget struct {
	PatientRole struct {
		ID struct {
			Extension string `xml:"extension,attr"`
		} `xml:"id"`
	} `xml:"patientRole"`
}

type ccdaSection struct {
	Code struct {
		Code string `xml:"code,attr"`
	} `xml:"code"`
	Entries []ccdaEntry `xml:"entry"`
}

type ccdaEntry struct {
	Code struct {
		Code        string `xml:"code,attr"`
		DisplayName string `xml:"displayName,attr"`
	} `xml:"observation>value"`
}

func (c *CCDAConnector) Parse(ctx context.Context, tenantID, sourceSystem string, payload []byte) (*ParseResult, error) {
	if err := c.Wait(ctx); err != nil {
		return nil, fmt.Errorf("ccda: rate limit wait: %w", err)
	}

	var doc ccdaDocument
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return &ParseResult{Success: false, Errors: []string{"malformed C-CDA document"}}, nil
	}

	patientID := doc.RecordTarget.PatientRole.ID.Extension
	if patientID == "" {
		return &ParseResult{Success: false, Errors: []string{"C-CDA document missing patient id"}}, nil
	}

	now := time.Now()
	result := &ParseResult{Success: true, Metadata: map[string]any{}}
	result.Vertices = append(result.Vertices, entity.Vertex{
		Label: entity.LabelPatient, ID: "Patient/" + patientID, TenantID: tenantID,
		SourceSystem: sourceSystem, CreatedAt: now,
	})

	for i, sec := range doc.Sections {
		for j, e := range sec.Entries {
			switch sec.Code.Code {
			case sectionProblems:
				id := fmt.Sprintf("Condition/%s-%d-%d", patientID, i, j)
				result.Vertices = append(result.Vertices, entity.Vertex{
					Label: entity.LabelCondition, ID: id, TenantID: tenantID,
					SourceSystem: sourceSystem, CreatedAt: now,
					Fields: map[string]any{"code": e.Code.Code, "display": e.Code.DisplayName},
				})
				result.Edges = append(result.Edges, entity.Edge{
					Label: entity.EdgeDocumentsCondition, TenantID: tenantID,
					FromLabel: entity.LabelPatient, FromID: "Patient/" + patientID,
					ToLabel: entity.LabelCondition, ToID: id,
				})
			case sectionMeds:
				id := fmt.Sprintf("MedicationRequest/%s-%d-%d", patientID, i, j)
				result.Vertices = append(result.Vertices, entity.Vertex{
					Label: entity.LabelMedication, ID: id, TenantID: tenantID,
					SourceSystem: sourceSystem, CreatedAt: now,
					Fields: map[string]any{"code": e.Code.Code, "display": e.Code.DisplayName},
				})
				result.Edges = append(result.Edges, entity.Edge{
					Label: entity.EdgeDocumentsMedication, TenantID: tenantID,
					FromLabel: entity.LabelPatient, FromID: "Patient/" + patientID,
					ToLabel: entity.LabelMedication, ToID: id,
				})
			case sectionAllergies:
				result.Warnings = append(result.Warnings, fmt.Sprintf("allergy entry %d/%d recorded as metadata only", i, j))
			default:
				result.Warnings = append(result.Warnings, fmt.Sprintf("unsupported C-CDA section code %q ignored", sec.Code.Code))
			}
		}
	}

	return result, nil
}
