package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/aegis-health/core/pkg/entity"
)

// DICOMJSONConnector parses the DICOM JSON group tag-value-map format.
// [0020,000D] StudyInstanceUID is the primary key; modality is [0008,0060].
type DICOMJSONConnector struct {
	BaseConnector
}

func NewDICOMJSONConnector(ratePerSec rate.Limit, burst int) *DICOMJSONConnector {
	return &DICOMJSONConnector{BaseConnector: NewBaseConnector("dicom_json", TrustLevelVerified, ratePerSec, burst)}
}

func (c *DICOMJSONConnector) Type() SourceType { return SourceDICOMJSON }

type dicomValue struct {
	VR    string `json:"vr"`
	Value []any  `json:"Value"`
}

func (c *DICOMJSONConnector) Validate(payload []byte) []error {
	var doc map[string]dicomValue
	if err := json.Unmarshal(payload, &doc); err != nil {
		return []error{fmt.Errorf("dicom_json: invalid JSON: %w", err)}
	}
	if _, ok := doc["0020000D"]; !ok {
		return []error{fmt.Errorf("dicom_json: missing StudyInstanceUID tag [0020,000D]")}
	}
	return nil
}

func dicomString(doc map[string]dicomValue, tag string) string {
	v, ok := doc[tag]
	if !ok || len(v.Value) == 0 {
		return ""
	}
	s, _ := v.Value[0].(string)
	return s
}

func (c *DICOMJSONConnector) Parse(ctx context.Context, tenantID, sourceSystem string, payload []byte) (*ParseResult, error) {
	if err := c.Wait(ctx); err != nil {
		return nil, fmt.Errorf("dicom_json: rate limit wait: %w", err)
	}

	var doc map[string]dicomValue
	if err := json.Unmarshal(payload, &doc); err != nil {
		return &ParseResult{Success: false, Errors: []string{"malformed DICOM JSON payload"}}, nil
	}

	studyUID := dicomString(doc, "0020000D")
	if studyUID == "" {
		return &ParseResult{Success: false, Errors: []string{"DICOM JSON payload missing StudyInstanceUID"}}, nil
	}

	modality := dicomString(doc, "00080060")
	now := time.Now()
	result := &ParseResult{
		Success: true,
		Vertices: []entity.Vertex{{
			Label: entity.LabelProcedure, ID: "Procedure/" + studyUID, TenantID: tenantID,
			SourceSystem: sourceSystem, CreatedAt: now,
			Fields: map[string]any{"modality": modality, "study_instance_uid": studyUID},
		}},
		Metadata: map[string]any{},
	}
	return result, nil
}
