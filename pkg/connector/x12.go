package connector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/aegis-health/core/pkg/entity"
)

// x12Separators carries the element/segment/sub-element separators
// detected from fixed positions 3, 104, 105 of the ISA segment.
type x12Separators struct {
	Element    byte
	Segment    byte
	SubElement byte
}

func detectSeparators(payload string) (x12Separators, error) {
	if len(payload) < 106 || !strings.HasPrefix(payload, "ISA") {
		return x12Separators{}, fmt.Errorf("x12: payload too short to contain an ISA segment")
	}
	return x12Separators{
		Element:    payload[3],
		SubElement: payload[104],
		Segment:    payload[105],
	}, nil
}

func splitSegments(payload string, sep x12Separators) []string {
	raw := strings.Split(payload, string(sep.Segment))
	segs := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(strings.Trim(s, "\r\n"))
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// X12_837Connector parses institutional/professional claim transactions.
type X12_837Connector struct {
	BaseConnector
}

func NewX12_837Connector(ratePerSec rate.Limit, burst int) *X12_837Connector {
	return &X12_837Connector{BaseConnector: NewBaseConnector("x12_837", TrustLevelVerified, ratePerSec, burst)}
}

func (c *X12_837Connector) Type() SourceType { return SourceX12_837 }

func (c *X12_837Connector) Validate(payload []byte) []error {
	if _, err := detectSeparators(string(payload)); err != nil {
		return []error{err}
	}
	return nil
}

func (c *X12_837Connector) Parse(ctx context.Context, tenantID, sourceSystem string, payload []byte) (*ParseResult, error) {
	if err := c.Wait(ctx); err != nil {
		return nil, fmt.Errorf("x12_837: rate limit wait: %w", err)
	}

	sep, err := detectSeparators(string(payload))
	if err != nil {
		return &ParseResult{Success: false, Errors: []string{err.Error()}}, nil
	}
	segs := splitSegments(string(payload), sep)
	now := time.Now()
	result := &ParseResult{Success: true, Metadata: map[string]any{}}

	var claimID string
	var lineNo int

	for _, seg := range segs {
		fields := strings.Split(seg, string(sep.Element))
		switch fields[0] {
		case "CLM":
			if len(fields) < 3 {
				result.Errors = append(result.Errors, "CLM segment missing claim id or amount")
				continue
			}
			claimID = fields[1]
			billed, _ := strconv.ParseFloat(fields[2], 64)
			result.Vertices = append(result.Vertices, entity.Vertex{
				Label: entity.LabelClaim, ID: "Claim/" + claimID, TenantID: tenantID,
				SourceSystem: sourceSystem, CreatedAt: now,
				Fields: map[string]any{"total_charge": billed, "type": "837"},
			})

		case "SV1":
			if claimID == "" {
				result.Errors = append(result.Errors, "SV1 segment before CLM segment, skipped")
				continue
			}
			lineNo++
			procCode := ""
			if len(fields) > 1 {
				procParts := strings.Split(fields[1], string(sep.SubElement))
				if len(procParts) > 1 {
					procCode = procParts[1]
				}
			}
			var amount float64
			if len(fields) > 2 {
				amount, _ = strconv.ParseFloat(fields[2], 64)
			}
			lineID := fmt.Sprintf("ClaimLine/%s-%d", claimID, lineNo)
			result.Vertices = append(result.Vertices, entity.Vertex{
				Label: entity.LabelClaimLine, ID: lineID, TenantID: tenantID,
				SourceSystem: sourceSystem, CreatedAt: now,
				Fields: map[string]any{"claim_id": claimID, "line_no": lineNo, "procedure_code": procCode, "billed_amount": amount},
			})
			result.Edges = append(result.Edges, entity.Edge{
				Label: entity.EdgeHasLine, TenantID: tenantID,
				FromLabel: entity.LabelClaim, FromID: "Claim/" + claimID,
				ToLabel: entity.LabelClaimLine, ToID: lineID,
			})

		case "HI":
			if claimID == "" {
				continue
			}
			for _, f := range fields[1:] {
				parts := strings.Split(f, string(sep.SubElement))
				if len(parts) < 2 {
					continue
				}
				diagID := fmt.Sprintf("Condition/%s-%s", claimID, parts[1])
				result.Vertices = append(result.Vertices, entity.Vertex{
					Label: entity.LabelCondition, ID: diagID, TenantID: tenantID,
					SourceSystem: sourceSystem, CreatedAt: now,
					Fields: map[string]any{"code": parts[1], "code_system": "ICD-10"},
				})
			}
		}
	}

	return result, nil
}

// X12_835Connector parses remittance advice (claim payments + CAS adjustments).
type X12_835Connector struct {
	BaseConnector
}

func NewX12_835Connector(ratePerSec rate.Limit, burst int) *X12_835Connector {
	return &X12_835Connector{BaseConnector: NewBaseConnector("x12_835", TrustLevelVerified, ratePerSec, burst)}
}

func (c *X12_835Connector) Type() SourceType { return SourceX12_835 }

func (c *X12_835Connector) Validate(payload []byte) []error {
	if _, err := detectSeparators(string(payload)); err != nil {
		return []error{err}
	}
	return nil
}

func (c *X12_835Connector) Parse(ctx context.Context, tenantID, sourceSystem string, payload []byte) (*ParseResult, error) {
	if err := c.Wait(ctx); err != nil {
		return nil, fmt.Errorf("x12_835: rate limit wait: %w", err)
	}

	sep, err := detectSeparators(string(payload))
	if err != nil {
		return &ParseResult{Success: false, Errors: []string{err.Error()}}, nil
	}
	segs := splitSegments(string(payload), sep)
	now := time.Now()
	result := &ParseResult{Success: true, Metadata: map[string]any{}}

	var claimID string

	for _, seg := range segs {
		fields := strings.Split(seg, string(sep.Element))
		switch fields[0] {
		case "CLP":
			if len(fields) < 5 {
				result.Errors = append(result.Errors, "CLP segment malformed")
				continue
			}
			claimID = fields[1]
			billed, _ := strconv.ParseFloat(fields[3], 64)
			paid, _ := strconv.ParseFloat(fields[4], 64)
			result.Vertices = append(result.Vertices, entity.Vertex{
				Label: entity.LabelClaim, ID: "Claim/" + claimID, TenantID: tenantID,
				SourceSystem: sourceSystem, CreatedAt: now,
				Fields: map[string]any{"billed": billed, "paid": paid, "type": "835"},
			})

		case "CAS":
			if claimID == "" || len(fields) < 4 {
				continue
			}
			denialAmount, _ := strconv.ParseFloat(fields[3], 64)
			denialID := fmt.Sprintf("Denial/%s-%s", claimID, fields[2])
			result.Vertices = append(result.Vertices, entity.Vertex{
				Label: entity.LabelDenial, ID: denialID, TenantID: tenantID,
				SourceSystem: sourceSystem, CreatedAt: now,
				Fields: map[string]any{
					"claim_id":      claimID,
					"code":          fields[2],
					"code_type":     "CARC",
					"denied_amount": denialAmount,
					"denial_ts":     now.Format(time.RFC3339),
				},
			})
			result.Edges = append(result.Edges, entity.Edge{
				Label: entity.EdgeHasDenial, TenantID: tenantID,
				FromLabel: entity.LabelClaim, FromID: "Claim/" + claimID,
				ToLabel: entity.LabelDenial, ToID: denialID,
			})
		}
	}

	return result, nil
}

// hcrActionCode maps the X12 278 HCR action code to an Authorization status.
func hcrActionCode(code string) string {
	switch code {
	case "A1", "A2":
		return "approved"
	case "A3":
		return "denied"
	case "A4":
		return "pending"
	case "A6":
		return "cancelled"
	default:
		return "unknown"
	}
}

// X12_278Connector parses authorization/referral request-response transactions.
type X12_278Connector struct {
	BaseConnector
}

func NewX12_278Connector(ratePerSec rate.Limit, burst int) *X12_278Connector {
	return &X12_278Connector{BaseConnector: NewBaseConnector("x12_278", TrustLevelVerified, ratePerSec, burst)}
}

func (c *X12_278Connector) Type() SourceType { return SourceX12_278 }

func (c *X12_278Connector) Validate(payload []byte) []error {
	if _, err := detectSeparators(string(payload)); err != nil {
		return []error{err}
	}
	return nil
}

func (c *X12_278Connector) Parse(ctx context.Context, tenantID, sourceSystem string, payload []byte) (*ParseResult, error) {
	if err := c.Wait(ctx); err != nil {
		return nil, fmt.Errorf("x12_278: rate limit wait: %w", err)
	}

	sep, err := detectSeparators(string(payload))
	if err != nil {
		return &ParseResult{Success: false, Errors: []string{err.Error()}}, nil
	}
	segs := splitSegments(string(payload), sep)
	now := time.Now()
	result := &ParseResult{Success: true, Metadata: map[string]any{}}

	for _, seg := range segs {
		fields := strings.Split(seg, string(sep.Element))
		if fields[0] != "HCR" || len(fields) < 2 {
			continue
		}
		authNumber := ""
		if len(fields) > 2 {
			authNumber = fields[2]
		}
		result.Vertices = append(result.Vertices, entity.Vertex{
			Label: entity.LabelAuthorization, ID: "Authorization/" + authNumber, TenantID: tenantID,
			SourceSystem: sourceSystem, CreatedAt: now,
			Fields: map[string]any{"status": hcrActionCode(fields[1])},
		})
	}

	return result, nil
}

// X12_270Connector parses eligibility query/response transactions,
// emitting Coverage vertices.
type X12_270Connector struct {
	BaseConnector
}

func NewX12_270Connector(ratePerSec rate.Limit, burst int) *X12_270Connector {
	return &X12_270Connector{BaseConnector: NewBaseConnector("x12_270", TrustLevelVerified, ratePerSec, burst)}
}

func (c *X12_270Connector) Type() SourceType { return SourceX12_270 }

func (c *X12_270Connector) Validate(payload []byte) []error {
	if _, err := detectSeparators(string(payload)); err != nil {
		return []error{err}
	}
	return nil
}

func (c *X12_270Connector) Parse(ctx context.Context, tenantID, sourceSystem string, payload []byte) (*ParseResult, error) {
	if err := c.Wait(ctx); err != nil {
		return nil, fmt.Errorf("x12_270: rate limit wait: %w", err)
	}

	sep, err := detectSeparators(string(payload))
	if err != nil {
		return &ParseResult{Success: false, Errors: []string{err.Error()}}, nil
	}
	segs := splitSegments(string(payload), sep)
	now := time.Now()
	result := &ParseResult{Success: true, Metadata: map[string]any{}}

	for _, seg := range segs {
		fields := strings.Split(seg, string(sep.Element))
		if fields[0] != "NM1" || len(fields) < 9 {
			continue
		}
		memberID := fields[8]
		result.Vertices = append(result.Vertices, entity.Vertex{
			Label: entity.LabelCoverage, ID: "Coverage/" + memberID, TenantID: tenantID,
			SourceSystem: sourceSystem, CreatedAt: now,
			Fields: map[string]any{"member_id": memberID},
		})
	}

	return result, nil
}
