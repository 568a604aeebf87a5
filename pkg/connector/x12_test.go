package connector

import (
	"context"
	"testing"
)

const testISASegment = "ISA*00*          *00*          *ZZ*SENDER         *ZZ*RECEIVER       *260115*1200*^*00501*000000001*0*P*:~"

func claim837Payload() string {
	return testISASegment +
		"CLM*CLAIM1*100.00~" +
		"SV1*HC:99213*60.00~" +
		"SV1*HC:99214*40.00~" +
		"HI*ABK:E119~"
}

func TestX12_837ParseTwoServiceLines(t *testing.T) {
	c := NewX12_837Connector(100, 10)
	payload := []byte(claim837Payload())

	if errs := c.Validate(payload); len(errs) != 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}

	result, err := c.Parse(context.Background(), "tenant-a", "clearinghouse", payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, errors: %v", result.Errors)
	}

	var claims, lines int
	for _, v := range result.Vertices {
		switch v.Label {
		case "Claim":
			claims++
			if v.Fields["total_charge"] != 100.0 {
				t.Fatalf("expected total_charge 100.0, got %v", v.Fields["total_charge"])
			}
		case "ClaimLine":
			lines++
		}
	}
	if claims != 1 {
		t.Fatalf("expected 1 claim, got %d", claims)
	}
	if lines != 2 {
		t.Fatalf("expected 2 claim lines, got %d", lines)
	}
	if len(result.Edges) != 2 {
		t.Fatalf("expected 2 HAS_LINE edges, got %d", len(result.Edges))
	}
}

func TestX12_835ParseClaimAndDenial(t *testing.T) {
	c := NewX12_835Connector(100, 10)
	payload := []byte(testISASegment +
		"CLP*CLAIM1*1*100.00*60.00~" +
		"CAS*CO*45*40.00~")

	result, err := c.Parse(context.Background(), "tenant-a", "payer", payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sawDenial bool
	for _, v := range result.Vertices {
		if v.Label == "Denial" {
			sawDenial = true
			if v.Fields["denied_amount"] != 40.0 {
				t.Fatalf("expected denied_amount 40.0, got %v", v.Fields["denied_amount"])
			}
			if v.Fields["code"] != "45" {
				t.Fatalf("expected CARC code 45, got %v", v.Fields["code"])
			}
		}
	}
	if !sawDenial {
		t.Fatal("expected a Denial vertex from the CAS segment")
	}
}

func TestHCRActionCodeMapping(t *testing.T) {
	cases := map[string]string{"A1": "approved", "A2": "approved", "A3": "denied", "A4": "pending", "A6": "cancelled", "ZZ": "unknown"}
	for code, want := range cases {
		if got := hcrActionCode(code); got != want {
			t.Fatalf("hcrActionCode(%s) = %s, want %s", code, got, want)
		}
	}
}

func TestDetectSeparatorsRejectsShortPayload(t *testing.T) {
	if _, err := detectSeparators("ISA*short"); err == nil {
		t.Fatal("expected error for too-short ISA segment")
	}
}
