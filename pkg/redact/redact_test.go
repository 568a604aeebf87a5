package redact_test

import (
	"strings"
	"testing"

	"github.com/aegis-health/core/pkg/redact"
)

func TestRedactSSNAndEmail(t *testing.T) {
	r := redact.New(nil)
	out := r.Redact("patient SSN 123-45-6789, contact jane.doe@example.com")
	if strings.Contains(out, "123-45-6789") {
		t.Fatalf("SSN not redacted: %q", out)
	}
	if strings.Contains(out, "jane.doe@example.com") {
		t.Fatalf("email not redacted: %q", out)
	}
}

func TestRedactMRNPrefixed(t *testing.T) {
	r := redact.New(nil)
	out := r.Redact("see record MRN-00012345 for history")
	if strings.Contains(out, "00012345") {
		t.Fatalf("MRN not redacted: %q", out)
	}
}

func TestRedactLongestOverlapWins(t *testing.T) {
	// a date-shaped span embedded inside a longer MRN-shaped span: the
	// longer match must win and the shorter one must not leave a
	// dangling fragment of the original text behind.
	r := redact.New(nil)
	out := r.Redact("MRN-20240101 noted on file")
	if strings.Contains(out, "20240101") {
		t.Fatalf("expected the longer MRN span to subsume the date digits: %q", out)
	}
}

func TestRedactNoMatchReturnsInputUnchanged(t *testing.T) {
	r := redact.New(nil)
	in := "no phi in this sentence at all"
	if out := r.Redact(in); out != in {
		t.Fatalf("expected unchanged text, got %q", out)
	}
}

type stubNER struct{ spans [][2]int }

func (s stubNER) Detect(text string) [][2]int { return s.spans }

func TestRedactUsesNEREngineWhenConfigured(t *testing.T) {
	text := "patient Jane Appleseed was seen today"
	start := strings.Index(text, "Jane Appleseed")
	r := redact.New(stubNER{spans: [][2]int{{start, start + len("Jane Appleseed")}}})
	out := r.Redact(text)
	if strings.Contains(out, "Jane Appleseed") {
		t.Fatalf("expected NER-detected name redacted: %q", out)
	}
}
