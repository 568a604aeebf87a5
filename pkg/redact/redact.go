// Package redact implements PHI redaction: pattern-based matching for
// SSNs, phone numbers, emails, MRN-prefixed identifiers, and common date
// forms, with an optional pluggable NER engine for free-text fields.
// Overlapping matches are resolved by keeping the longest span, widened
// to cover any later match that overlaps it and extends further.
//
// Grounded on the teacher's pkg/privacy.PrivacyManager interface shape
// (Scrub/Validate, single email-regex implementation) — this package
// keeps that interface contract and expands the pattern set to the full
// spec §4.13 list, and adds the slog.Handler hook the teacher's version
// never wired into any log sink.
package redact

import (
	"context"
	"log/slog"
	"regexp"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// NEREngine is an optional pluggable detector for PHI spans that regex
// patterns miss (person names, free-text addresses). A nil NEREngine
// disables the NER pass entirely; only the regex patterns run.
type NEREngine interface {
	// Detect returns the [start, end) byte spans of PHI found in text.
	Detect(text string) [][2]int
}

type span struct {
	start, end int
}

// Redactor applies pattern- and NER-based PHI redaction to free text.
type Redactor struct {
	patterns    []*regexp.Regexp
	ner         NEREngine
	replacement string
}

// defaultPatterns covers the spec's named categories: SSN, phone, email,
// MRN-prefixed identifiers, and common date forms (YYYY-MM-DD,
// MM/DD/YYYY, and HL7-style YYYYMMDD).
var defaultPatterns = []string{
	`\b\d{3}-\d{2}-\d{4}\b`,                             // SSN
	`\b\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`,            // phone
	`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`,     // email
	`\bMRN[-:\s]?\d{4,12}\b`,                             // MRN-prefixed
	`\b\d{4}-\d{2}-\d{2}\b`,                              // ISO date
	`\b\d{1,2}/\d{1,2}/\d{2,4}\b`,                        // US date
	`\b(19|20)\d{2}(0[1-9]|1[0-2])(0[1-9]|[12]\d|3[01])\b`, // HL7 YYYYMMDD
}

// New builds a Redactor with the default pattern set. ner may be nil.
func New(ner NEREngine) *Redactor {
	patterns := make([]*regexp.Regexp, 0, len(defaultPatterns))
	for _, p := range defaultPatterns {
		patterns = append(patterns, regexp.MustCompile(p))
	}
	return &Redactor{patterns: patterns, ner: ner, replacement: "[REDACTED]"}
}

// WithReplacement overrides the default "[REDACTED]" replacement token.
func (r *Redactor) WithReplacement(s string) *Redactor {
	r.replacement = s
	return r
}

// Redact returns text with every detected PHI span replaced by
// replacement. Unicode input is NFC-normalized first so accented or
// composed characters in non-ASCII names/addresses (common in C-CDA and
// HL7v2 sources) don't produce false-negative boundary matches.
func (r *Redactor) Redact(text string) string {
	return r.redact(text, r.replacement)
}

// RedactWith is Redact with an explicit replacement token, for callers
// that want a distinguishable marker per field (e.g. exports).
func (r *Redactor) RedactWith(text, replacement string) string {
	return r.redact(text, replacement)
}

func (r *Redactor) redact(text, replacement string) string {
	normalized := norm.NFC.String(text)

	var spans []span
	for _, p := range r.patterns {
		for _, loc := range p.FindAllStringIndex(normalized, -1) {
			spans = append(spans, span{loc[0], loc[1]})
		}
	}
	if r.ner != nil {
		for _, loc := range r.ner.Detect(normalized) {
			spans = append(spans, span{loc[0], loc[1]})
		}
	}
	if len(spans) == 0 {
		return normalized
	}

	spans = longestNonOverlapping(spans)

	out := make([]byte, 0, len(normalized))
	cursor := 0
	for _, s := range spans {
		if s.start < cursor {
			continue
		}
		out = append(out, normalized[cursor:s.start]...)
		out = append(out, replacement...)
		cursor = s.end
	}
	out = append(out, normalized[cursor:]...)
	return string(out)
}

// longestNonOverlapping sorts spans by start then by descending length,
// and keeps the first (longest) span at each start. A span that lies
// inside one already kept is discarded; a span that overlaps one already
// kept and extends past its end widens the kept span to cover both.
func longestNonOverlapping(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return (spans[i].end - spans[i].start) > (spans[j].end - spans[j].start)
	})

	var kept []span
	lastEnd := -1
	for _, s := range spans {
		if s.start >= lastEnd {
			kept = append(kept, s)
			lastEnd = s.end
		} else if s.end > lastEnd {
			// Overlaps the previously kept span but extends further:
			// widen the kept span rather than dropping this match.
			kept[len(kept)-1].end = s.end
			lastEnd = s.end
		}
	}
	return kept
}

// Handler wraps an slog.Handler, redacting PHI from every string-valued
// top-level attribute and the log message before it reaches the wrapped handler. This
// is the hook spec §4.13 requires every log sink to apply.
type Handler struct {
	next     slog.Handler
	redactor *Redactor
}

// NewHandler wraps next so every record passing through it is redacted
// first.
func NewHandler(next slog.Handler, redactor *Redactor) *Handler {
	return &Handler{next: next, redactor: redactor}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	redacted := slog.NewRecord(record.Time, record.Level, h.redactor.Redact(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, redacted)
}

func (h *Handler) redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, h.redactor.Redact(a.Value.String()))
	}
	return a
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &Handler{next: h.next.WithAttrs(redacted), redactor: h.redactor}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name), redactor: h.redactor}
}
