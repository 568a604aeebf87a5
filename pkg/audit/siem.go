package audit

import "context"

// SIEMSink is the out-of-band forward target for CRITICAL audit entries.
// A failure to reach it must never block or reverse the access grant
// that produced the entry (Open Question 3) — callers only see the
// failure as a subsequent "system" category entry in the local chain.
type SIEMSink interface {
	Forward(ctx context.Context, entry Entry) error
}

// NoopSIEMSink discards every entry; used when no SIEM is configured.
type NoopSIEMSink struct{}

func (NoopSIEMSink) Forward(ctx context.Context, entry Entry) error { return nil }
