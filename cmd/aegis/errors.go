package main

import (
	"errors"

	"github.com/aegis-health/core/pkg/errs"
)

// exitCode maps an error from the platform's taxonomy (pkg/errs) to the
// CLI's documented exit codes. Anything unrecognized is treated as an
// internal error.
func exitCode(err error) int {
	var validation *errs.Validation
	var policyDeny *errs.PolicyDeny
	var notFound *errs.NotFound
	var upstream *errs.Upstream
	var integrity *errs.Integrity
	var rateLimit *errs.RateLimit
	var timeoutCancelled *errs.TimeoutCancelled

	switch {
	case errors.As(err, &validation), errors.As(err, &policyDeny):
		return exitUsage
	case errors.As(err, &upstream):
		return exitUpstream
	case errors.As(err, &rateLimit), errors.As(err, &timeoutCancelled):
		return exitRetryable
	case errors.As(err, &notFound), errors.As(err, &integrity):
		return exitInternal
	default:
		return exitInternal
	}
}
