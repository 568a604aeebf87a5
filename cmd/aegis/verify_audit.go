package main

import (
	"context"
	"fmt"

	"github.com/aegis-health/core/pkg/audit"
	"github.com/aegis-health/core/pkg/config"
	"github.com/aegis-health/core/pkg/errs"
)

func runVerifyAudit(_ context.Context, cfg *config.Config, _ []string) error {
	entries, err := loadAuditEntries(cfg.AuditLogPath)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("audit log is empty; nothing to verify")
		return nil
	}

	ok, failingEntryID := audit.VerifyChain(entries)
	if !ok {
		return &errs.Integrity{Message: fmt.Sprintf("audit chain broken at entry %s", failingEntryID)}
	}

	fmt.Printf("audit chain OK: %d entries verified, head %s\n", len(entries), entries[len(entries)-1].EntryHash)
	return nil
}
