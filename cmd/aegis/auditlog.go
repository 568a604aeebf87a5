package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aegis-health/core/pkg/audit"
)

// loadAuditEntries reads a JSONL audit export, one Entry per line. A
// missing file is treated as an empty chain rather than an error —
// every command that touches the audit log can run against a brand-new
// deployment with nothing recorded yet.
func loadAuditEntries(path string) ([]*audit.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log %s: %w", path, err)
	}
	defer f.Close()

	var entries []*audit.Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e audit.Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("parse audit log %s: %w", path, err)
		}
		entries = append(entries, &e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log %s: %w", path, err)
	}
	return entries, nil
}

// writeAuditEntries overwrites path with entries, one JSON object per
// line, in chain order.
func writeAuditEntries(path string, entries []*audit.Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create audit log %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("write audit log %s: %w", path, err)
		}
	}
	return nil
}

// openAuditStore loads an existing chain from path (if any) and returns
// a Store ready to keep appending to it.
func openAuditStore(path string) (*audit.Store, error) {
	entries, err := loadAuditEntries(path)
	if err != nil {
		return nil, err
	}
	return audit.NewStoreFromEntries(nil, entries)
}

// persistAuditStore flushes every entry currently in store to path.
func persistAuditStore(path string, store *audit.Store) error {
	return writeAuditEntries(path, store.Query(audit.QueryFilter{}))
}
