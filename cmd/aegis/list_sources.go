package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/aegis-health/core/pkg/config"
)

func runListSources(_ context.Context, _ *config.Config, _ []string) error {
	reg := defaultRegistry()
	types := reg.Registered()

	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	sort.Strings(names)

	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}
