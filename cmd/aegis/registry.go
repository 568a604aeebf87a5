package main

import (
	"golang.org/x/time/rate"

	"github.com/aegis-health/core/pkg/connector"
)

// defaultRegistry registers every connector the platform ships, each
// rate-limited to 50 req/s with a burst of 10 — a conservative default
// suitable for a single-process CLI invocation.
func defaultRegistry() *connector.Registry {
	const ratePerSec rate.Limit = 50
	const burst = 10

	r := connector.NewRegistry()
	r.Register(connector.NewFHIRConnector(ratePerSec, burst))
	r.Register(connector.NewHL7v2Connector(ratePerSec, burst))
	r.Register(connector.NewCCDAConnector(ratePerSec, burst))
	r.Register(connector.NewX12_837Connector(ratePerSec, burst))
	r.Register(connector.NewX12_835Connector(ratePerSec, burst))
	r.Register(connector.NewX12_270Connector(ratePerSec, burst))
	r.Register(connector.NewX12_278Connector(ratePerSec, burst))
	r.Register(connector.NewDICOMJSONConnector(ratePerSec, burst))
	r.Register(connector.NewPROSDOHConnector(ratePerSec, burst))
	r.Register(connector.NewConsentConnector(ratePerSec, burst))
	r.Register(connector.NewWearableConnector(ratePerSec, burst))
	return r
}
