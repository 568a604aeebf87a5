package dataservice

import (
	"context"

	"github.com/aegis-health/core/pkg/entity"
)

// Patient360 is the composed 360-degree view of a patient.
type Patient360 struct {
	Patient           entity.Patient
	ActiveConditions  []entity.Condition
	ActiveMedications []entity.MedicationRequest
	RecentEncounters  []entity.Encounter
	LatestVitals      []entity.Observation
}

// Network is the result of a graph traversal rooted at one entity.
type Network struct {
	Vertices []entity.Vertex
	Edges    []entity.Edge
}

// GraphReader is the narrow traversal contract the data service needs
// from the (external, driver-specific) graph database. pkg/entity stays
// driver-agnostic by design, so — as with pkg/ingestion.GraphWriter —
// this interface is defined local to its one consumer rather than
// adopting a library-wide graph abstraction no example repo provides.
type GraphReader interface {
	Traverse(ctx context.Context, tenantID, rootLabel, rootID string, maxDepth int) (Network, error)
}
