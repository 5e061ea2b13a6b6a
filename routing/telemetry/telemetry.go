// Package telemetry implements the optional RoutingGraphSnapshot sink §9
// allows but does not require: a best-effort, non-blocking record of which
// nodes/edges a router call touched, for observability only — it is never
// on the request's critical path and its failure never affects routing.
//
// Grounded on storage/neo4j/client.go's session-management pattern, adapted
// from country-credibility writes to generic node/edge-touch snapshots.
package telemetry

import (
	"context"
	"log"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/plm/liquidity-mesh-router/routing/model"
)

// Sink records routing graph snapshots to Neo4j. A nil Sink (returned by
// Disabled()) is always a no-op.
type Sink struct {
	driver   neo4j.DriverWithContext
	database string
}

// New wraps an already-connected Neo4j driver.
func New(driver neo4j.DriverWithContext, database string) *Sink {
	return &Sink{driver: driver, database: database}
}

// Disabled returns a Sink that does nothing, for deployments without Neo4j
// configured.
func Disabled() *Sink { return nil }

// RecordRoute fires a best-effort write of the route's node/edge touches.
// Errors are logged, never propagated — telemetry must not affect routing.
func (s *Sink) RecordRoute(ctx context.Context, route *model.Route) {
	if s == nil || s.driver == nil || route == nil {
		return
	}
	go func() {
		session := s.driver.NewSession(context.Background(), neo4j.SessionConfig{
			DatabaseName: s.database,
			AccessMode:   neo4j.AccessModeWrite,
		})
		defer session.Close(context.Background())

		for _, step := range route.Steps {
			query := `
				MERGE (a:RoutingToken {symbol: $from})
				MERGE (b:RoutingToken {symbol: $to})
				MERGE (a)-[e:ROUTED_VIA {venue: $venue}]->(b)
				SET e.lastSeenAt = datetime(), e.lastAmountOut = $amountOut
			`
			_, err := session.Run(context.Background(), query, map[string]interface{}{
				"from":      step.FromToken,
				"to":        step.ToToken,
				"venue":     step.VenueID,
				"amountOut": step.AmountOut,
			})
			if err != nil {
				log.Printf("⚠️  telemetry: routing graph snapshot write failed: %v", err)
				return
			}
		}
	}()
}
