// Package graph maintains the published knowledge graph in Neo4j. The graph
// is a materialized projection of the fact store: it holds no authoritative
// state and can be rebuilt from scratch by the publisher.
package graph

import (
	"context"
	"fmt"

	"factweave/internal/config"
	"factweave/internal/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Store wraps the shared Neo4j driver. One Store lives for the whole process;
// sessions are opened per call and never span stages.
type Store struct {
	driver neo4j.DriverWithContext
}

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, cfg config.Graph) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}
	logger.Info("connected to graph store", "uri", cfg.URI)
	return &Store{driver: driver}, nil
}

// Close shuts down the driver.
func (g *Store) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// Ping reports whether the graph store is reachable.
func (g *Store) Ping(ctx context.Context) error {
	return g.driver.VerifyConnectivity(ctx)
}

// EnsureConstraints asserts the uniqueness constraints the publisher's
// MERGE statements rely on. Safe to run on every startup.
func (g *Store) EnsureConstraints(ctx context.Context) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer func() { _ = session.Close(ctx) }()

	constraints := []string{
		"CREATE CONSTRAINT fact_id IF NOT EXISTS FOR (f:Fact) REQUIRE f.id IS UNIQUE",
		"CREATE CONSTRAINT article_id IF NOT EXISTS FOR (a:Article) REQUIRE a.id IS UNIQUE",
	}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, c := range constraints {
			if _, err := tx.Run(ctx, c, nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to ensure graph constraints: %w", err)
	}
	return nil
}

// write runs one parameterized statement in a short-lived write session.
func (g *Store) write(ctx context.Context, cypher string, params map[string]any) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() { _ = session.Close(ctx) }()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, cypher, params)
	})
	return err
}
