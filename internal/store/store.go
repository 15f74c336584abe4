// Package store persists researchers and their projects in a relational
// database, behind a single serialized writer.
package store

import (
	"context"

	"github.com/fmatlas/lattes-harvester/internal/model"
)

// Filter narrows researcher listings.
type Filter struct {
	SearchTerm  string `json:"search_term,omitempty"`
	Institution string `json:"institution,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the harvest pipeline.
// UpsertBatch is serialized internally; readers may run concurrently with
// a batch and must tolerate transient row absence mid-transaction.
type Store interface {
	// Writes
	UpsertBatch(ctx context.Context, researchers []model.Researcher) (model.UpsertCounts, error)
	RecordFailure(ctx context.Context, f model.Failure) error

	// Reads
	GetResearcher(ctx context.Context, externalID string) (*model.Researcher, error)
	ListResearchers(ctx context.Context, filter Filter) ([]model.Researcher, error)
	ListProjects(ctx context.Context, externalID string) ([]model.Project, error)
	ListFailures(ctx context.Context, limit int) ([]model.Failure, error)
	Stats(ctx context.Context) (model.StoreStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
