// Package vectorstore defines the vector index contract and shared
// policy/value types for its implementations.
package vectorstore

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"ragchat/internal/domain"
)

// Filter restricts a search or deletion to exact-match payload values.
// Zero-valued fields are ignored.
type Filter struct {
	SessionID  string
	SourceType domain.SourceType
}

// SearchPolicy is the deployment-level retrieval policy applied inside the
// adapter: a similarity floor, and optionally one retry without the floor
// when it yields nothing (recall over precision; the ranker still filters).
type SearchPolicy struct {
	ScoreFloor        float64
	RetryWithoutFloor bool
}

// Status classifies storage usage against the configured capacity.
type Status string

const (
	StatusGood     Status = "good"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Stats reports vector storage usage.
type Stats struct {
	Count   int64
	Limit   int64
	Percent float64
	Status  Status
}

// StatusFor maps a usage percentage onto a status: warning from 80%,
// critical above 90%.
func StatusFor(percent float64) Status {
	switch {
	case percent > 90:
		return StatusCritical
	case percent >= 80:
		return StatusWarning
	default:
		return StatusGood
	}
}

// Index is the pipeline's view of the vector database. Implementations
// catch backend errors, log them, and return conservative values (zero,
// empty, false); callers treat an empty result as "try again later".
type Index interface {
	// EnsureCollection idempotently creates the backing collection and its
	// payload indexes for the given vector dimensionality.
	EnsureCollection(ctx context.Context, dim int) error
	// Upsert stores one point per (chunk, vector) pair and returns how many
	// were stored. Pairs with empty or mis-sized vectors are skipped; zero
	// survivors is an error.
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) (int, error)
	// Search returns up to k hits in descending score order.
	Search(ctx context.Context, vector []float32, k int, filter *Filter) ([]domain.SearchHit, error)
	// Exists reports whether a source has already been ingested for a session.
	Exists(ctx context.Context, sessionID, sourceID string) bool
	// DeleteBySession removes every point tagged with the session.
	DeleteBySession(ctx context.Context, sessionID string) error
	// Reset drops and recreates the entire collection.
	Reset(ctx context.Context) error
	// UsageStats reports capacity usage.
	UsageStats(ctx context.Context) Stats
}

// PointID derives the deterministic identifier for a chunk. Name-based
// UUIDs make re-ingestion of the same source a no-op upsert and give
// Exists a stable handle without scanning.
func PointID(sessionID, sourceID string, index int) string {
	name := sessionID + "|" + sourceID + ":" + strconv.Itoa(index)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
