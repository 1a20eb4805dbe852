// Package memory is a brute-force cosine vector index with the same filter
// and policy semantics as the Qdrant adapter. It backs local runs and tests.
package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

type point struct {
	id     string
	vector []float32
	chunk  domain.Chunk
}

// Store is an in-memory vectorstore.Index.
type Store struct {
	mu     sync.RWMutex
	dim    int
	points map[string]point
	policy vectorstore.SearchPolicy
	limit  int64
	log    *zap.Logger
}

func NewStore(policy vectorstore.SearchPolicy, limit int64, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if limit <= 0 {
		limit = 1_000_000
	}
	return &Store{points: make(map[string]point), policy: policy, limit: limit, log: log}
}

func (s *Store) EnsureCollection(_ context.Context, dim int) error {
	if dim <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dim == 0 {
		s.dim = dim
	}
	return nil
}

func (s *Store) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float32) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, skipped := 0, 0
	for i, chunk := range chunks {
		vec := vectors[i]
		if len(vec) == 0 || len(vec) != s.dim {
			skipped++
			continue
		}
		id := vectorstore.PointID(chunk.SessionID, chunk.SourceID, chunk.Index)
		s.points[id] = point{id: id, vector: vec, chunk: chunk}
		stored++
	}
	if skipped > 0 {
		s.log.Warn("skipped chunks with invalid vectors", zap.Int("skipped", skipped))
	}
	if stored == 0 {
		return 0, errors.New("no valid points to store")
	}
	return stored, nil
}

func (s *Store) Search(_ context.Context, vector []float32, k int, filter *vectorstore.Filter) ([]domain.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 {
		k = 5
	}
	hits := s.searchLocked(vector, k, filter, s.policy.ScoreFloor)
	if len(hits) == 0 && s.policy.ScoreFloor > 0 && s.policy.RetryWithoutFloor {
		hits = s.searchLocked(vector, k, filter, 0)
	}
	return hits, nil
}

func (s *Store) searchLocked(vector []float32, k int, filter *vectorstore.Filter, floor float64) []domain.SearchHit {
	var hits []domain.SearchHit
	for _, p := range s.points {
		if !matches(p.chunk, filter) {
			continue
		}
		score := cosine(p.vector, vector)
		if floor > 0 && score < floor {
			continue
		}
		hits = append(hits, domain.SearchHit{Chunk: p.chunk, Score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func (s *Store) Exists(_ context.Context, sessionID, sourceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.points[vectorstore.PointID(sessionID, sourceID, 0)]
	return ok
}

func (s *Store) DeleteBySession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.points {
		if p.chunk.SessionID == sessionID {
			delete(s.points, id)
		}
	}
	return nil
}

func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = make(map[string]point)
	return nil
}

func (s *Store) UsageStats(_ context.Context) vectorstore.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := int64(len(s.points))
	percent := float64(count) / float64(s.limit) * 100
	return vectorstore.Stats{
		Count:   count,
		Limit:   s.limit,
		Percent: percent,
		Status:  vectorstore.StatusFor(percent),
	}
}

func matches(chunk domain.Chunk, filter *vectorstore.Filter) bool {
	if filter == nil {
		return true
	}
	if filter.SessionID != "" && chunk.SessionID != filter.SessionID {
		return false
	}
	if filter.SourceType != "" && chunk.SourceType != filter.SourceType {
		return false
	}
	return true
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
