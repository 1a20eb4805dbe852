package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

func newStore(t *testing.T, policy vectorstore.SearchPolicy) *Store {
	t.Helper()
	s := NewStore(policy, 0, nil)
	require.NoError(t, s.EnsureCollection(context.Background(), 2))
	return s
}

func chunk(session, source string, index int, content string) domain.Chunk {
	return domain.Chunk{
		ID:         source + ":0",
		SourceID:   source,
		SessionID:  session,
		SourceType: domain.SourceFile,
		Content:    content,
		Index:      index,
	}
}

func TestUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, vectorstore.SearchPolicy{})
	stored, err := s.Upsert(ctx, []domain.Chunk{
		chunk("s1", "doc1", 0, "sky"),
		chunk("s1", "doc2", 0, "grass"),
	}, [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, stored)

	hits, err := s.Search(ctx, []float32{1, 0.1}, 5, &vectorstore.Filter{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "doc1", hits[0].Chunk.SourceID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestUpsertSkipsInvalidVectors(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, vectorstore.SearchPolicy{})
	stored, err := s.Upsert(ctx, []domain.Chunk{
		chunk("s1", "doc1", 0, "ok"),
		chunk("s1", "doc2", 0, "empty vector"),
		chunk("s1", "doc3", 0, "wrong dim"),
	}, [][]float32{{1, 0}, {}, {1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, 1, stored)
}

func TestUpsertAllInvalidFails(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, vectorstore.SearchPolicy{})
	_, err := s.Upsert(ctx, []domain.Chunk{chunk("s1", "doc1", 0, "x")}, [][]float32{{}})
	assert.Error(t, err)
}

func TestUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, vectorstore.SearchPolicy{})
	chunks := []domain.Chunk{chunk("s1", "doc1", 0, "sky")}
	vecs := [][]float32{{1, 0}}
	_, err := s.Upsert(ctx, chunks, vecs)
	require.NoError(t, err)
	_, err = s.Upsert(ctx, chunks, vecs)
	require.NoError(t, err)

	hits, err := s.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSessionIsolation(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, vectorstore.SearchPolicy{})
	_, err := s.Upsert(ctx, []domain.Chunk{chunk("a", "doc1", 0, "x")}, [][]float32{{1, 0}})
	require.NoError(t, err)

	hits, err := s.Search(ctx, []float32{1, 0}, 5, &vectorstore.Filter{SessionID: "b"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestScoreFloorAndRetry(t *testing.T) {
	ctx := context.Background()
	// orthogonal vector scores 0, below the floor
	s := newStore(t, vectorstore.SearchPolicy{ScoreFloor: 0.5})
	_, err := s.Upsert(ctx, []domain.Chunk{chunk("s1", "doc1", 0, "x")}, [][]float32{{0, 1}})
	require.NoError(t, err)

	hits, err := s.Search(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	retry := newStore(t, vectorstore.SearchPolicy{ScoreFloor: 0.5, RetryWithoutFloor: true})
	_, err = retry.Upsert(ctx, []domain.Chunk{chunk("s1", "doc1", 0, "x")}, [][]float32{{0, 1}})
	require.NoError(t, err)
	hits, err = retry.Search(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestExistsAndDeleteBySession(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, vectorstore.SearchPolicy{})
	_, err := s.Upsert(ctx, []domain.Chunk{chunk("s1", "doc1", 0, "x")}, [][]float32{{1, 0}})
	require.NoError(t, err)

	assert.True(t, s.Exists(ctx, "s1", "doc1"))
	assert.False(t, s.Exists(ctx, "s2", "doc1"))

	require.NoError(t, s.DeleteBySession(ctx, "s1"))
	assert.False(t, s.Exists(ctx, "s1", "doc1"))
}

func TestUsageStats(t *testing.T) {
	ctx := context.Background()
	s := NewStore(vectorstore.SearchPolicy{}, 10, nil)
	require.NoError(t, s.EnsureCollection(ctx, 2))
	_, err := s.Upsert(ctx, []domain.Chunk{chunk("s1", "doc1", 0, "x")}, [][]float32{{1, 0}})
	require.NoError(t, err)

	stats := s.UsageStats(ctx)
	assert.Equal(t, int64(1), stats.Count)
	assert.Equal(t, int64(10), stats.Limit)
	assert.InDelta(t, 10.0, stats.Percent, 0.001)
	assert.Equal(t, vectorstore.StatusGood, stats.Status)
}

func TestStatusThresholds(t *testing.T) {
	assert.Equal(t, vectorstore.StatusGood, vectorstore.StatusFor(79.9))
	assert.Equal(t, vectorstore.StatusWarning, vectorstore.StatusFor(80))
	assert.Equal(t, vectorstore.StatusWarning, vectorstore.StatusFor(90))
	assert.Equal(t, vectorstore.StatusCritical, vectorstore.StatusFor(90.1))
}
