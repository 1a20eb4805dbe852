// Package qdrant is a REST client for Qdrant implementing the vector index
// contract: cosine collection setup with payload indexes, point upsert,
// filtered similarity search, and bulk deletion.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// Store is a vectorstore.Index backed by a Qdrant collection.
type Store struct {
	url        string
	apiKey     string
	collection string
	dim        int
	limit      int64
	policy     vectorstore.SearchPolicy
	client     *http.Client
	log        *zap.Logger
}

// Config configures the Qdrant adapter.
type Config struct {
	URL          string
	APIKey       string
	Collection   string
	Timeout      time.Duration
	StorageLimit int64
	Policy       vectorstore.SearchPolicy
}

func NewStore(cfg Config, log *zap.Logger) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant url is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "rag_documents"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	limit := cfg.StorageLimit
	if limit <= 0 {
		limit = 1_000_000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		limit:      limit,
		policy:     cfg.Policy,
		client:     &http.Client{Timeout: timeout},
		log:        log,
	}, nil
}

// EnsureCollection creates the collection if absent and idempotently
// creates the payload indexes used for session and source-type filtering.
func (s *Store) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return errors.New("invalid dimension")
	}
	s.dim = dim
	exists, err := s.collectionExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		body := map[string]any{
			"vectors": map[string]any{"size": dim, "distance": "Cosine"},
		}
		if err := s.do(ctx, http.MethodPut, s.collectionPath(""), body, nil); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		s.log.Info("created collection", zap.String("collection", s.collection), zap.Int("dim", dim))
	}
	for _, field := range []string{"session_id", "source_type"} {
		if err := s.createPayloadIndex(ctx, field); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) createPayloadIndex(ctx context.Context, field string) error {
	body := map[string]any{"field_name": field, "field_schema": "keyword"}
	err := s.do(ctx, http.MethodPut, s.collectionPath("/index"), body, nil)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("create %s index: %w", field, err)
	}
	return nil
}

// Upsert stores one point per (chunk, vector) pair under a deterministic
// identifier. Pairs with empty or mis-sized vectors are skipped.
func (s *Store) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, errors.New("chunks and vectors length mismatch")
	}
	var points []map[string]any
	skipped := 0
	for i, chunk := range chunks {
		vec := vectors[i]
		if len(vec) == 0 || (s.dim > 0 && len(vec) != s.dim) {
			skipped++
			continue
		}
		points = append(points, map[string]any{
			"id":     vectorstore.PointID(chunk.SessionID, chunk.SourceID, chunk.Index),
			"vector": vec,
			"payload": map[string]any{
				"content":      chunk.Content,
				"source_id":    chunk.SourceID,
				"source_title": chunk.SourceTitle,
				"source_type":  string(chunk.SourceType),
				"session_id":   chunk.SessionID,
				"chunk_index":  chunk.Index,
			},
		})
	}
	if skipped > 0 {
		s.log.Warn("skipped chunks with invalid vectors",
			zap.Int("skipped", skipped),
			zap.String("collection", s.collection))
	}
	if len(points) == 0 {
		return 0, errors.New("no valid points to store")
	}
	body := map[string]any{"points": points}
	if err := s.do(ctx, http.MethodPut, s.collectionPath("/points?wait=true"), body, nil); err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}
	return len(points), nil
}

// Search runs a filtered similarity query, applying the configured score
// floor and, when enabled, one retry without it on zero hits.
func (s *Store) Search(ctx context.Context, vector []float32, k int, filter *vectorstore.Filter) ([]domain.SearchHit, error) {
	if k <= 0 {
		k = 5
	}
	hits, err := s.search(ctx, vector, k, filter, s.policy.ScoreFloor)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 && s.policy.ScoreFloor > 0 && s.policy.RetryWithoutFloor {
		s.log.Debug("no hits above score floor, retrying without floor",
			zap.Float64("floor", s.policy.ScoreFloor))
		return s.search(ctx, vector, k, filter, 0)
	}
	return hits, nil
}

func (s *Store) search(ctx context.Context, vector []float32, k int, filter *vectorstore.Filter, floor float64) ([]domain.SearchHit, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if floor > 0 {
		body["score_threshold"] = floor
	}
	if f := filterClause(filter); f != nil {
		body["filter"] = f
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionPath("/points/search"), body, &resp); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	hits := make([]domain.SearchHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, domain.SearchHit{Chunk: chunkFromPayload(r.Payload), Score: r.Score})
	}
	return hits, nil
}

// Exists checks for the first chunk of a source via its deterministic
// point identifier.
func (s *Store) Exists(ctx context.Context, sessionID, sourceID string) bool {
	body := map[string]any{"ids": []string{vectorstore.PointID(sessionID, sourceID, 0)}}
	var resp struct {
		Result []json.RawMessage `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionPath("/points"), body, &resp); err != nil {
		s.log.Error("exists check failed",
			zap.String("source_id", sourceID),
			zap.String("session_id", sessionID),
			zap.Error(err))
		return false
	}
	return len(resp.Result) > 0
}

// DeleteBySession removes all points tagged with the session.
func (s *Store) DeleteBySession(ctx context.Context, sessionID string) error {
	body := map[string]any{
		"filter": filterClause(&vectorstore.Filter{SessionID: sessionID}),
	}
	if err := s.do(ctx, http.MethodPost, s.collectionPath("/points/delete?wait=true"), body, nil); err != nil {
		return fmt.Errorf("delete by session: %w", err)
	}
	return nil
}

// Reset drops and recreates the collection.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.do(ctx, http.MethodDelete, s.collectionPath(""), nil, nil); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	if s.dim > 0 {
		return s.EnsureCollection(ctx, s.dim)
	}
	return nil
}

// UsageStats reads the collection point count. Failures degrade to a zero
// count rather than an error.
func (s *Store) UsageStats(ctx context.Context) vectorstore.Stats {
	var resp struct {
		Result struct {
			PointsCount int64 `json:"points_count"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, s.collectionPath(""), nil, &resp); err != nil {
		s.log.Error("usage stats failed", zap.Error(err))
		return vectorstore.Stats{Limit: s.limit, Status: vectorstore.StatusGood}
	}
	count := resp.Result.PointsCount
	percent := float64(count) / float64(s.limit) * 100
	return vectorstore.Stats{
		Count:   count,
		Limit:   s.limit,
		Percent: percent,
		Status:  vectorstore.StatusFor(percent),
	}
}

func (s *Store) collectionExists(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url+s.collectionPath(""), nil)
	if err != nil {
		return false, err
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 300:
		return false, fmt.Errorf("get collection: %s", resp.Status)
	default:
		return true, nil
	}
}

func (s *Store) collectionPath(suffix string) string {
	return "/collections/" + s.collection + suffix
}

func (s *Store) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
}

// do performs a JSON request against the Qdrant API and decodes the
// response into out when provided. Non-2xx responses become errors carrying
// the response body, so "already exists" cases stay detectable.
func (s *Store) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return err
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(payload)))
	}
	if out != nil {
		return json.Unmarshal(payload, out)
	}
	return nil
}

func filterClause(filter *vectorstore.Filter) map[string]any {
	if filter == nil {
		return nil
	}
	var must []map[string]any
	if filter.SessionID != "" {
		must = append(must, map[string]any{
			"key":   "session_id",
			"match": map[string]any{"value": filter.SessionID},
		})
	}
	if filter.SourceType != "" {
		must = append(must, map[string]any{
			"key":   "source_type",
			"match": map[string]any{"value": string(filter.SourceType)},
		})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func chunkFromPayload(payload map[string]any) domain.Chunk {
	chunk := domain.Chunk{}
	if v, ok := payload["content"].(string); ok {
		chunk.Content = v
	}
	if v, ok := payload["source_id"].(string); ok {
		chunk.SourceID = v
	}
	if v, ok := payload["source_title"].(string); ok {
		chunk.SourceTitle = v
	}
	if v, ok := payload["source_type"].(string); ok {
		chunk.SourceType = domain.SourceType(v)
	}
	if v, ok := payload["session_id"].(string); ok {
		chunk.SessionID = v
	}
	if v, ok := payload["chunk_index"].(float64); ok {
		chunk.Index = int(v)
	}
	chunk.ID = chunk.SourceID + ":" + fmt.Sprint(chunk.Index)
	return chunk
}
