// Package rank filters raw similarity hits down to the few sources worth
// spending prompt budget on: a score floor, a lexical relevance check
// against the query, and content-fingerprint deduplication.
package rank

import (
	"regexp"
	"sort"
	"strings"

	"ragchat/internal/domain"
)

var wordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// Config holds the filtering thresholds.
type Config struct {
	// ScoreFloor is the minimum similarity score a hit must carry.
	ScoreFloor float64
	// LexicalFloor is the minimum query-word overlap ratio. A cosine floor
	// alone keeps semantically-near but topically-irrelevant chunks; this is
	// the cheap secondary check.
	LexicalFloor float64
	// LexicalWindow bounds how much of a hit's content the overlap check reads.
	LexicalWindow int
	// SignatureLen is the length of the leading-content fingerprint used to
	// collapse overlapping chunks of the same passage.
	SignatureLen int
}

// DefaultConfig mirrors the deployment defaults: a permissive score floor
// with a 0.2 lexical ratio over the first 500 characters, and 200-character
// dedup signatures.
func DefaultConfig() Config {
	return Config{ScoreFloor: 0.12, LexicalFloor: 0.2, LexicalWindow: 500, SignatureLen: 200}
}

// Filter applies the relevance and dedup policy and returns at most
// maxResults hits, best first. An empty input yields an empty output; the
// caller owns any no-context fallback.
type Filter struct {
	cfg Config
}

func New(cfg Config) *Filter {
	if cfg.LexicalWindow <= 0 {
		cfg.LexicalWindow = 500
	}
	if cfg.SignatureLen <= 0 {
		cfg.SignatureLen = 200
	}
	return &Filter{cfg: cfg}
}

func (f *Filter) Filter(hits []domain.SearchHit, query string, maxResults int) []domain.SearchHit {
	if len(hits) == 0 {
		return nil
	}
	if maxResults <= 0 {
		maxResults = 3
	}
	queryWords := tokenSet(query)

	var kept []domain.SearchHit
	seen := make(map[string]struct{})
	for _, hit := range hits {
		if hit.Score <= f.cfg.ScoreFloor {
			continue
		}
		if !f.lexicallyRelevant(queryWords, hit.Chunk.Content) {
			continue
		}
		sig := f.signature(hit.Chunk.Content)
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}
		kept = append(kept, hit)
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if len(kept) > maxResults {
		kept = kept[:maxResults]
	}
	return kept
}

// lexicallyRelevant requires a minimum share of the query's words to appear
// in the hit's leading content window.
func (f *Filter) lexicallyRelevant(queryWords map[string]struct{}, content string) bool {
	if len(queryWords) == 0 {
		return false
	}
	window := leading(content, f.cfg.LexicalWindow)
	contentWords := tokenSet(window)
	overlap := 0
	for w := range queryWords {
		if _, ok := contentWords[w]; ok {
			overlap++
		}
	}
	ratio := float64(overlap) / float64(len(queryWords))
	return ratio >= f.cfg.LexicalFloor
}

// signature fingerprints a chunk by its lowercase leading content. Chunked
// documents with overlap produce several chunks of the same passage; only
// the best-scoring one survives.
func (f *Filter) signature(content string) string {
	return strings.ToLower(strings.TrimSpace(leading(content, f.cfg.SignatureLen)))
}

func leading(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
