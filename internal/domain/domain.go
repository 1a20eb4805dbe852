package domain

import "context"

// SourceType classifies where a source came from.
type SourceType string

const (
	SourceWeb  SourceType = "web"
	SourceFile SourceType = "file"
)

// Source is a caller-provided context source: either a URL to fetch or an
// already-extracted file payload.
type Source struct {
	Type SourceType
	// Identifier is the URL for web sources or the file name for file sources.
	Identifier string
	// Text holds the extracted file content; empty for web sources.
	Text string
}

// Chunk is a bounded slice of a source document, the unit of embedding and
// retrieval. SessionID is the isolation boundary; Index is the chunk's
// position within its source document.
type Chunk struct {
	ID          string
	SourceID    string
	SourceTitle string
	SourceType  SourceType
	SessionID   string
	Content     string
	Index       int
}

// SearchHit is a chunk returned by a similarity query together with its
// cosine similarity score (higher is more similar).
type SearchHit struct {
	Chunk Chunk
	Score float64
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single conversation exchange entry.
type Turn struct {
	Role Role
	Text string
}

// Answer is the result of a pipeline query. UsedSources lists only the
// sources whose chunks survived packing into the final prompt.
type Answer struct {
	Text        string
	UsedSources []string
}

// Embedder converts text into fixed-length vectors. Implementations never
// fail: on backend errors they return a zero vector of the configured
// dimensionality so callers do not branch on embedding failure.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) []float32
	EmbedMany(ctx context.Context, texts []string) [][]float32
	Dimension() int
}

// Generator produces text from a fully assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Chunker splits source text into overlapping chunks suitable for indexing.
type Chunker interface {
	Chunk(sessionID, sourceID, title string, sourceType SourceType, text string) []Chunk
}
