// Package pipeline is the query orchestrator: it sequences idempotent
// source ingestion, retrieval, ranking, context packing, answer generation
// and source attribution, and owns session lifecycle.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragchat/internal/domain"
	"ragchat/internal/ingest"
	"ragchat/internal/llm"
	"ragchat/internal/prompt"
	"ragchat/internal/rank"
	"ragchat/internal/vectorstore"
)

// ErrEmptyQuestion rejects blank questions before anything is sent to the
// embedding or generation backends.
var ErrEmptyQuestion = errors.New("question is empty")

const (
	backendUnavailableMsg = "I'm sorry, I encountered an error while generating a response. Please try again."
	noMatchDisclaimer     = "\n\n*Note: I couldn't find specific information in your uploaded sources relevant to this question, so I've provided a general response.*"
)

// SourceFetcher resolves a URL into an extracted record.
type SourceFetcher interface {
	FromURL(ctx context.Context, url string) (ingest.Record, error)
}

// Options are the policy knobs for one pipeline instance.
type Options struct {
	// OverFetch is how many hits to request from the index; more than will
	// be used, so the ranker has room to filter.
	OverFetch int
	// MaxSources caps the ranked hits considered for packing.
	MaxSources int
	// ContextBudget is the character budget for packed source context.
	ContextBudget int
	// MaxTextLength bounds extracted source text and the final prompt.
	MaxTextLength int
}

func (o *Options) fill() {
	if o.OverFetch <= 0 {
		o.OverFetch = 10
	}
	if o.MaxSources <= 0 {
		o.MaxSources = 3
	}
	if o.MaxTextLength <= 0 {
		o.MaxTextLength = 15000
	}
	if o.ContextBudget <= 0 {
		o.ContextBudget = o.MaxTextLength / 2
	}
}

// Pipeline wires the collaborators together. All dependencies are injected;
// the only mutable state is the per-session processed-source tracking set,
// guarded for concurrent sessions sharing one instance.
type Pipeline struct {
	fetcher   SourceFetcher
	chunker   domain.Chunker
	embedder  domain.Embedder
	index     vectorstore.Index
	generator domain.Generator
	ranker    *rank.Filter
	packer    *prompt.Packer
	opts      Options
	log       *zap.Logger

	mu        sync.Mutex
	processed map[string]map[string]struct{}
}

func New(fetcher SourceFetcher, chunker domain.Chunker, embedder domain.Embedder, index vectorstore.Index, generator domain.Generator, ranker *rank.Filter, packer *prompt.Packer, opts Options, log *zap.Logger) *Pipeline {
	opts.fill()
	if log == nil {
		log = zap.NewNop()
	}
	if packer == nil {
		packer = prompt.NewPacker(1000)
	}
	if ranker == nil {
		ranker = rank.New(rank.DefaultConfig())
	}
	return &Pipeline{
		fetcher:   fetcher,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		generator: generator,
		ranker:    ranker,
		packer:    packer,
		opts:      opts,
		log:       log,
		processed: make(map[string]map[string]struct{}),
	}
}

// NewSessionID mints a fresh session identifier.
func NewSessionID() string { return uuid.NewString() }

// ProcessSources ingests the given sources for a session: resolve, chunk,
// embed, upsert. Already-seen sources are skipped; a failing source is
// logged and skipped without aborting the batch. Returns how many sources
// were newly ingested.
func (p *Pipeline) ProcessSources(ctx context.Context, sources []domain.Source, sessionID string) (int, error) {
	if len(sources) == 0 {
		return 0, nil
	}
	if stats := p.index.UsageStats(ctx); stats.Status == vectorstore.StatusCritical {
		p.log.Warn("vector storage critical, ingestion may fail",
			zap.Float64("percent", stats.Percent),
			zap.String("session_id", sessionID))
	}
	ingested := 0
	for _, src := range sources {
		ok, err := p.ingestOne(ctx, src, sessionID)
		if err != nil {
			p.log.Error("source ingestion failed, skipping",
				zap.String("source_id", src.Identifier),
				zap.String("session_id", sessionID),
				zap.Error(err))
			continue
		}
		if ok {
			ingested++
		}
	}
	return ingested, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, src domain.Source, sessionID string) (bool, error) {
	var rec ingest.Record
	switch src.Type {
	case domain.SourceWeb:
		// URLs identify themselves, so dedup happens before the fetch.
		if !p.claim(sessionID, src.Identifier) {
			return false, nil
		}
		if p.index.Exists(ctx, sessionID, src.Identifier) {
			p.log.Debug("source already indexed",
				zap.String("source_id", src.Identifier),
				zap.String("session_id", sessionID))
			return false, nil
		}
		var err error
		rec, err = p.fetcher.FromURL(ctx, src.Identifier)
		if err != nil {
			p.release(sessionID, src.Identifier)
			return false, err
		}
	case domain.SourceFile:
		// File identifiers derive from content, so extraction comes first.
		var err error
		rec, err = ingest.FromFile(src.Identifier, src.Text, p.opts.MaxTextLength)
		if err != nil {
			return false, err
		}
		if !p.claim(sessionID, rec.SourceID) {
			return false, nil
		}
		if p.index.Exists(ctx, sessionID, rec.SourceID) {
			return false, nil
		}
	default:
		return false, errors.New("unknown source type")
	}

	chunks := p.chunker.Chunk(sessionID, rec.SourceID, rec.Title, rec.Type, rec.Text)
	if len(chunks) == 0 {
		p.release(sessionID, rec.SourceID)
		return false, errors.New("no chunks after cleaning")
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors := p.embedder.EmbedMany(ctx, texts)
	stored, err := p.index.Upsert(ctx, chunks, vectors)
	if err != nil {
		p.release(sessionID, rec.SourceID)
		return false, err
	}
	p.log.Info("ingested source",
		zap.String("source_id", rec.SourceID),
		zap.String("session_id", sessionID),
		zap.Int("chunks", stored))
	return true, nil
}

// Ask answers a question for a session. With no sources registered the
// pipeline generates directly from the question and conversation; otherwise
// it retrieves, ranks, packs and generates, attributing only the sources
// that survived packing.
func (p *Pipeline) Ask(ctx context.Context, question, sessionID, conversation string) (domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Answer{}, ErrEmptyQuestion
	}
	enhanced := llm.EnhanceQuestion(conversation, question)

	if !p.sessionHasSources(sessionID) {
		p.log.Info("no sources for session, general chat mode",
			zap.String("session_id", sessionID))
		return p.generate(ctx, llm.GeneralPrompt(enhanced), nil, "")
	}

	vec := p.embedder.EmbedOne(ctx, question)
	hits, err := p.index.Search(ctx, vec, p.opts.OverFetch, &vectorstore.Filter{SessionID: sessionID})
	if err != nil {
		// A failed search degrades to the no-context path; it is not the
		// same as a clean zero-hit result, so it is logged loudly.
		p.log.Error("similarity search failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		hits = nil
	}
	ranked := p.ranker.Filter(hits, question, p.opts.MaxSources)
	packed, used := p.packer.Pack(ranked, p.opts.ContextBudget)
	p.log.Info("retrieval complete",
		zap.String("session_id", sessionID),
		zap.Int("hits", len(hits)),
		zap.Int("ranked", len(ranked)),
		zap.Int("packed", len(used)))

	if packed == "" {
		// Retrieval ran and found nothing relevant: answer generally and
		// say so, which is distinct from the never-had-sources mode above.
		return p.generate(ctx, llm.GeneralPrompt(enhanced), nil, noMatchDisclaimer)
	}
	return p.generate(ctx, llm.RAGPrompt(packed, enhanced, p.opts.MaxTextLength), used, "")
}

func (p *Pipeline) generate(ctx context.Context, promptText string, used []domain.Chunk, suffix string) (domain.Answer, error) {
	text, err := p.generator.Generate(ctx, promptText)
	if err != nil {
		p.log.Error("generation failed", zap.Error(err))
		return domain.Answer{Text: backendUnavailableMsg, UsedSources: []string{}}, nil
	}
	return domain.Answer{Text: text + suffix, UsedSources: sourceIDs(used)}, nil
}

// ResetSession deletes the session's indexed chunks and invalidates its
// processed-source tracking together, so re-ingestion after reset is
// treated as new.
func (p *Pipeline) ResetSession(ctx context.Context, sessionID string) bool {
	err := p.index.DeleteBySession(ctx, sessionID)
	p.mu.Lock()
	delete(p.processed, sessionID)
	p.mu.Unlock()
	if err != nil {
		p.log.Error("session reset failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return false
	}
	p.log.Info("session reset", zap.String("session_id", sessionID))
	return true
}

// StorageStatus reports vector storage usage.
func (p *Pipeline) StorageStatus(ctx context.Context) vectorstore.Stats {
	return p.index.UsageStats(ctx)
}

// claim atomically marks a source as processed for a session, returning
// false when it was already claimed. Failed ingestions release the claim.
func (p *Pipeline) claim(sessionID, sourceID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.processed[sessionID]
	if !ok {
		set = make(map[string]struct{})
		p.processed[sessionID] = set
	}
	if _, seen := set[sourceID]; seen {
		return false
	}
	set[sourceID] = struct{}{}
	return true
}

func (p *Pipeline) release(sessionID, sourceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if set, ok := p.processed[sessionID]; ok {
		delete(set, sourceID)
	}
}

func (p *Pipeline) sessionHasSources(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.processed[sessionID]) > 0
}

func sourceIDs(chunks []domain.Chunk) []string {
	ids := make([]string, 0, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.SourceID]; ok {
			continue
		}
		seen[c.SourceID] = struct{}{}
		ids = append(ids, c.SourceID)
	}
	return ids
}
