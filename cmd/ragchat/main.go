package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ragchat/internal/chunker"
	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/ingest"
	"ragchat/internal/llm"
	"ragchat/internal/logging"
	"ragchat/internal/pipeline"
	"ragchat/internal/prompt"
	"ragchat/internal/rank"
	"ragchat/internal/tui"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/memory"
	"ragchat/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, logPath string
	var debug bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/ragchat/config.yaml if not provided)")
	flag.StringVar(&logPath, "log", "", "Path to a log file (optional; logging is off without it)")
	flag.BoolVar(&debug, "debug", false, "Enable debug-level logging")
	flag.Parse()
	args := flag.Args()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(logPath, debug)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logger.Sync()

	embClient := embedding.NewClient(embedding.Config{
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
		Timeout: time.Duration(cfg.Embedding.TimeoutSecs) * time.Second,
	})
	embedder := embedding.NewGateway(embClient, cfg.Embedding.Dimension, logger)

	generator := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	})

	policy := vectorstore.SearchPolicy{
		ScoreFloor:        cfg.Pipeline.SearchFloor,
		RetryWithoutFloor: cfg.Pipeline.RetryWithoutFloorEnabled(),
	}
	var index vectorstore.Index
	switch cfg.VectorStore.Type {
	case "memory", "":
		index = memory.NewStore(policy, 0, logger)
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		if q == nil {
			log.Fatalf("qdrant config missing")
		}
		store, err := qdrant.NewStore(qdrant.Config{
			URL:          q.URL,
			APIKey:       q.APIKey,
			Collection:   q.Collection,
			Timeout:      time.Duration(q.TimeoutSecs) * time.Second,
			StorageLimit: q.StorageLimit,
			Policy:       policy,
		}, logger)
		if err != nil {
			log.Fatalf("qdrant init failed: %v", err)
		}
		index = store
	default:
		log.Fatalf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	ctx := context.Background()
	if err := index.EnsureCollection(ctx, cfg.Embedding.Dimension); err != nil {
		log.Fatalf("vector store init failed: %v", err)
	}
	probe(ctx, logger, "embedding", embClient.Probe)
	probe(ctx, logger, "llm", generator.Probe)

	ranker := rank.New(rank.Config{
		ScoreFloor:   cfg.Pipeline.ScoreFloor,
		LexicalFloor: cfg.Pipeline.LexicalFloor,
	})
	fetcher := ingest.NewWebFetcher(0, cfg.Pipeline.MaxTextLength, logger)
	pipe := pipeline.New(
		fetcher,
		chunker.NewCharChunker(cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap),
		embedder,
		index,
		generator,
		ranker,
		prompt.NewPacker(0),
		pipeline.Options{
			OverFetch:     cfg.Pipeline.OverFetch,
			MaxSources:    cfg.Pipeline.MaxSources,
			ContextBudget: cfg.Pipeline.ContextBudget(),
			MaxTextLength: cfg.Pipeline.MaxTextLength,
		},
		logger,
	)

	sessionID := pipeline.NewSessionID()
	logger.Info("session started", zap.String("session_id", sessionID))

	// positional arguments are sources to ingest before the chat opens
	if len(args) > 0 {
		sources := make([]domain.Source, 0, len(args))
		for _, arg := range args {
			src, err := sourceFromArg(arg)
			if err != nil {
				log.Fatalf("cannot read %s: %v", arg, err)
			}
			sources = append(sources, src)
		}
		n, err := pipe.ProcessSources(ctx, sources, sessionID)
		if err != nil {
			log.Fatalf("ingest failed: %v", err)
		}
		logger.Info("pre-ingested sources", zap.Int("count", n))
	}

	m := tui.New(pipe, sessionID, cfg.Pipeline.ConversationBudget)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}

func probe(ctx context.Context, logger *zap.Logger, name string, fn func(context.Context) error) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := fn(probeCtx); err != nil {
		logger.Warn("backend unreachable, calls will fail until it is up",
			zap.String("backend", name),
			zap.Error(err))
	}
}

func sourceFromArg(arg string) (domain.Source, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return domain.Source{Type: domain.SourceWeb, Identifier: arg}, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return domain.Source{}, err
	}
	return domain.Source{Type: domain.SourceFile, Identifier: filepath.Base(arg), Text: string(data)}, nil
}
