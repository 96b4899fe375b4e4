package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orchestrate-hq/orchestrate/internal/types"
	"github.com/orchestrate-hq/orchestrate/pkg/blob"
	"github.com/orchestrate-hq/orchestrate/pkg/briefing"
	cfgPkg "github.com/orchestrate-hq/orchestrate/pkg/config"
	"github.com/orchestrate-hq/orchestrate/pkg/extract"
	"github.com/orchestrate-hq/orchestrate/pkg/fetcher"
	"github.com/orchestrate-hq/orchestrate/pkg/llm"
	"github.com/orchestrate-hq/orchestrate/pkg/pipeline"
	"github.com/orchestrate-hq/orchestrate/pkg/query"
	"github.com/orchestrate-hq/orchestrate/pkg/store"
	"github.com/orchestrate-hq/orchestrate/server"
)

type flags struct {
	configPath string
	serve      bool
	port       string
	dbURL      string
	baseURL    string
	model      string
	embedModel string
	chunkSize  int
	overlap    int
	topK       int
	streaming  bool
}

func main() {
	f := parseFlags()

	cfg, err := cfgPkg.LoadConfig(f.configPath)
	if err != nil {
		log.Fatal(err)
	}
	applyFlags(cfg, f)

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Printf("[cfg] %v", e)
		}
		log.Fatal("invalid configuration")
	}

	if err := run(cfg, f, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.BoolVar(&f.serve, "serve", false, "Run the HTTP server instead of the interactive CLI")
	flag.StringVar(&f.port, "port", "", "HTTP port (with -serve)")
	flag.StringVar(&f.dbURL, "db-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.StringVar(&f.baseURL, "ollama-url", os.Getenv("OLLAMA_BASE_URL"), "Ollama server URL")
	flag.StringVar(&f.model, "model", "", "Generation model")
	flag.StringVar(&f.embedModel, "embedding-model", "", "Embedding model")
	flag.IntVar(&f.chunkSize, "chunk-size", 0, "Runes per chunk")
	flag.IntVar(&f.overlap, "overlap", 0, "Overlapping runes between chunks")
	flag.IntVar(&f.topK, "top-k", 0, "Chunks retrieved per query")
	flag.BoolVar(&f.streaming, "stream", true, "Stream websocket responses")
	flag.Parse()
	return f
}

func applyFlags(cfg *cfgPkg.Config, f flags) {
	if f.port != "" {
		cfg.Server.Port = f.port
	}
	if f.dbURL != "" {
		cfg.Database.URL = f.dbURL
	}
	if f.baseURL != "" {
		cfg.LLM.BaseURL = f.baseURL
	}
	if f.model != "" {
		cfg.LLM.Model = f.model
	}
	if f.embedModel != "" {
		cfg.LLM.EmbeddingModel = f.embedModel
	}
	if f.chunkSize > 0 {
		cfg.Chunker.ChunkSize = f.chunkSize
	}
	if f.overlap > 0 {
		cfg.Chunker.Overlap = f.overlap
	}
	if f.topK > 0 {
		cfg.Query.TopK = f.topK
	}
	cfg.Server.Streaming = f.streaming
}

// app holds the wired components. Every collaborator is constructed once
// here and passed down explicitly.
type app struct {
	pipeline *pipeline.Pipeline
	engine   *query.Engine
	chat     *llm.ChatEngine
	briefer  *briefing.Builder
	close    func()
}

func buildApp(ctx context.Context, cfg *cfgPkg.Config) (*app, error) {
	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		RateLimit:   cfg.Embedder.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine: %v", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:       cfg.LLM.EmbeddingModel,
		BaseURL:     cfg.LLM.BaseURL,
		MaxAttempts: cfg.Embedder.MaxAttempts,
		RateLimit:   cfg.Embedder.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %v", err)
	}

	var blobs types.BlobStore
	var docs types.DocumentStore
	var vectors types.VectorStore
	closeFn := func() {}

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %v", err)
		}
		closeFn = pool.Close

		vectors, err = store.NewWithConfig(ctx, pool, store.VectorStoreConfig{
			TableName: cfg.Database.TableName,
			VectorDim: cfg.Database.VectorDim,
			Metric:    cfg.Database.Metric,
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize vector store: %v", err)
		}
		docs = store.NewDocuments(pool)
		blobs, err = blob.NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize blob store: %v", err)
		}
	} else {
		log.Printf("[cmd] no DATABASE_URL set, using in-memory stores")
		memDocs := store.NewMemoryDocuments()
		docs = memDocs
		vectors = store.NewMemory(memDocs, cfg.Database.Metric)
		blobs = blob.NewMemory()
	}

	pipe := pipeline.New(pipeline.PipelineConfig{
		Bucket:           cfg.Storage.Bucket,
		ChunkSize:        cfg.Chunker.ChunkSize,
		Overlap:          cfg.Chunker.Overlap,
		EmbedConcurrency: cfg.Embedder.Concurrency,
	}, blobs, docs, extract.Default(), embedder, vectors)

	engine := query.NewEngine(query.EngineConfig{TopK: cfg.Query.TopK},
		embedder, vectors, chatEngine)

	briefer := briefing.NewBuilder(briefing.BuilderConfig{Sources: cfg.Brief.Sources},
		fetcher.NewWithConfig(fetcher.FetcherConfig{
			RateLimit:  cfg.Brief.RateLimit,
			OnProgress: func(url string) { log.Printf("[fetcher] fetched %s", url) },
		}),
		docs, chatEngine)

	return &app{
		pipeline: pipe,
		engine:   engine,
		chat:     chatEngine,
		briefer:  briefer,
		close:    closeFn,
	}, nil
}

func run(cfg *cfgPkg.Config, f flags, paths []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if f.serve {
		srv := server.New(server.Config{
			Port:      cfg.Server.Port,
			Streaming: cfg.Server.Streaming,
		}, a.pipeline, a.engine, a.chat, a.briefer)
		return srv.ListenAndServe()
	}

	if len(paths) > 0 {
		if err := ingestFiles(ctx, a, paths); err != nil {
			return err
		}
	}

	return chatLoop(ctx, a)
}
