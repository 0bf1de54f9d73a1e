package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tayler-id/lab-agent-rag/internal/config"
	"github.com/tayler-id/lab-agent-rag/internal/core"
	db "github.com/tayler-id/lab-agent-rag/internal/core/database"
	"github.com/tayler-id/lab-agent-rag/internal/core/ingestion_engine"
	"github.com/tayler-id/lab-agent-rag/internal/core/llm"
	objectclient "github.com/tayler-id/lab-agent-rag/internal/core/object-client"
	"github.com/tayler-id/lab-agent-rag/internal/core/parser"
	"github.com/tayler-id/lab-agent-rag/internal/core/retrieval"
)

type App struct {
	Store        core.Store
	ObjectClient core.ObjectClient
	Ingestor     ingestion_engine.Ingestor
	Retriever    *retrieval.HybridRetriever
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("database initialized and ready")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	reranker, err := llm.NewGeminiReranker(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("init reranker: %w", err)
	}

	docParser := parser.NewComposite()
	ingestor := ingestion_engine.NewDocumentIngestor(
		dbClient, objClient, embedder, docParser, ingestConfigFrom(cfg),
	)

	retriever := retrieval.NewHybridRetriever(dbClient, embedder, reranker, retrievalConfigFrom(cfg))

	server := NewServer(cfg, dbClient, objClient, retriever)

	return &App{
		Store:        dbClient,
		ObjectClient: objClient,
		Ingestor:     ingestor,
		Retriever:    retriever,
		Server:       server,
	}, nil
}

func (a *App) Close() {
	if a.Store != nil {
		_ = a.Store.Close()
	}
}

func ingestConfigFrom(cfg *config.Config) ingestion_engine.IngestConfig {
	ic := ingestion_engine.DefaultIngestConfig()
	ic.TargetTokens = cfg.TargetTokens
	ic.OverlapSentences = cfg.OverlapSentences
	ic.EmbedBatchSize = cfg.EmbedBatchSize
	ic.EmbedWorkers = cfg.EmbedWorkers
	ic.QualityThreshold = cfg.QualityThreshold
	ic.MaxAttempts = cfg.MaxAttempts
	ic.RetryBackoff = cfg.RetryBackoff
	ic.LeaseDuration = cfg.LeaseDuration
	ic.PollInterval = cfg.PollInterval
	ic.Bucket = cfg.BucketName
	return ic
}

func retrievalConfigFrom(cfg *config.Config) retrieval.RetrievalConfig {
	rc := retrieval.DefaultRetrievalConfig()
	rc.LexicalWeight = cfg.LexicalWeight
	rc.SemanticWeight = cfg.SemanticWeight
	rc.TopK = cfg.FusionTopK
	rc.RerankTopN = cfg.RerankTopN
	rc.RerankEnabled = cfg.RerankEnabled
	rc.LegTimeout = cfg.LegTimeout
	return rc
}
