package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/thawn/neurips-abstracts-sub001/internal/config"
	"github.com/thawn/neurips-abstracts-sub001/internal/conversation"
	"github.com/thawn/neurips-abstracts-sub001/internal/llm"
	"github.com/thawn/neurips-abstracts-sub001/internal/logger"
	"github.com/thawn/neurips-abstracts-sub001/internal/rag"
	"github.com/thawn/neurips-abstracts-sub001/internal/retriever"
	"github.com/thawn/neurips-abstracts-sub001/internal/server"
	"github.com/thawn/neurips-abstracts-sub001/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog := logger.New(cfg.Log.Path, cfg.Log.Production)
	defer zlog.Sync()

	ctx := context.Background()

	repo, err := store.NewSQLiteRepository(cfg.Store.DBPath)
	if err != nil {
		zlog.Fatal("failed to open abstract database", zap.Error(err))
	}
	defer repo.Close()

	records, err := repo.LoadAbstracts(ctx)
	if err != nil {
		zlog.Fatal("failed to load abstracts", zap.Error(err))
	}

	st := store.NewStore()
	if err := st.Upsert(ctx, records); err != nil {
		zlog.Fatal("failed to index abstracts", zap.Error(err))
	}
	zlog.Info("indexed abstracts",
		zap.Int("records", st.Count()),
		zap.Int("dimension", st.Dimension()),
	)

	generator, embedder, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		zlog.Fatal("failed to initialize llm client", zap.Error(err))
	}
	if embedder == nil {
		zlog.Fatal("configured provider has no embedding support", zap.String("provider", cfg.LLM.Provider))
	}

	orchestrator := rag.NewOrchestrator(
		retriever.NewRetriever(embedder, st),
		generator,
		conversation.NewManager(cfg.RAG.MaxSessionTurns),
		st,
		rag.Options{
			NResults:          cfg.RAG.NResults,
			MaxHistoryTurns:   cfg.RAG.MaxHistoryTurns,
			GenerationTimeout: time.Duration(cfg.RAG.GenerationTimeoutSeconds) * time.Second,
		},
		zlog,
	)

	srv := server.NewServer(orchestrator, zlog)
	r := srv.SetupRouter()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	zlog.Info("starting server", zap.String("port", port))
	if err := r.Run(":" + port); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}
