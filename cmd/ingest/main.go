// Command ingest parses a JSON file of conference abstracts, embeds each
// abstract via the configured embedding backend, and writes the records to
// the abstract database used by the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/thawn/neurips-abstracts-sub001/internal/config"
	"github.com/thawn/neurips-abstracts-sub001/internal/llm"
	"github.com/thawn/neurips-abstracts-sub001/internal/logger"
	"github.com/thawn/neurips-abstracts-sub001/internal/store"
)

type rawAbstract struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Abstract  string `json:"abstract"`
	Session   string `json:"session"`
	Topic     string `json:"topic"`
	EventType string `json:"eventtype"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	cfgPath := flag.String("config", "config/config.toml", "path to config file")
	input := flag.String("input", "abstracts.json", "path to abstracts JSON file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog := logger.New(cfg.Log.Path, cfg.Log.Production)
	defer zlog.Sync()

	data, err := os.ReadFile(*input)
	if err != nil {
		zlog.Fatal("failed to read input file", zap.Error(err))
	}
	var raw []rawAbstract
	if err := json.Unmarshal(data, &raw); err != nil {
		zlog.Fatal("failed to parse input file", zap.Error(err))
	}

	ctx := context.Background()

	_, embedder, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		zlog.Fatal("failed to initialize llm client", zap.Error(err))
	}
	if embedder == nil {
		zlog.Fatal("configured provider has no embedding support", zap.String("provider", cfg.LLM.Provider))
	}

	repo, err := store.NewSQLiteRepository(cfg.Store.DBPath)
	if err != nil {
		zlog.Fatal("failed to open abstract database", zap.Error(err))
	}
	defer repo.Close()

	// The in-memory store validates embedding dimensionality before
	// anything is persisted.
	index := store.NewStore()

	start := time.Now()
	var records []store.AbstractRecord
	for i, a := range raw {
		if strings.TrimSpace(a.Abstract) == "" {
			zlog.Warn("skipping abstract with empty text", zap.Int("index", i), zap.String("id", a.ID))
			continue
		}
		id := a.ID
		if id == "" {
			id = uuid.New().String()
		}

		vec, err := embedder.Embed(ctx, a.Abstract)
		if err != nil {
			zlog.Fatal("failed to embed abstract", zap.String("id", id), zap.Error(err))
		}

		rec := store.AbstractRecord{
			ID:        id,
			Title:     a.Title,
			Text:      a.Abstract,
			Embedding: vec,
			Metadata: map[string]string{
				store.FacetSession:   a.Session,
				store.FacetTopic:     a.Topic,
				store.FacetEventType: a.EventType,
			},
		}
		if err := index.Upsert(ctx, []store.AbstractRecord{rec}); err != nil {
			// Dimension mismatch is fatal to this record only.
			zlog.Warn("skipping record", zap.String("id", id), zap.Error(err))
			continue
		}
		records = append(records, rec)

		if (i+1)%50 == 0 {
			zlog.Info("embedding progress", zap.Int("done", i+1), zap.Int("total", len(raw)))
		}
	}

	if err := repo.SaveAbstracts(ctx, records); err != nil {
		zlog.Fatal("failed to persist abstracts", zap.Error(err))
	}

	zlog.Info("ingestion complete",
		zap.Int("records", len(records)),
		zap.Int("dimension", index.Dimension()),
		zap.Duration("elapsed", time.Since(start)),
	)
}
