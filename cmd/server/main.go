package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"github.com/agenthands/procgraph/internal/config"
	"github.com/agenthands/procgraph/internal/core"
	"github.com/agenthands/procgraph/internal/driver"
	"github.com/agenthands/procgraph/internal/embedder"
	"github.com/agenthands/procgraph/internal/logger"
	"github.com/agenthands/procgraph/internal/server"
	"github.com/agenthands/procgraph/internal/store"
	"github.com/agenthands/procgraph/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		if _, err := os.Stat("config/config.toml"); err == nil {
			cfgPath = "config/config.toml"
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Server.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()

	var graphStore store.GraphStore
	if cfg.Neo4j.URI != "" {
		d, err := driver.NewNeo4jDriver(cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, cfg.Neo4j.Database, log)
		if err != nil {
			log.Fatal("failed to connect to graph database", "uri", cfg.Neo4j.URI, "error", err)
		}
		defer d.Close(ctx)
		if err := d.BuildIndices(ctx); err != nil {
			log.Warn("index bootstrap incomplete", "error", err)
		}
		graphStore = store.NewNeo4jStore(d, log)
	} else {
		log.Warn("no graph database configured, using in-memory store")
		graphStore = store.NewMemoryStore()
	}

	emb, gen, err := embedder.NewClient(ctx, cfg.Embedder)
	if err != nil {
		log.Fatal("failed to initialize embedder", "provider", cfg.Embedder.Provider, "error", err)
	}
	if emb == nil {
		log.Warn("embedder disabled, resolution runs alias-only")
	}

	engine := core.NewEngine(cfg, graphStore, emb, gen, log)

	pool := worker.NewPool(engine, cfg.Concurrency.Workers, cfg.Concurrency.QueueDepth, log)
	pool.Start(ctx)
	defer pool.Stop()

	srv := server.NewServer(engine, pool, log)
	r := srv.SetupRouter()

	log.Info("starting server", "port", cfg.Server.Port, "workers", cfg.Concurrency.Workers)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatal("server exited", "error", err)
	}
}
