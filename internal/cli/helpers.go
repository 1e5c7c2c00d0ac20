package cli

import (
	"context"
	"fmt"

	"github.com/mnemex/mnemex/internal/adapter"
	"github.com/mnemex/mnemex/internal/config"
	"github.com/mnemex/mnemex/internal/db"
	"github.com/mnemex/mnemex/internal/session"
	"github.com/mnemex/mnemex/internal/store"
)

// openSession wires config, providers, and persistence into a live session.
// The returned cleanup persists state and releases resources; callers defer it.
func openSession(needGenerator bool) (*session.Session, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, nil, err
	}
	cached, err := adapter.NewCachedEmbedder(embedder, int64(cfg.Index.EmbedCacheMB)<<20)
	if err != nil {
		return nil, nil, err
	}

	var gen adapter.Generator
	if needGenerator {
		if gen, err = buildGenerator(cfg); err != nil {
			cached.Close()
			return nil, nil, err
		}
	}

	dbPath, err := config.DBPath()
	if err != nil {
		cached.Close()
		return nil, nil, err
	}
	database, err := db.Open(dbPath)
	if err != nil {
		cached.Close()
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	sess, err := session.New(cfg, cached, session.Options{
		Generator: gen,
		Store:     store.New(database),
	})
	if err != nil {
		database.Close()
		cached.Close()
		return nil, nil, err
	}

	cleanup := func() {
		_ = sess.End(context.Background())
		_ = database.Close()
		cached.Close()
	}
	return sess, cleanup, nil
}

func buildEmbedder(cfg config.Config) (adapter.Embedder, error) {
	var apiKey string
	if cfg.Provider.Embedder == adapter.ProviderOpenAI {
		apiKey = cfg.Provider.Keys.OpenAI
	}
	return adapter.NewEmbedder(cfg.Provider.Embedder, cfg.Provider.EmbedModel, apiKey, cfg.Provider.OllamaHost)
}

func buildGenerator(cfg config.Config) (adapter.Generator, error) {
	var apiKey string
	switch cfg.Provider.Generator {
	case adapter.ProviderOpenAI:
		apiKey = cfg.Provider.Keys.OpenAI
	default:
		apiKey = cfg.Provider.Keys.Anthropic
	}
	return adapter.NewGenerator(cfg.Provider.Generator, apiKey, cfg.Provider.OllamaHost)
}
