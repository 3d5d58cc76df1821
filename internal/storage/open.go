// Package storage selects the document store backend.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Vasu1712/buddychat/internal/config"
	"github.com/Vasu1712/buddychat/internal/docstore"
	"github.com/Vasu1712/buddychat/internal/storage/memory"
	"github.com/Vasu1712/buddychat/internal/storage/mongo"
	"github.com/Vasu1712/buddychat/internal/storage/postgres"
	"github.com/Vasu1712/buddychat/internal/storage/valkey"
)

// Open connects the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, log *zap.SugaredLogger) (docstore.Store, error) {
	switch cfg.Driver {
	case "memory":
		log.Warn("using in-memory document store, data is lost on exit")
		return memory.NewStore(), nil
	case "valkey":
		s, err := valkey.NewStore(valkey.Options{
			Addr:     cfg.ValkeyAddr,
			Password: cfg.ValkeyPassword,
			DB:       cfg.ValkeyDB,
			Prefix:   cfg.ValkeyPrefix,
		}, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := postgres.NewStore(ctx, cfg.PostgresDSN, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "mongo":
		s, err := mongo.NewStore(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
