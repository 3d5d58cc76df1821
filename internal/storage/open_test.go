package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vasu1712/buddychat/internal/config"
	"github.com/Vasu1712/buddychat/internal/docstore"
	"github.com/Vasu1712/buddychat/internal/storage/memory"
	"github.com/Vasu1712/buddychat/internal/storage/mongo"
	"github.com/Vasu1712/buddychat/internal/storage/postgres"
	"github.com/Vasu1712/buddychat/internal/storage/valkey"
)

// Every backend exports its implementation as Store.
var (
	_ docstore.Store = (*memory.Store)(nil)
	_ docstore.Store = (*valkey.Store)(nil)
	_ docstore.Store = (*postgres.Store)(nil)
	_ docstore.Store = (*mongo.Store)(nil)
)

func TestOpenMemory(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{Driver: "memory"}, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &memory.Store{}, s)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "sqlite"}, zap.NewNop().Sugar())
	assert.Error(t, err)
}
