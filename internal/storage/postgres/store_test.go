package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vasu1712/buddychat/internal/docstore"
	"github.com/Vasu1712/buddychat/internal/docstore/docstoretest"
)

func TestConformance(t *testing.T) {
	dsn := os.Getenv("BUDDYCHAT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BUDDYCHAT_TEST_POSTGRES_DSN not set")
	}
	docstoretest.Run(t, func(t *testing.T) docstore.Store {
		s, err := NewStore(context.Background(), dsn, zap.NewNop().Sugar())
		require.NoError(t, err)
		return s
	})
}
