package mongo

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vasu1712/buddychat/internal/docstore"
	"github.com/Vasu1712/buddychat/internal/docstore/docstoretest"
)

// Needs a replica set: transactions and change streams are unavailable on
// a standalone server.
func TestConformance(t *testing.T) {
	uri := os.Getenv("BUDDYCHAT_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("BUDDYCHAT_TEST_MONGO_URI not set")
	}
	docstoretest.Run(t, func(t *testing.T) docstore.Store {
		s, err := NewStore(context.Background(), uri, "buddychat_test", zap.NewNop().Sugar())
		require.NoError(t, err)
		return s
	})
}
