package valkey

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vasu1712/buddychat/internal/docstore"
	"github.com/Vasu1712/buddychat/internal/docstore/docstoretest"
)

func TestConformance(t *testing.T) {
	addr := os.Getenv("BUDDYCHAT_TEST_VALKEY_ADDR")
	if addr == "" {
		t.Skip("BUDDYCHAT_TEST_VALKEY_ADDR not set")
	}
	docstoretest.Run(t, func(t *testing.T) docstore.Store {
		s, err := NewStore(Options{Addr: addr, Prefix: "buddychat-test"}, zap.NewNop().Sugar())
		require.NoError(t, err)
		return s
	})
}
