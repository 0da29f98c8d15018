package sessionstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(":memory:", 20*time.Millisecond, 24*time.Hour, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}
