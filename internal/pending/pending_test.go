package pending

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqliteStore, err := OpenSQLite(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(t.TempDir()),
		"sqlite": sqliteStore,
	}
}

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.Get(ctx)
			require.NoError(t, err)
			assert.Nil(t, got, "empty store")

			require.NoError(t, s.Save(ctx, Plan{Status: StatusAwaitUser, Question: "Which day?"}))
			got, err = s.Get(ctx)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "Which day?", got.Question)
			assert.False(t, got.CreatedAt.IsZero())

			// Saving again overwrites the single slot
			action := json.RawMessage(`{"external_action":{"question":"Link bank?","integration":"plaid"}}`)
			require.NoError(t, s.Save(ctx, Plan{
				Status:   StatusExternalAction,
				Question: "Link bank?",
				Context:  "budget setup",
				Action:   action,
			}))
			got, err = s.Get(ctx)
			require.NoError(t, err)
			assert.Equal(t, StatusExternalAction, got.Status)
			assert.Equal(t, "budget setup", got.Context)
			assert.JSONEq(t, string(action), string(got.Action))

			require.NoError(t, s.Clear(ctx))
			got, err = s.Get(ctx)
			require.NoError(t, err)
			assert.Nil(t, got)

			// Clearing an empty store is fine
			require.NoError(t, s.Clear(ctx))
		})
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, NewFileStore(dir).Save(ctx, Plan{Status: StatusAwaitUser, Question: "Send it?"}))

	got, err := NewFileStore(dir).Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Send it?", got.Question)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Save(ctx, Plan{Status: StatusAwaitUser, Question: "q"}))

	got, _ := s.Get(ctx)
	got.Question = "changed"

	again, _ := s.Get(ctx)
	assert.Equal(t, "q", again.Question)
}
