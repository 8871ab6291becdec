package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authwatch/internal/config"
	"authwatch/internal/model"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLite(dsn)
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordBlockIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Now().UTC()

	require.NoError(t, store.RecordBlock(ctx, "103.203.183.145", "evil", "AUSTRIA", at))
	require.NoError(t, store.RecordBlock(ctx, "103.203.183.145", "evil", "AUSTRIA", at.Add(time.Minute)))
	require.NoError(t, store.RecordBlock(ctx, "1.2.3.4", "", "UNKNOWN", at))

	blocked, err := store.AllBlockedIPs(ctx)
	require.NoError(t, err)
	assert.Len(t, blocked, 2)
	assert.Contains(t, blocked, "103.203.183.145")
	assert.Contains(t, blocked, "1.2.3.4")
}

func TestIsIPAlerted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alerted, err := store.IsIPAlerted(ctx, "1.2.2.124")
	require.NoError(t, err)
	assert.False(t, alerted)

	require.NoError(t, store.RecordAlert(ctx, model.Alert{
		IP: "1.2.2.124", Country: "BRAZIL",
		Time: time.Now().UTC(), Reason: model.ReasonBruteForce,
	}))

	alerted, err = store.IsIPAlerted(ctx, "1.2.2.124")
	require.NoError(t, err)
	assert.True(t, alerted)
}

func TestUserProfileLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	profile, err := store.GetOrCreateUserProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.User)
	assert.Empty(t, profile.KnownCountries)
	assert.Zero(t, profile.SuccessfulLogins)

	require.NoError(t, store.AddUserProfileCountry(ctx, "alice", "UNITED STATES"))
	require.NoError(t, store.AddUserProfileCountry(ctx, "alice", "GERMANY"))
	// Re-adding a known country is a no-op.
	require.NoError(t, store.AddUserProfileCountry(ctx, "alice", "UNITED STATES"))

	require.NoError(t, store.BumpLoginCounters(ctx, "alice", true))
	require.NoError(t, store.BumpLoginCounters(ctx, "alice", true))
	require.NoError(t, store.BumpLoginCounters(ctx, "alice", false))

	profile, err = store.GetOrCreateUserProfile(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"UNITED STATES", "GERMANY"}, profile.KnownCountries)
	assert.Equal(t, 2, profile.SuccessfulLogins)
	assert.Equal(t, 1, profile.FailedLogins)
}

func TestBumpLoginCountersUnknownUserIsNoOp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// The bare UPDATE touches no rows for a user without a profile.
	require.NoError(t, store.BumpLoginCounters(ctx, "ghost", false))

	profile, err := store.GetOrCreateUserProfile(ctx, "ghost")
	require.NoError(t, err)
	assert.Zero(t, profile.FailedLogins)
	assert.Zero(t, profile.SuccessfulLogins)
}

func TestRecordEventAppendOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ev := model.Event{
		Time: time.Now().UTC(), IP: "8.8.8.8", User: "alice",
		Action: "login", Result: model.ResultSuccess,
	}
	require.NoError(t, store.RecordEvent(ctx, ev, "UNITED STATES"))
	require.NoError(t, store.RecordEvent(ctx, ev, "UNITED STATES"))
}

func TestNewStoreDriverSelection(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "sel.db")
	store, err := NewStore(config.StorageConfig{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = NewStore(config.StorageConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestEncodeDecodeCountries(t *testing.T) {
	assert.Equal(t, "", encodeCountries(nil))
	assert.Equal(t, "BRAZIL,GERMANY", encodeCountries([]string{"GERMANY", "BRAZIL", "GERMANY", ""}))
	assert.Nil(t, decodeCountries("  "))
	assert.Equal(t, []string{"BRAZIL", "GERMANY"}, decodeCountries("BRAZIL, GERMANY"))
}
