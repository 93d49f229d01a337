package store_test

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accessdash/internal/store"
	"accessdash/internal/testutil"
)

func loadFixture(t *testing.T) *store.MemoryStore {
	t.Helper()
	path := testutil.WriteFile(t, t.TempDir(), "seed.yaml", testutil.SeedYAML)
	snap, err := store.LoadSnapshot(path)
	require.NoError(t, err)
	return store.NewMemoryStore(snap)
}

func TestLoadSnapshotYAML(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "seed.yaml", testutil.SeedYAML)
	snap, err := store.LoadSnapshot(path)
	require.NoError(t, err)

	assert.Len(t, snap.Users, 3)
	assert.Len(t, snap.Doors, 2)
	assert.Len(t, snap.Devices, 2)
	require.Len(t, snap.AccessLogs, 5)
	assert.NotEmpty(t, snap.AccessLogs[4].ID, "missing ids are generated")
	assert.Equal(t, time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), snap.Users[0].CreatedAt.UTC())
}

func TestLoadSnapshotJSONAndErrors(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "seed.json", `{"doors":[{"id":"d9","name":"Dock"}]}`)
	snap, err := store.LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, "Dock", snap.Doors[0].Name)

	_, err = store.LoadSnapshot(testutil.WriteFile(t, dir, "seed.txt", "x"))
	assert.Error(t, err)
	_, err = store.LoadSnapshot(testutil.WriteFile(t, dir, "bad.json", "{"))
	assert.Error(t, err)
	_, err = store.LoadSnapshot(dir + "/missing.yaml")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestMemoryStoreQueries(t *testing.T) {
	s := loadFixture(t)
	ctx := context.Background()

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "u1", users[0].ID)

	user, err := s.GetUser(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", user.Name)

	_, err = s.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)

	doors, err := s.ListDoors(ctx)
	require.NoError(t, err)
	assert.Len(t, doors, 2)

	devices, err := s.ListDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, "offline", devices[1].Status)
}

func TestMemoryStoreAccessLogsNewestFirst(t *testing.T) {
	s := loadFixture(t)
	ctx := context.Background()

	all, err := s.ListAccessLogs(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].OccurredAt.After(all[i-1].OccurredAt))
	}

	recent, err := s.ListAccessLogs(ctx, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	none, err := s.ListAccessLogs(ctx, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := loadFixture(t)
	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	users[0].Name = "mutated"

	again, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", again[0].Name)
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	s := loadFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.ListDoors(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStoreReload(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "seed.yaml", testutil.SeedYAML)
	s := store.NewMemoryStore(nil)

	doors, err := s.ListDoors(context.Background())
	require.NoError(t, err)
	assert.Empty(t, doors)

	require.NoError(t, s.Reload(path))
	doors, err = s.ListDoors(context.Background())
	require.NoError(t, err)
	assert.Len(t, doors, 2)

	testutil.WriteFile(t, dir, "seed.yaml", "doors: [")
	assert.Error(t, s.Reload(path))
	doors, err = s.ListDoors(context.Background())
	require.NoError(t, err)
	assert.Len(t, doors, 2, "failed reload keeps the previous snapshot")
}

func TestWatcherFiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "seed.yaml", testutil.SeedYAML)

	var changes atomic.Int32
	w, err := store.NewWatcher(path, 20*time.Millisecond, nil, func() { changes.Add(1) })
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	testutil.WriteFile(t, dir, "other.yaml", "ignored: true")
	testutil.WriteFile(t, dir, "seed.yaml", testutil.SeedYAML+"\n")

	testutil.Eventually(t, 2*time.Second, 10*time.Millisecond, func() error {
		if changes.Load() == 0 {
			return errors.New("no change observed")
		}
		return nil
	})
}
