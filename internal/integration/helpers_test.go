package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"accessdash/internal/app"
	"accessdash/internal/config"
	"accessdash/internal/store"
	"accessdash/internal/testutil"
)

type stack struct {
	app      *app.App
	baseURL  string
	seedPath string
}

func startStack(t *testing.T, mutate func(*config.Config)) *stack {
	t.Helper()
	dir := t.TempDir()
	seedPath := testutil.WriteFile(t, dir, "seed.yaml", testutil.SeedYAML)
	cfg := &config.Config{
		ListenAddr: "127.0.0.1:0",
		AdminAddr:  "127.0.0.1:0",
		Cache:      config.CacheConfig{DefaultTTLMS: 60000},
		Store:      config.StoreConfig{Driver: config.StoreDriverMemory, SeedFile: seedPath},
		Shutdown:   config.ShutdownConfig{GracefulTimeoutMS: 2000},
	}
	if mutate != nil {
		mutate(cfg)
	}
	if _, err := config.Validate(cfg); err != nil {
		t.Fatalf("validate config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		cancel()
		t.Fatalf("build app: %v", err)
	}
	if err := a.Start(); err != nil {
		cancel()
		t.Fatalf("start app: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = a.Shutdown()
	})
	return &stack{app: a, baseURL: "http://" + a.HTTPAddr(), seedPath: seedPath}
}

func sendRequest(t *testing.T, client *http.Client, method, url string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for name, values := range header {
		req.Header[name] = values
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func decodeJSON[T any](t *testing.T, body []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return out
}

// slowStore delays user listing so concurrent requests overlap.
type slowStore struct {
	store.Store
	delay   time.Duration
	calls   atomic.Int32
	entered chan struct{}
}

func (s *slowStore) ListUsers(ctx context.Context) ([]store.User, error) {
	s.calls.Add(1)
	if s.entered != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
	}
	time.Sleep(s.delay)
	return s.Store.ListUsers(ctx)
}

func loadSeedStore(t *testing.T) store.Store {
	t.Helper()
	path := testutil.WriteFile(t, t.TempDir(), "seed.yaml", testutil.SeedYAML)
	snap, err := store.LoadSnapshot(path)
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	return store.NewMemoryStore(snap)
}
