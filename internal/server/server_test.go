package server

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accessdash/internal/admin"
	"accessdash/internal/cache"
)

func TestStartServersAndShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	grpcServer, _ := admin.NewGRPCServer(admin.NewServer(cache.New(cache.Options{}), nil), "")

	var stopped atomic.Int32
	srv, err := StartServers(handler, "127.0.0.1:0", grpcServer, "127.0.0.1:0", Options{
		GracefulTimeout: 2 * time.Second,
		Stoppers: []Stopper{StopFunc(func(context.Context) error {
			stopped.Add(1)
			return nil
		})},
	})
	require.NoError(t, err)
	require.NotEmpty(t, srv.HTTPAddr)
	require.NotEmpty(t, srv.AdminAddr)

	resp, err := http.Get("http://" + srv.HTTPAddr + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	client, err := admin.Dial(srv.AdminAddr, "")
	require.NoError(t, err)
	defer client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	healthy, err := client.Healthy(ctx)
	require.NoError(t, err)
	assert.True(t, healthy)

	require.NoError(t, srv.Shutdown())
	require.NoError(t, srv.Shutdown())
	assert.Equal(t, int32(1), stopped.Load())

	_, err = http.Get("http://" + srv.HTTPAddr + "/")
	assert.Error(t, err)
}

func TestStartServersWithoutAdmin(t *testing.T) {
	srv, err := StartServers(http.NotFoundHandler(), "127.0.0.1:0", nil, "127.0.0.1:0", Options{})
	require.NoError(t, err)
	assert.Empty(t, srv.AdminAddr)
	assert.NoError(t, srv.Close())
}

func TestStartServersValidation(t *testing.T) {
	_, err := StartServers(nil, "127.0.0.1:0", nil, "", Options{})
	assert.Error(t, err)
	_, err = StartServers(http.NotFoundHandler(), "", nil, "", Options{})
	assert.Error(t, err)
}
