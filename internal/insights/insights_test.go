package insights

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accessdash/internal/activity"
	"accessdash/internal/breaker"
	"accessdash/internal/store"
)

type fakeGenerator struct {
	prompts []string
	reply   string
	err     error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if _, ok := ctx.Deadline(); !ok {
		return "", errors.New("expected a deadline")
	}
	return f.reply, f.err
}

func sampleSummary() activity.Summary {
	now := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	logs := []store.AccessLog{
		{CardID: "a", DoorID: "d1", Granted: true, OccurredAt: now.Add(-time.Hour)},
		{CardID: "b", DoorID: "d1", Granted: false, Reason: "expired card", OccurredAt: now.Add(-2 * time.Hour)},
	}
	return activity.Aggregate(logs, []store.Door{{ID: "d1", Name: "Lobby"}}, now, 2, time.UTC)
}

func TestSummarize(t *testing.T) {
	gen := &fakeGenerator{reply: "  - Lobby was busy\n"}
	svc := NewService(gen, "llama3", time.Second)
	svc.now = func() time.Time { return time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC) }

	insight, err := svc.Summarize(context.Background(), sampleSummary())
	require.NoError(t, err)
	assert.Equal(t, "- Lobby was busy", insight.Text)
	assert.Equal(t, "llama3", insight.Model)
	assert.Equal(t, 2, insight.Days)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Lobby (d1): 1 granted, 1 denied")
	assert.Contains(t, gen.prompts[0], "expired card: 1")
}

func TestSummarizeErrors(t *testing.T) {
	_, err := NewService(nil, "", 0).Summarize(context.Background(), sampleSummary())
	assert.ErrorIs(t, err, ErrDisabled)

	var nilSvc *Service
	assert.False(t, nilSvc.Enabled())

	boom := errors.New("model not loaded")
	_, err = NewService(&fakeGenerator{err: boom}, "m", time.Second).Summarize(context.Background(), sampleSummary())
	assert.ErrorIs(t, err, boom)

	_, err = NewService(&fakeGenerator{reply: "   "}, "m", time.Second).Summarize(context.Background(), sampleSummary())
	assert.Error(t, err)
}

func TestGuardFailsFastWhenOpen(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("connection refused")}
	svc := NewService(Guard(gen, breaker.New(breaker.Config{MinimumRequests: 1})), "m", time.Second)

	_, err := svc.Summarize(context.Background(), sampleSummary())
	assert.EqualError(t, err, "generate insight: connection refused")
	_, err = svc.Summarize(context.Background(), sampleSummary())
	assert.ErrorIs(t, err, breaker.ErrOpen)
	assert.Len(t, gen.prompts, 1)
}

func TestBuildPromptIsDeterministic(t *testing.T) {
	summary := sampleSummary()
	summary.DeniedReasons["zzz"] = 2
	summary.DeniedReasons["aaa"] = 1
	assert.Equal(t, BuildPrompt(summary), BuildPrompt(summary))
	assert.Contains(t, BuildPrompt(summary), "Window: 2026-03-02 to 2026-03-03")
}

func TestOllamaGenerator(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":"All quiet."},"done":true}` + "\n"))
	}))
	defer server.Close()

	gen, err := NewOllamaGenerator(server.URL, "llama3", server.Client())
	require.NoError(t, err)
	text, err := gen.Generate(context.Background(), "summarize")
	require.NoError(t, err)
	assert.Equal(t, "All quiet.", text)
	assert.Equal(t, "llama3", got["model"])
	assert.Equal(t, false, got["stream"])
}

func TestOllamaGeneratorBadHost(t *testing.T) {
	_, err := NewOllamaGenerator("://nope", "m", nil)
	assert.Error(t, err)
}
