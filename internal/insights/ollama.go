package insights

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const DefaultOllamaHost = "http://localhost:11434"

type OllamaGenerator struct {
	client *api.Client
	model  string
}

func NewOllamaGenerator(host string, model string, httpClient *http.Client) (*OllamaGenerator, error) {
	if strings.TrimSpace(host) == "" {
		host = DefaultOllamaHost
	}
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaGenerator{
		client: api.NewClient(hostURL, httpClient),
		model:  model,
	}, nil
}

func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	var response strings.Builder
	err := g.client.Chat(ctx, &api.ChatRequest{
		Model:    g.model,
		Messages: []api.Message{{Role: "user", Content: prompt}},
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": 0.2,
		},
	}, func(resp api.ChatResponse) error {
		response.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return response.String(), nil
}
