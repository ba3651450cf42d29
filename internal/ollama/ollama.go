package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/bistro-cms/menuimport/internal/providers"
)

// Ollama is a provider for a local Ollama server
type Ollama struct {
	baseURL string
	client  *http.Client
}

// New returns a new Ollama provider. An empty URL falls back to OLLAMA_URL,
// then to the default local address.
func New(baseURL string, client *http.Client) *Ollama {
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Ollama{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (o *Ollama) Name() string { return "ollama" }

// ExtractItems sends all pages with the prompt to /api/generate in JSON mode
func (o *Ollama) ExtractItems(ctx context.Context, config providers.Config, pages []models.PageImage) (string, error) {
	images := make([]string, 0, len(pages))
	for _, p := range pages {
		images = append(images, base64.StdEncoding.EncodeToString(p.Data))
	}

	requestBody, err := json.Marshal(map[string]any{
		"model":  config.Model,
		"prompt": config.Prompt,
		"images": images,
		"format": "json",
		"stream": false,
		"options": map[string]any{
			"temperature": config.Temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, string(body))
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	return response.Response, nil
}
