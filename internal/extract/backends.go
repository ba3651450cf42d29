package extract

import (
	"fmt"
	"net/http"

	"github.com/bistro-cms/menuimport/internal/gemini"
	"github.com/bistro-cms/menuimport/internal/ollama"
	"github.com/bistro-cms/menuimport/internal/openai"
	"github.com/bistro-cms/menuimport/internal/providers"
)

// Backend selects and configures a provider
type Backend struct {
	Provider string
	APIKey   string
	BaseURL  string
}

// DefaultModel returns the model used when none is configured
func DefaultModel(provider string) string {
	switch provider {
	case "gemini":
		return "gemini-2.5-flash"
	case "openai":
		return "gpt-4o"
	case "ollama":
		return "qwen2.5vl:7b"
	}
	return ""
}

// NewProvider builds the named backend
func NewProvider(b Backend, client *http.Client) (providers.Provider, error) {
	switch b.Provider {
	case "gemini":
		return gemini.New(b.APIKey), nil
	case "openai":
		return openai.New(b.APIKey, b.BaseURL, client), nil
	case "ollama":
		return ollama.New(b.BaseURL, client), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", b.Provider)
	}
}
