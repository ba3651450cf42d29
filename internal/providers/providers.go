package providers

import (
	"context"

	"github.com/bistro-cms/menuimport/internal/models"
)

// Config represents the configuration for an LLM provider
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
}

// Provider sends page images plus a prompt to a vision model and returns
// the raw text of its answer
type Provider interface {
	Name() string
	ExtractItems(ctx context.Context, config Config, pages []models.PageImage) (string, error)
}
