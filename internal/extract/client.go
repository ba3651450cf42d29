// Package extract turns page images into candidate menu items through one
// call to a vision model.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bistro-cms/menuimport/internal/metrics"
	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/bistro-cms/menuimport/internal/providers"
)

type Options struct {
	Model       string
	Temperature float64
	// Timeout bounds the single provider call; 0 means no extra limit
	Timeout time.Duration
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Client struct {
	provider providers.Provider
	opts     Options
	logger   *slog.Logger
}

func NewClient(p providers.Provider, opts Options) (*Client, error) {
	if p == nil {
		return nil, errors.New("extract: provider is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("extract: no model configured for %s", p.Name())
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{provider: p, opts: opts, logger: logger}, nil
}

// Provider names the backend in use
func (c *Client) Provider() string { return c.provider.Name() }

// Model names the model in use
func (c *Client) Model() string { return c.opts.Model }

// Extract sends every page in order in one request. An empty result is
// returned as an empty slice with a nil error.
func (c *Client) Extract(ctx context.Context, pages []models.PageImage) ([]models.CandidateItem, error) {
	if len(pages) == 0 {
		return nil, errors.New("extract: no pages to send")
	}
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	c.logger.Info("extract.start",
		"provider", c.provider.Name(),
		"model", c.opts.Model,
		"pages", len(pages),
	)

	raw, err := c.provider.ExtractItems(ctx, providers.Config{
		Model:       c.opts.Model,
		Temperature: c.opts.Temperature,
		Prompt:      BuildPrompt(len(pages)),
	}, pages)
	if err != nil {
		c.opts.Metrics.Extraction(c.provider.Name(), "error", time.Since(start), 0)
		c.logger.Error("extract.call_failed", "provider", c.provider.Name(), "error", err)
		return nil, &models.ExtractionError{Provider: c.provider.Name(), Err: err}
	}

	items, err := ParseResponse(raw)
	if err != nil {
		c.opts.Metrics.Extraction(c.provider.Name(), "contract", time.Since(start), 0)
		c.logger.Error("extract.contract_violation",
			"provider", c.provider.Name(),
			"response_bytes", len(raw),
			"error", err,
		)
		return nil, &models.ExtractionError{Provider: c.provider.Name(), Err: err}
	}

	low := 0
	for _, it := range items {
		if it.LowConfidence() {
			low++
		}
	}
	c.opts.Metrics.Extraction(c.provider.Name(), "ok", time.Since(start), len(items))
	c.logger.Info("extract.ok",
		"provider", c.provider.Name(),
		"items", len(items),
		"low_confidence", low,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return items, nil
}
