package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/bistro-cms/menuimport/internal/config"
	"github.com/bistro-cms/menuimport/internal/evalcmd"
	"github.com/bistro-cms/menuimport/internal/extract"
	"github.com/bistro-cms/menuimport/internal/metrics"
	"github.com/bistro-cms/menuimport/internal/raster"
	"github.com/bistro-cms/menuimport/internal/store"
	"github.com/bistro-cms/menuimport/internal/store/migrations"
	"github.com/bistro-cms/menuimport/internal/store/postgres"
	"github.com/bistro-cms/menuimport/internal/store/sqlite"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// app carries what every subcommand resolves from flags, config and environment
type app struct {
	configPath string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "menuimport",
		Short: "Import restaurant menus from PDFs and photos",
		Long: `menuimport turns menu documents into menu items.

Uploaded PDFs and images are rendered to page images, sent to a vision model
that lists the items it can read, reviewed by an operator and committed to a
menu category in one transaction.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.Log.Level = a.logLevel
			}
			a.cfg = cfg
			a.logger = cfg.Log.Logger(os.Stderr)
			slog.SetDefault(a.logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML config file (default "+config.DefaultFile+" when present)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newExtractCmd(a))
	cmd.AddCommand(newCommitCmd(a))
	cmd.AddCommand(newCategoriesCmd(a))
	cmd.AddCommand(newMigrateCmd(a))
	cmd.AddCommand(newSpecialsCmd(a))
	cmd.AddCommand(newEvalCmd(a))

	return cmd
}

func (a *app) Logger() *slog.Logger { return a.logger }

// openStore connects to the configured backend, applying migrations first
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	sc := a.cfg.Store
	switch sc.Driver {
	case "memory":
		a.logger.Warn("Using the in-memory store; nothing is kept after exit")
		return store.NewMemory(), nil
	case "sqlite":
		return sqlite.Open(ctx, sc.DSN)
	case "postgres":
		pool, err := postgres.Connect(ctx, sc.DSN, sc.MaxConns)
		if err != nil {
			return nil, err
		}
		db := stdlib.OpenDBFromPool(pool)
		defer db.Close()
		if err := migrations.Up(ctx, db, "postgres"); err != nil {
			pool.Close()
			return nil, err
		}
		return postgres.New(pool), nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

func (a *app) rasterizer() *raster.Rasterizer {
	rc := a.cfg.Raster
	return raster.New(raster.Config{
		Pdfinfo:  rc.Pdfinfo,
		Pdftoppm: rc.Pdftoppm,
		Scale:    rc.Scale,
		MaxPages: rc.MaxPages,
	}, a.logger)
}

// extractor builds the extraction client; empty provider or model fall back to config
func (a *app) extractor(provider, model string, m *metrics.Metrics) (*extract.Client, error) {
	ec := a.cfg.Extract
	if provider == "" {
		provider = ec.Provider
	}
	if model == "" {
		model = ec.Model
		if provider != ec.Provider || model == "" {
			model = extract.DefaultModel(provider)
		}
	}

	backend := extract.Backend{Provider: provider}
	switch provider {
	case "gemini":
		backend.APIKey = ec.GeminiKey
	case "openai":
		backend.APIKey = ec.OpenAIKey
		backend.BaseURL = ec.OpenAIURL
	case "ollama":
		backend.BaseURL = ec.OllamaURL
	}
	if provider != "ollama" && backend.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for %s", provider)
	}

	p, err := extract.NewProvider(backend, &http.Client{Timeout: ec.Timeout})
	if err != nil {
		return nil, err
	}
	return extract.NewClient(p, extract.Options{
		Model:       model,
		Temperature: ec.Temperature,
		Timeout:     ec.Timeout,
		Metrics:     m,
		Logger:      a.logger,
	})
}

// evalApp adapts app to the eval commands
type evalApp struct{ *app }

func (e evalApp) Rasterizer() (evalcmd.Rasterizer, error) {
	return e.rasterizer(), nil
}

func (e evalApp) Extractor(provider, model string) (evalcmd.Extractor, evalcmd.ExtractorInfo, error) {
	c, err := e.extractor(provider, model, nil)
	if err != nil {
		return nil, evalcmd.ExtractorInfo{}, err
	}
	return c, evalcmd.ExtractorInfo{
		Provider:    c.Provider(),
		Model:       c.Model(),
		Temperature: e.cfg.Extract.Temperature,
	}, nil
}
