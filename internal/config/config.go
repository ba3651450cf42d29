// Package config assembles settings from defaults, an optional YAML file
// and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no --config flag is given and the file exists
const DefaultFile = "menuimport.yaml"

type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Extract   ExtractConfig   `yaml:"extract"`
	Raster    RasterConfig    `yaml:"raster"`
	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
}

type StoreConfig struct {
	Driver   string `yaml:"driver"` // memory, sqlite, postgres
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

type ExtractConfig struct {
	Provider    string        `yaml:"provider"` // gemini, openai, ollama
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	GeminiKey   string        `yaml:"gemini_api_key"`
	OpenAIKey   string        `yaml:"openai_api_key"`
	OpenAIURL   string        `yaml:"openai_base_url"`
	OllamaURL   string        `yaml:"ollama_url"`
}

type RasterConfig struct {
	Pdfinfo  string `yaml:"pdfinfo"`
	Pdftoppm string `yaml:"pdftoppm"`
	Scale    int    `yaml:"scale"`
	MaxPages int    `yaml:"max_pages"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	ProcessTimeout time.Duration `yaml:"process_timeout"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
}

type SchedulerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Spec    string `yaml:"spec"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		Store:   StoreConfig{Driver: "sqlite", DSN: "menuimport.db", MaxConns: 10},
		Extract: ExtractConfig{Provider: "gemini", Timeout: 3 * time.Minute, OllamaURL: "http://localhost:11434"},
		Raster:  RasterConfig{Pdfinfo: "pdfinfo", Pdftoppm: "pdftoppm", Scale: 2, MaxPages: 40},
		Server: ServerConfig{
			Addr:           ":8888",
			ProcessTimeout: 5 * time.Minute,
			SessionTTL:     2 * time.Hour,
		},
		Scheduler: SchedulerConfig{Enabled: true, Spec: "*/15 * * * *"},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load applies the YAML file at path over the defaults, then the environment.
// An empty path falls back to DefaultFile when it exists.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.Store.Driver = getEnv("MENU_STORE_DRIVER", c.Store.Driver)
	c.Store.DSN = getEnv("MENU_STORE_DSN", c.Store.DSN)
	c.Store.MaxConns = int32(getEnvAsInt("MENU_STORE_MAX_CONNS", int(c.Store.MaxConns)))

	c.Extract.Provider = getEnv("EXTRACT_PROVIDER", c.Extract.Provider)
	c.Extract.Model = getEnv("EXTRACT_MODEL", c.Extract.Model)
	c.Extract.Timeout = getEnvAsDuration("EXTRACT_TIMEOUT", c.Extract.Timeout)
	c.Extract.GeminiKey = getEnv("GEMINI_API_KEY", c.Extract.GeminiKey)
	c.Extract.OpenAIKey = getEnv("OPENAI_API_KEY", c.Extract.OpenAIKey)
	c.Extract.OpenAIURL = getEnv("OPENAI_BASE_URL", c.Extract.OpenAIURL)
	c.Extract.OllamaURL = getEnv("OLLAMA_URL", c.Extract.OllamaURL)

	c.Raster.Pdfinfo = getEnv("PDFINFO", c.Raster.Pdfinfo)
	c.Raster.Pdftoppm = getEnv("PDFTOPPM", c.Raster.Pdftoppm)
	c.Raster.MaxPages = getEnvAsInt("RASTER_MAX_PAGES", c.Raster.MaxPages)

	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	c.Scheduler.Enabled = getEnvAsBool("SPECIALS_SCHEDULER", c.Scheduler.Enabled)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate rejects unknown driver, provider and log names
func (c Config) Validate() error {
	var problems []string
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q must be memory, sqlite or postgres", c.Store.Driver))
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		problems = append(problems, "store.dsn is required")
	}
	switch c.Extract.Provider {
	case "gemini", "openai", "ollama":
	default:
		problems = append(problems, fmt.Sprintf("extract.provider %q must be gemini, openai or ollama", c.Extract.Provider))
	}
	if c.Raster.Scale < 1 {
		problems = append(problems, "raster.scale must be at least 1")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}
	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

// Logger builds the process logger for these settings
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
