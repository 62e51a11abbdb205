// Package config loads and validates the scenario configuration. Invalid
// config is fatal at startup; nothing here fails per request.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gpsalud/consultaflow/entity"
	"github.com/gpsalud/consultaflow/providers"
	"github.com/gpsalud/consultaflow/retrieval"
	"github.com/gpsalud/consultaflow/router"
	"github.com/gpsalud/consultaflow/types"
)

// CacheConfig configures the optional Redis embedding cache.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// MetricsConfig configures persistence and the Prometheus endpoint.
type MetricsConfig struct {
	DBPath     string `yaml:"db_path"`
	Run        string `yaml:"run"`
	ListenAddr string `yaml:"listen_addr"` // "" disables the /metrics endpoint
}

// DataConfig names the on-disk inputs.
type DataConfig struct {
	DictionaryPath string `yaml:"dictionary_path"`
	SynonymsPath   string `yaml:"synonyms_path"`
	ChunksDir      string `yaml:"chunks_dir"`
}

// Config is the full scenario configuration.
type Config struct {
	Scenario string `yaml:"scenario"`
	Mode     string `yaml:"mode"` // consulta | conversacion

	Provider  providers.Config               `yaml:"provider"`
	Embedding retrieval.OllamaEmbedderConfig `yaml:"embedding"`
	Router    router.Config                  `yaml:"router"`
	Detection entity.DetectorConfig          `yaml:"detection"`
	Cache     CacheConfig                    `yaml:"cache"`
	Metrics   MetricsConfig                  `yaml:"metrics"`
	Data      DataConfig                     `yaml:"data"`
}

// Modes the router runs in. Consulta is stateless; conversacion keeps
// bounded per-session history.
const (
	ModeConsulta     = "consulta"
	ModeConversacion = "conversacion"
)

// Default returns a runnable configuration for the consulta scenario.
func Default() Config {
	return Config{
		Scenario:  "consulta_groq",
		Mode:      ModeConsulta,
		Provider:  providers.DefaultConfig(),
		Embedding: retrieval.DefaultOllamaEmbedderConfig(),
		Router:    router.DefaultConfig(),
		Cache: CacheConfig{
			Addr: "localhost:6379",
			TTL:  24 * time.Hour,
		},
		Metrics: MetricsConfig{
			DBPath: "consultaflow_metrics.db",
			Run:    "dev",
		},
		Data: DataConfig{
			DictionaryPath: "data/entities.yaml",
			SynonymsPath:   "data/synonyms.yaml",
			ChunksDir:      "data/chunks",
		},
	}
}

// Load reads a YAML config file over the defaults, applies environment
// overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, types.NewError(types.ErrConfigInvalid,
				fmt.Sprintf("read config %s", path), err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, types.NewError(types.ErrConfigInvalid,
				fmt.Sprintf("parse config %s", path), err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv lets deployment environments override secrets and endpoints
// without editing the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("GROQ_API_KEY"); v != "" && c.Provider.APIKey == "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("CONSULTAFLOW_REDIS_ADDR"); v != "" {
		c.Cache.Addr = v
	}
	if v := os.Getenv("CONSULTAFLOW_METRICS_DB"); v != "" {
		c.Metrics.DBPath = v
	}
	if v := os.Getenv("CONSULTAFLOW_RUN"); v != "" {
		c.Metrics.Run = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		if c.Provider.Provider == "ollama" && c.Provider.BaseURL == "" {
			c.Provider.BaseURL = v
		}
		c.Embedding.BaseURL = v
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	fail := func(msg string) error {
		return types.NewError(types.ErrConfigInvalid, msg, nil)
	}

	if c.Scenario == "" {
		return fail("scenario must not be empty")
	}
	if c.Mode != ModeConsulta && c.Mode != ModeConversacion {
		return fail(fmt.Sprintf("mode must be %q or %q, got %q",
			ModeConsulta, ModeConversacion, c.Mode))
	}
	if c.Provider.Provider != "groq" && c.Provider.Provider != "ollama" {
		return fail(fmt.Sprintf("unknown provider %q", c.Provider.Provider))
	}
	if c.Provider.Model == "" {
		return fail("provider model must not be empty")
	}
	if c.Router.TopK <= 0 {
		return fail("router top_k must be positive")
	}
	if c.Router.MinScore < 0 || c.Router.MinScore > 1 {
		return fail(fmt.Sprintf("router min_score must be in [0,1], got %v", c.Router.MinScore))
	}
	if c.Mode == ModeConversacion && c.Router.MaxHistoryTurns <= 0 {
		return fail("max_history_turns must be positive in conversacion mode")
	}
	if c.Data.DictionaryPath == "" {
		return fail("dictionary path must not be empty")
	}
	return nil
}
