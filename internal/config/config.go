// Package config loads and validates the YAML configuration. A .env file
// in the working directory is loaded first so ${VAR} references in the
// YAML resolve from the environment.
package config

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/pumpwatch/internal/errs"
	"github.com/sawpanic/pumpwatch/internal/models"
	"github.com/sawpanic/pumpwatch/internal/score"
)

// KnownExchanges are the adapter names the registry can construct.
var KnownExchanges = map[string]bool{
	"binance": true,
	"bybit":   true,
	"okx":     true,
}

// Exchange is one venue entry. Credentials are optional; every endpoint
// the scanner needs is public.
type Exchange struct {
	Name      string `yaml:"name"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Enabled   bool   `yaml:"enabled"`
}

// Scan configures the scheduler.
type Scan struct {
	CadenceSeconds    int `yaml:"cadence_seconds"`
	Concurrency       int `yaml:"concurrency"`
	PerSymbolTimeoutS int `yaml:"per_symbol_timeout_s"`
	MaxGapHours       int `yaml:"max_gap_hours"`
}

// Telegram holds bot credentials for the telegram sink.
type Telegram struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// Alerts configures sink selection and filtering.
type Alerts struct {
	MinClassification string   `yaml:"min_classification"`
	Sinks             []string `yaml:"sinks"`
	Telegram          Telegram `yaml:"telegram"`
}

// Risk configures position sizing and trade limits.
type Risk struct {
	AccountUSD    float64 `yaml:"account_usd"`
	RiskPct       float64 `yaml:"risk_pct"`
	MaxOpenTrades int     `yaml:"max_open_trades"`
}

// Store configures persistence.
type Store struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Cache configures the adapter-level TTL cache.
type Cache struct {
	RedisAddr string `yaml:"redis_addr"`
}

// Server configures the local ops HTTP server.
type Server struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Config is the full configuration tree.
type Config struct {
	Exchanges  []Exchange       `yaml:"exchanges"`
	Scan       Scan             `yaml:"scan"`
	Alerts     Alerts           `yaml:"alerts"`
	Risk       Risk             `yaml:"risk"`
	Store      Store            `yaml:"store"`
	Cache      Cache            `yaml:"cache"`
	Server     Server           `yaml:"server"`
	Thresholds score.Thresholds `yaml:"thresholds"`
}

// Default returns the configuration used when a key is absent.
func Default() *Config {
	return &Config{
		Exchanges: []Exchange{{Name: "binance", Enabled: true}},
		Scan: Scan{
			CadenceSeconds:    900,
			Concurrency:       6,
			PerSymbolTimeoutS: 30,
			MaxGapHours:       3,
		},
		Alerts: Alerts{
			MinClassification: string(models.ClassWatchlist),
			Sinks:             []string{"console"},
		},
		Risk: Risk{
			AccountUSD:    10000,
			RiskPct:       0.02,
			MaxOpenTrades: 3,
		},
		Store: Store{
			Path:          "pumpwatch.db",
			RetentionDays: 30,
		},
		Server: Server{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8087,
		},
		Thresholds: score.DefaultThresholds(),
	}
}

// Load reads path, expands ${VAR} references and validates. Any failure is
// a Config error (exit 1 at startup).
func Load(path string) (*Config, error) {
	// Best effort: a missing .env is not an error.
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.E(errs.KindConfig, "config: read "+path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), cfg); err != nil {
		return nil, errs.E(errs.KindConfig, "config: parse "+path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the scanner cannot run with.
func (c *Config) Validate() error {
	enabled := 0
	for _, ex := range c.Exchanges {
		if !KnownExchanges[ex.Name] {
			return errs.Ef(errs.KindConfig, "config: exchanges",
				"unknown exchange %q", ex.Name)
		}
		if ex.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return errs.Ef(errs.KindConfig, "config: exchanges", "no exchange enabled")
	}

	if c.Scan.CadenceSeconds <= 0 {
		return errs.Ef(errs.KindConfig, "config: scan",
			"cadence_seconds must be positive, got %d", c.Scan.CadenceSeconds)
	}
	if c.Scan.Concurrency <= 0 {
		return errs.Ef(errs.KindConfig, "config: scan",
			"concurrency must be positive, got %d", c.Scan.Concurrency)
	}
	if c.Scan.PerSymbolTimeoutS <= 0 {
		return errs.Ef(errs.KindConfig, "config: scan",
			"per_symbol_timeout_s must be positive, got %d", c.Scan.PerSymbolTimeoutS)
	}

	switch models.Classification(c.Alerts.MinClassification) {
	case models.ClassCritical, models.ClassHighAlert, models.ClassWatchlist,
		models.ClassMonitor, models.ClassNone:
	default:
		return errs.Ef(errs.KindConfig, "config: alerts",
			"unknown min_classification %q", c.Alerts.MinClassification)
	}
	for _, sink := range c.Alerts.Sinks {
		switch sink {
		case "console", "telegram", "websocket":
		default:
			return errs.Ef(errs.KindConfig, "config: alerts", "unknown sink %q", sink)
		}
	}

	if c.Risk.RiskPct <= 0 || c.Risk.RiskPct >= 1 {
		return errs.Ef(errs.KindConfig, "config: risk",
			"risk_pct must be in (0, 1), got %v", c.Risk.RiskPct)
	}

	t := c.Thresholds
	if !(t.Critical > t.HighAlert && t.HighAlert > t.Watchlist && t.Watchlist > t.Monitor) {
		return errs.Ef(errs.KindConfig, "config: thresholds",
			"classification cutoffs must strictly decrease: %v >= %v >= %v >= %v is inverted",
			t.Critical, t.HighAlert, t.Watchlist, t.Monitor)
	}

	if c.Store.Path == "" {
		return errs.Ef(errs.KindConfig, "config: store", "path must be set")
	}
	return nil
}

// MinClassification returns the typed alert floor.
func (c *Config) MinClassification() models.Classification {
	return models.Classification(c.Alerts.MinClassification)
}

// EnabledExchanges lists enabled venue names in config order.
func (c *Config) EnabledExchanges() []string {
	var out []string
	for _, ex := range c.Exchanges {
		if ex.Enabled {
			out = append(out, ex.Name)
		}
	}
	return out
}

// Write renders the config to YAML at path, used by `pumpwatch setup`.
func (c *Config) Write(path string) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return errs.E(errs.KindConfig, "config: marshal", err)
	}
	header := "# pumpwatch configuration\n# secrets may reference environment variables as ${VAR}\n"
	if err := os.WriteFile(path, append([]byte(header), raw...), 0o600); err != nil {
		return errs.E(errs.KindConfig, "config: write "+path, err)
	}
	return nil
}
