package config

import (
	"os"
	"strconv"
	"time"

	"github.com/veldtkamp/clipdock/internal/notebook"
)

// Config is the full runtime configuration: server wiring, storage location,
// export settings, routing rules, and sensitive-domain patterns.
type Config struct {
	Server           ServerConfig
	Storage          StorageConfig
	Export           ExportSettings
	Rules            notebook.Rules
	SensitiveDomains []string
}

type ServerConfig struct {
	Port  int
	Token string
}

type StorageConfig struct {
	DataDir string
}

// ExportSettings controls the export pipeline's policy gates. Every field has
// a default so a missing or partial config file never breaks the pipeline.
type ExportSettings struct {
	Enabled            bool
	AllowCloudExport   bool
	PIIWarning         bool
	ExportMaxChars     int
	DefaultNotebookRef string
	NotebookBaseURL    string
	MaxAttempts        int
	PendingTTL         time.Duration
	Retention          time.Duration
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Export: ExportSettings{
			Enabled:            true,
			AllowCloudExport:   true,
			PIIWarning:         true,
			ExportMaxChars:     4000,
			DefaultNotebookRef: "",
			NotebookBaseURL:    "https://notebook.example.com",
			MaxAttempts:        3,
			PendingTTL:         120 * time.Second,
			Retention:          7 * 24 * time.Hour,
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/clipdock/config.json, then applies CLIPDOCK_* environment
// variable overrides. Missing fields keep their defaults.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	cfg.Rules = cfg.Rules.Sanitize()

	return cfg, nil
}

func applyBackend(cfg *Config, b Backend) error {
	if v, ok, err := b.GetInt("port"); err == nil && ok {
		cfg.Server.Port = v
	}
	if v, ok, err := b.GetString("token"); err == nil && ok {
		cfg.Server.Token = v
	}
	if v, ok, err := b.GetString("data_dir"); err == nil && ok {
		cfg.Storage.DataDir = v
	}

	if v, ok, err := b.GetBool("enabled"); err == nil && ok {
		cfg.Export.Enabled = v
	}
	if v, ok, err := b.GetBool("allow_cloud_export"); err == nil && ok {
		cfg.Export.AllowCloudExport = v
	}
	if v, ok, err := b.GetBool("pii_warning"); err == nil && ok {
		cfg.Export.PIIWarning = v
	}
	if v, ok, err := b.GetInt("export_max_chars"); err == nil && ok && v > 0 {
		cfg.Export.ExportMaxChars = v
	}
	if v, ok, err := b.GetString("default_notebook_ref"); err == nil && ok {
		cfg.Export.DefaultNotebookRef = v
	}
	if v, ok, err := b.GetString("notebook_base_url"); err == nil && ok {
		cfg.Export.NotebookBaseURL = v
	}
	if v, ok, err := b.GetInt("max_attempts"); err == nil && ok && v > 0 {
		cfg.Export.MaxAttempts = v
	}
	if v, ok, err := b.GetInt("pending_ttl_ms"); err == nil && ok && v > 0 {
		cfg.Export.PendingTTL = time.Duration(v) * time.Millisecond
	}
	if v, ok, err := b.GetInt("retention_days"); err == nil && ok && v > 0 {
		cfg.Export.Retention = time.Duration(v) * 24 * time.Hour
	}

	if err := b.GetJSON("sensitive_domains", &cfg.SensitiveDomains); err != nil {
		return err
	}
	if err := b.GetJSON("rules", &cfg.Rules); err != nil {
		return err
	}

	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLIPDOCK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CLIPDOCK_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
	if v := os.Getenv("CLIPDOCK_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("CLIPDOCK_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Export.Enabled = b
		}
	}
	if v := os.Getenv("CLIPDOCK_ALLOW_CLOUD_EXPORT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Export.AllowCloudExport = b
		}
	}
	if v := os.Getenv("CLIPDOCK_PII_WARNING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Export.PIIWarning = b
		}
	}
	if v := os.Getenv("CLIPDOCK_DEFAULT_NOTEBOOK"); v != "" {
		cfg.Export.DefaultNotebookRef = v
	}
	if v := os.Getenv("CLIPDOCK_NOTEBOOK_BASE_URL"); v != "" {
		cfg.Export.NotebookBaseURL = v
	}
}
