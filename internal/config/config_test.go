package config

import (
	"encoding/json"
	"testing"
	"time"
)

// mapBackend is a test double over a plain map.
type mapBackend map[string]any

func (m mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m[key].(string)
	return v, ok, nil
}

func (m mapBackend) GetInt(key string) (int, bool, error) {
	switch v := m[key].(type) {
	case int:
		return v, true, nil
	case float64:
		return int(v), true, nil
	}
	return 0, false, nil
}

func (m mapBackend) GetBool(key string) (bool, bool, error) {
	v, ok := m[key].(bool)
	return v, ok, nil
}

func (m mapBackend) GetJSON(key string, out any) error {
	raw, ok := m[key]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func TestDefaults(t *testing.T) {
	cfg, err := loadWith(mapBackend{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if !cfg.Export.Enabled {
		t.Error("Export.Enabled should default to true")
	}
	if !cfg.Export.AllowCloudExport {
		t.Error("Export.AllowCloudExport should default to true")
	}
	if !cfg.Export.PIIWarning {
		t.Error("Export.PIIWarning should default to true")
	}
	if cfg.Export.ExportMaxChars != 4000 {
		t.Errorf("Export.ExportMaxChars = %d, want 4000", cfg.Export.ExportMaxChars)
	}
	if cfg.Export.MaxAttempts != 3 {
		t.Errorf("Export.MaxAttempts = %d, want 3", cfg.Export.MaxAttempts)
	}
	if cfg.Export.PendingTTL != 120*time.Second {
		t.Errorf("Export.PendingTTL = %v, want 120s", cfg.Export.PendingTTL)
	}
	if cfg.Export.Retention != 7*24*time.Hour {
		t.Errorf("Export.Retention = %v, want 7 days", cfg.Export.Retention)
	}
}

func TestBackendOverrides(t *testing.T) {
	cfg, err := loadWith(mapBackend{
		"port":                 4700,
		"token":                "secret",
		"enabled":              false,
		"pii_warning":          false,
		"export_max_chars":     1000,
		"default_notebook_ref": "Reading List",
		"max_attempts":         5,
		"pending_ttl_ms":       60000,
		"retention_days":       14,
		"sensitive_domains":    []string{"*.bank.example"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4700 || cfg.Server.Token != "secret" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Export.Enabled || cfg.Export.PIIWarning {
		t.Errorf("export toggles not applied: %+v", cfg.Export)
	}
	if cfg.Export.ExportMaxChars != 1000 || cfg.Export.MaxAttempts != 5 {
		t.Errorf("export limits not applied: %+v", cfg.Export)
	}
	if cfg.Export.DefaultNotebookRef != "Reading List" {
		t.Errorf("DefaultNotebookRef = %q", cfg.Export.DefaultNotebookRef)
	}
	if cfg.Export.PendingTTL != time.Minute {
		t.Errorf("PendingTTL = %v, want 1m", cfg.Export.PendingTTL)
	}
	if cfg.Export.Retention != 14*24*time.Hour {
		t.Errorf("Retention = %v, want 14 days", cfg.Export.Retention)
	}
	if len(cfg.SensitiveDomains) != 1 || cfg.SensitiveDomains[0] != "*.bank.example" {
		t.Errorf("SensitiveDomains = %v", cfg.SensitiveDomains)
	}
}

func TestRulesDecodedAndSanitized(t *testing.T) {
	cfg, err := loadWith(mapBackend{
		"rules": map[string]any{
			"by_tag": []map[string]any{
				{"tag": "research", "notebook_ref": "Research"},
				{"tag": "broken"},
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Rules.ByTag) != 1 {
		t.Fatalf("ByTag = %+v, want the broken rule dropped", cfg.Rules.ByTag)
	}
	if cfg.Rules.ByTag[0].NotebookRef != "Research" {
		t.Errorf("ByTag[0] = %+v", cfg.Rules.ByTag[0])
	}
}

func TestEnvOverridesBeatBackend(t *testing.T) {
	t.Setenv("CLIPDOCK_PORT", "9999")
	t.Setenv("CLIPDOCK_TOKEN", "env-token")
	t.Setenv("CLIPDOCK_ENABLED", "false")
	t.Setenv("CLIPDOCK_DEFAULT_NOTEBOOK", "Env Inbox")

	cfg, err := loadWith(mapBackend{
		"port":    4700,
		"token":   "file-token",
		"enabled": true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want env override", cfg.Server.Port)
	}
	if cfg.Server.Token != "env-token" {
		t.Errorf("Server.Token = %q, want env override", cfg.Server.Token)
	}
	if cfg.Export.Enabled {
		t.Error("Export.Enabled should follow env override")
	}
	if cfg.Export.DefaultNotebookRef != "Env Inbox" {
		t.Errorf("DefaultNotebookRef = %q", cfg.Export.DefaultNotebookRef)
	}
}

func TestEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("CLIPDOCK_PORT", "not-a-number")
	t.Setenv("CLIPDOCK_ENABLED", "not-a-bool")

	cfg, err := loadWith(mapBackend{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, malformed env should be ignored", cfg.Server.Port)
	}
	if !cfg.Export.Enabled {
		t.Error("Export.Enabled should keep its default on malformed env")
	}
}
