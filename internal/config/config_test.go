package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Sim.TickRate != 125 || cfg.Sim.TickBudgetMs != 8 {
		t.Errorf("sim = %+v", cfg.Sim)
	}
	if cfg.Input.MovementPerSec != 20 {
		t.Errorf("movementPerSec = %d", cfg.Input.MovementPerSec)
	}
	if cfg.Prediction.InterpolationDelayMs != 100 {
		t.Errorf("interpolationDelayMs = %d", cfg.Prediction.InterpolationDelayMs)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"zero tick rate", func(c *AppConfig) { c.Sim.TickRate = 0 }},
		{"zero budget", func(c *AppConfig) { c.Sim.TickBudgetMs = 0 }},
		{"smoothing above one", func(c *AppConfig) { c.Prediction.SmoothingFactor = 1.5 }},
		{"smoothing zero", func(c *AppConfig) { c.Prediction.SmoothingFactor = 0 }},
		{"snap below correction", func(c *AppConfig) {
			c.Prediction.SnapThreshold = 1
			c.Prediction.CorrectionThreshold = 5
		}},
		{"one snapshot buffer", func(c *AppConfig) { c.Buffer.MaxSnapshots = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "riftline.yaml")
	yaml := "sim:\n  tickRate: 60\nserver:\n  port: 9999\n  allowedOrigins:\n    - https://game.example.com\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RIFTLINE_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sim.TickRate != 60 {
		t.Errorf("tickRate = %d, want 60", cfg.Sim.TickRate)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://game.example.com" {
		t.Errorf("allowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	// Untouched values keep their defaults.
	if cfg.Sim.TickBudgetMs != 8 {
		t.Errorf("tickBudgetMs = %d, want default 8", cfg.Sim.TickBudgetMs)
	}
}

func TestLoadEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "riftline.yaml")
	if err := os.WriteFile(path, []byte("sim:\n  tickRate: 60\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RIFTLINE_CONFIG", path)
	t.Setenv("TICK_RATE", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sim.TickRate != 30 {
		t.Errorf("tickRate = %d, want env override 30", cfg.Sim.TickRate)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	t.Setenv("RIFTLINE_CONFIG", "/does/not/exist.yaml")
	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestEnvOverridesIgnoreGarbage(t *testing.T) {
	t.Setenv("TICK_RATE", "not-a-number")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sim.TickRate != 125 {
		t.Errorf("tickRate = %d, want default 125", cfg.Sim.TickRate)
	}
}
