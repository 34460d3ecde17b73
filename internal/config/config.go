// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for all simulation and netcode settings.
//
// Precedence, lowest to highest: built-in defaults, optional YAML file,
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// SIMULATION
// =============================================================================

// SimConfig tunes the authoritative tick engine.
type SimConfig struct {
	TickRate     int `yaml:"tickRate"`     // simulation steps per second
	TickBudgetMs int `yaml:"tickBudgetMs"` // wall-clock budget per tick
}

// DefaultSim returns the default simulation configuration: 125 Hz / 8 ms.
func DefaultSim() SimConfig {
	return SimConfig{
		TickRate:     125,
		TickBudgetMs: 8,
	}
}

// =============================================================================
// INPUT ADMISSION
// =============================================================================

// InputConfig tunes the server-side input gateway.
type InputConfig struct {
	QueueCapacity int `yaml:"queueCapacity"` // per-player pending input cap

	// Per-kind accepted-inputs-per-second caps, rolling 1 s window.
	MovementPerSec int `yaml:"movementPerSec"` // MOVE / ATTACK_MOVE / TARGET_UNIT / STOP
	AbilityPerSec  int `yaml:"abilityPerSec"`
	ShopPerSec     int `yaml:"shopPerSec"` // LEVEL_UP / BUY_ITEM / SELL_ITEM
	RecallPerSec   int `yaml:"recallPerSec"`
	PingPerSec     int `yaml:"pingPerSec"`
	ChatPerSec     int `yaml:"chatPerSec"`
}

// DefaultInput returns the reference rate-limit table.
func DefaultInput() InputConfig {
	return InputConfig{
		QueueCapacity:  64,
		MovementPerSec: 20,
		AbilityPerSec:  8,
		ShopPerSec:     5,
		RecallPerSec:   2,
		PingPerSec:     5,
		ChatPerSec:     3,
	}
}

// =============================================================================
// CLIENT PREDICTION
// =============================================================================

// PredictionConfig tunes the client-side reconciler and interpolator.
type PredictionConfig struct {
	InterpolationDelayMs int     `yaml:"interpolationDelayMs"`
	SnapThreshold        float64 `yaml:"snapThreshold"`       // units; hard snap above this
	CorrectionThreshold  float64 `yaml:"correctionThreshold"` // units; smooth above this
	SmoothingFactor      float64 `yaml:"smoothingFactor"`
	MaxPendingInputs     int     `yaml:"maxPendingInputs"`
}

// DefaultPrediction returns the reference prediction tuning.
func DefaultPrediction() PredictionConfig {
	return PredictionConfig{
		InterpolationDelayMs: 100,
		SnapThreshold:        100,
		CorrectionThreshold:  5,
		SmoothingFactor:      0.3,
		MaxPendingInputs:     60,
	}
}

// =============================================================================
// CLIENT BUFFERING & LINK
// =============================================================================

// BufferConfig tunes the client snapshot ring.
type BufferConfig struct {
	MaxSnapshots   int `yaml:"maxSnapshots"`
	BufferDuration int `yaml:"bufferDurationMs"`
}

// DefaultBuffer returns the reference buffering: 250 entries / 2 s at 125 Hz.
func DefaultBuffer() BufferConfig {
	return BufferConfig{
		MaxSnapshots:   250,
		BufferDuration: 2000,
	}
}

// LinkConfig tunes the client network link.
type LinkConfig struct {
	ReconnectAttempts int `yaml:"reconnectAttempts"`
	ReconnectDelayMs  int `yaml:"reconnectDelayMs"`
	HeartbeatMs       int `yaml:"heartbeatIntervalMs"`
}

// DefaultLink returns the reference link tuning.
func DefaultLink() LinkConfig {
	return LinkConfig{
		ReconnectAttempts: 5,
		ReconnectDelayMs:  2000,
		HeartbeatMs:       5000,
	}
}

// =============================================================================
// SERVER
// =============================================================================

// ServerConfig holds HTTP/WebSocket server settings.
type ServerConfig struct {
	Port             int `yaml:"port"`
	MaxPlayers       int `yaml:"maxPlayers"`
	SendBuffer       int `yaml:"sendBuffer"`       // outbound frames per session before drop
	IdleTimeoutSec   int `yaml:"idleTimeoutSec"`   // silent session teardown
	MaxConnsTotal    int `yaml:"maxConnsTotal"`    // global websocket cap
	MaxConnsPerIP    int `yaml:"maxConnsPerIP"`    // per-IP websocket cap
	SessionExpirySec int `yaml:"sessionExpirySec"` // how long acked state survives a disconnect

	// Extra websocket/CORS origins beyond localhost.
	AllowedOrigins []string `yaml:"allowedOrigins"`

	// AdminToken guards POST /api/admin/*. Empty disables the endpoints.
	AdminToken string `yaml:"adminToken"`
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:             3000,
		MaxPlayers:       10,
		SendBuffer:       32,
		IdleTimeoutSec:   30,
		MaxConnsTotal:    500,
		MaxConnsPerIP:    10,
		SessionExpirySec: 120,
	}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Sim        SimConfig        `yaml:"sim"`
	Input      InputConfig      `yaml:"input"`
	Prediction PredictionConfig `yaml:"prediction"`
	Buffer     BufferConfig     `yaml:"buffer"`
	Link       LinkConfig       `yaml:"link"`
	Server     ServerConfig     `yaml:"server"`
}

// Defaults returns the complete built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		Sim:        DefaultSim(),
		Input:      DefaultInput(),
		Prediction: DefaultPrediction(),
		Buffer:     DefaultBuffer(),
		Link:       DefaultLink(),
		Server:     DefaultServer(),
	}
}

// Load returns the complete configuration: defaults, then the YAML file named
// by RIFTLINE_CONFIG (if set), then environment variable overrides.
func Load() (AppConfig, error) {
	cfg := Defaults()

	if path := os.Getenv("RIFTLINE_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// loadFile merges a YAML file over the current values.
func (c *AppConfig) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

// applyEnv applies environment variable overrides for the settings that are
// commonly changed per deployment.
func (c *AppConfig) applyEnv() {
	if v := getEnvInt("TICK_RATE", 0); v > 0 {
		c.Sim.TickRate = v
	}
	if v := getEnvInt("TICK_BUDGET_MS", 0); v > 0 {
		c.Sim.TickBudgetMs = v
	}
	if v := getEnvInt("PORT", 0); v > 0 {
		c.Server.Port = v
	}
	if v := getEnvInt("MAX_PLAYERS", 0); v > 0 {
		c.Server.MaxPlayers = v
	}
	if v := getEnvInt("INTERPOLATION_DELAY_MS", 0); v > 0 {
		c.Prediction.InterpolationDelayMs = v
	}
	if v := getEnvFloat("SNAP_THRESHOLD", 0); v > 0 {
		c.Prediction.SnapThreshold = v
	}
	if v := getEnvFloat("SMOOTHING_FACTOR", 0); v > 0 {
		c.Prediction.SmoothingFactor = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Server.AdminToken = v
	}
}

// Validate rejects configurations the engine cannot run with.
func (c AppConfig) Validate() error {
	if c.Sim.TickRate <= 0 {
		return fmt.Errorf("tickRate must be positive, got %d", c.Sim.TickRate)
	}
	if c.Sim.TickBudgetMs <= 0 {
		return fmt.Errorf("tickBudgetMs must be positive, got %d", c.Sim.TickBudgetMs)
	}
	if c.Prediction.SmoothingFactor <= 0 || c.Prediction.SmoothingFactor > 1 {
		return fmt.Errorf("smoothingFactor must be in (0,1], got %g", c.Prediction.SmoothingFactor)
	}
	if c.Prediction.SnapThreshold < c.Prediction.CorrectionThreshold {
		return fmt.Errorf("snapThreshold %g below correctionThreshold %g",
			c.Prediction.SnapThreshold, c.Prediction.CorrectionThreshold)
	}
	if c.Buffer.MaxSnapshots < 2 {
		return fmt.Errorf("maxSnapshots must be at least 2, got %d", c.Buffer.MaxSnapshots)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
