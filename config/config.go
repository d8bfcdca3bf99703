package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Scoring collaborator configuration
	Scoring ScoringConfig `json:"scoring"`

	// Game configuration
	Game GameConfig `json:"game"`

	// Store configuration
	Store StoreConfig `json:"store"`
}

// ServerConfig holds HTTP server specific configuration
type ServerConfig struct {
	// Server port
	Port string `json:"port" env:"SERVER_PORT"`

	// Log level (debug, info, warn, error)
	LogLevel string `json:"log_level" env:"LOG_LEVEL"`
}

// ScoringConfig holds configuration for the external scoring service
type ScoringConfig struct {
	// Base URL of the scoring service
	BaseURL string `json:"base_url" env:"SCORING_BASE_URL"`

	// Request timeout in seconds
	TimeoutSeconds int `json:"timeout_seconds" env:"SCORING_TIMEOUT_SECONDS"`
}

// GameConfig holds simulation specific configuration
type GameConfig struct {
	// Number of turns in a session
	TotalTurns int `json:"total_turns" env:"GAME_TOTAL_TURNS"`

	// Real-time seconds between clock ticks
	TickIntervalSeconds int `json:"tick_interval_seconds"`

	// Simulated hours added per clock tick
	SimHoursPerTick int `json:"sim_hours_per_tick"`

	// Radius in km around the scenario center for generated threat coordinates
	ThreatRadiusKm float64 `json:"threat_radius_km"`

	// Stability used when the incident feed carries no threat score
	DefaultStability float64 `json:"default_stability"`

	// Path to the seed resource inventory
	SeedResourcePath string `json:"seed_resource_path"`
}

// StoreConfig holds persistence specific configuration
type StoreConfig struct {
	// Database driver (sqlite3)
	Driver string `json:"driver"`

	// Database connection string
	DSN string `json:"dsn" env:"STORE_DSN"`

	// Directory for session transcript archives
	ArchiveDir string `json:"archive_dir"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:     "8080",
			LogLevel: "info",
		},
		Scoring: ScoringConfig{
			BaseURL:        "http://localhost:8000",
			TimeoutSeconds: 90,
		},
		Game: GameConfig{
			TotalTurns:          20,
			TickIntervalSeconds: 5,
			SimHoursPerTick:     1,
			ThreatRadiusKm:      25,
			DefaultStability:    50,
			SeedResourcePath:    "./assets/data/resources.yaml",
		},
		Store: StoreConfig{
			Driver:     "sqlite3",
			DSN:        "./crisis-command.db",
			ArchiveDir: "./data/transcripts",
		},
	}
}

// LoadConfig loads configuration from a file
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return config, err
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Create default config file
		file, err := os.Create(path)
		if err != nil {
			return config, err
		}
		defer file.Close()

		encoder := json.NewEncoder(file)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(config); err != nil {
			return config, err
		}

		return config, nil
	}

	// Read config file
	file, err := os.Open(path)
	if err != nil {
		return config, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return config, err
	}

	return config, nil
}

// ApplyEnv overlays environment variables on top of the loaded configuration
func ApplyEnv(config *Config) error {
	return env.Parse(config)
}

// SaveConfig saves configuration to a file
func SaveConfig(config Config, path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Create or truncate file
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	// Write config to file
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return err
	}

	return nil
}
