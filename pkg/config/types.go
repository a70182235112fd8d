package config

import (
	"time"

	"github.com/trinitydeploy/trinity/pkg/telemetry"
)

// Config is the complete Trinity configuration.
type Config struct {
	// Neon configures the database platform.
	Neon NeonConfig `yaml:"neon" json:"neon"`

	// Railway configures the compute platform.
	Railway RailwayConfig `yaml:"railway" json:"railway"`

	// Vercel configures the frontend platform.
	Vercel VercelConfig `yaml:"vercel" json:"vercel"`

	// Git configures access to remote repositories during classification.
	Git GitConfig `yaml:"git" json:"git"`

	// HTTP tunes the shared platform API client.
	HTTP HTTPConfig `yaml:"http" json:"http"`

	// Ledger configures the in-flight resource ledger.
	Ledger LedgerConfig `yaml:"ledger" json:"ledger"`

	// Policy configures admission policies.
	Policy PolicyConfig `yaml:"policy" json:"policy"`

	// Server configures `trinity serve`.
	Server ServerConfig `yaml:"server" json:"server"`

	// Telemetry configures logging, tracing and metrics.
	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry"`
}

// NeonConfig configures the Neon adapter.
type NeonConfig struct {
	APIKey   string `yaml:"api_key" json:"-"`
	BaseURL  string `yaml:"base_url" json:"base_url,omitempty" validate:"omitempty,url"`
	RegionID string `yaml:"region_id" json:"region_id,omitempty"`
	Database string `yaml:"database" json:"database,omitempty"`
	Role     string `yaml:"role" json:"role,omitempty"`
}

// RailwayConfig configures the Railway adapter.
type RailwayConfig struct {
	Token       string `yaml:"token" json:"-"`
	BaseURL     string `yaml:"base_url" json:"base_url,omitempty" validate:"omitempty,url"`
	Environment string `yaml:"environment" json:"environment,omitempty"`
	TeamID      string `yaml:"team_id" json:"team_id,omitempty"`
}

// VercelConfig configures the Vercel adapter.
type VercelConfig struct {
	Token   string `yaml:"token" json:"-"`
	BaseURL string `yaml:"base_url" json:"base_url,omitempty" validate:"omitempty,url"`
	TeamID  string `yaml:"team_id" json:"team_id,omitempty"`
}

// GitConfig configures remote clones.
type GitConfig struct {
	// Token authenticates https clones of private repositories.
	Token string `yaml:"token" json:"-"`

	// CloneTimeout bounds a single clone.
	CloneTimeout time.Duration `yaml:"clone_timeout" json:"clone_timeout" validate:"gte=0"`
}

// HTTPConfig tunes platform API calls.
type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries" validate:"gte=0,lte=10"`
}

// LedgerConfig configures the SQLite resource ledger.
type LedgerConfig struct {
	// Path is the database file. An empty path disables the ledger.
	Path string `yaml:"path" json:"path"`
}

// PolicyConfig configures admission policies.
type PolicyConfig struct {
	// Paths are files or directories of .rego and .json policies.
	Paths []string `yaml:"paths" json:"paths,omitempty"`

	// Disabled lists policy names to switch off, built-ins included.
	Disabled []string `yaml:"disabled" json:"disabled,omitempty"`

	// Watch reloads policies when files under Paths change.
	Watch bool `yaml:"watch" json:"watch"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr              string        `yaml:"addr" json:"addr" validate:"required"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" json:"heartbeat_interval" validate:"gt=0"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" validate:"gt=0"`
}

// Default returns the configuration used when no file or variable
// overrides a value.
func Default() *Config {
	return &Config{
		Railway: RailwayConfig{Environment: "production"},
		Git:     GitConfig{CloneTimeout: 2 * time.Minute},
		HTTP: HTTPConfig{
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Ledger: LedgerConfig{Path: DefaultLedgerPath()},
		Server: ServerConfig{
			Addr:              ":8080",
			HeartbeatInterval: 15 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}
