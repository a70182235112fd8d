package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/trinitydeploy/trinity/pkg/engine"
)

// Default file names looked up in the working directory.
const (
	DefaultFile    = "trinity.yaml"
	DefaultEnvFile = ".env"
)

// Environment variables read by Load. They override the file.
const (
	EnvNeonAPIKey      = "NEON_API_KEY"
	EnvNeonRegionID    = "NEON_REGION_ID"
	EnvRailwayToken    = "RAILWAY_TOKEN"
	EnvRailwayEnv      = "RAILWAY_ENVIRONMENT"
	EnvVercelToken     = "VERCEL_TOKEN"
	EnvVercelTeamID    = "VERCEL_TEAM_ID"
	EnvGitToken        = "GITHUB_TOKEN"
	EnvLedgerPath      = "TRINITY_LEDGER_PATH"
	EnvPolicyPaths     = "TRINITY_POLICY_PATHS"
	EnvServerAddr      = "TRINITY_ADDR"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFormat       = "LOG_FORMAT"
	EnvOTLPEndpoint    = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvTelemetryEnvKey = "TRINITY_ENV"
)

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// Path is an explicit configuration file; it must exist. When empty,
	// trinity.yaml in the working directory is used if present.
	Path string

	// EnvFile is a dotenv file; a missing file is ignored. Defaults to .env.
	EnvFile string

	// LookupEnv reads the process environment. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load builds the configuration from defaults, the YAML file, the dotenv
// file and the environment, in increasing order of precedence.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	path, required := opts.Path, true
	if path == "" {
		path, required = DefaultFile, false
	}
	if err := loadFile(cfg, path, required); err != nil {
		return nil, err
	}

	lookup, err := newLookup(opts)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg, lookup)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	schema, err := NewSchema()
	if err != nil {
		return err
	}
	if err := schema.ValidateYAML(path, data); err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return nil
}

// newLookup layers the dotenv file under the process environment.
func newLookup(opts LoadOptions) (func(string) (string, bool), error) {
	process := opts.LookupEnv
	if process == nil {
		process = os.LookupEnv
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}

	dotenv, err := godotenv.Read(envFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
		dotenv = map[string]string{}
	}

	return func(key string) (string, bool) {
		if v, ok := process(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	set(&cfg.Neon.APIKey, EnvNeonAPIKey)
	set(&cfg.Neon.RegionID, EnvNeonRegionID)
	set(&cfg.Railway.Token, EnvRailwayToken)
	set(&cfg.Railway.Environment, EnvRailwayEnv)
	set(&cfg.Vercel.Token, EnvVercelToken)
	set(&cfg.Vercel.TeamID, EnvVercelTeamID)
	set(&cfg.Git.Token, EnvGitToken)
	set(&cfg.Server.Addr, EnvServerAddr)
	set(&cfg.Telemetry.Logging.Level, EnvLogLevel)
	set(&cfg.Telemetry.Logging.Format, EnvLogFormat)
	set(&cfg.Telemetry.Environment, EnvTelemetryEnvKey)

	// An explicitly empty ledger path disables the ledger.
	if v, ok := lookup(EnvLedgerPath); ok {
		cfg.Ledger.Path = strings.TrimSpace(v)
	}

	if v, ok := lookup(EnvPolicyPaths); ok && v != "" {
		cfg.Policy.Paths = filepath.SplitList(v)
	}

	if v, ok := lookup(EnvOTLPEndpoint); ok && v != "" {
		cfg.Telemetry.Tracing.Enabled = true
		cfg.Telemetry.Tracing.Exporter = "otlp"
		cfg.Telemetry.Tracing.Endpoint = v
	}
}

var validate = validator.New()

// Validate checks field constraints after every source has been applied.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return engine.NewConfigurationError("invalid configuration", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return engine.NewConfigurationError("invalid telemetry configuration", err)
	}
	return nil
}

// DefaultLedgerPath returns ~/.trinity/ledger.db, or a relative path when
// the home directory is unknown.
func DefaultLedgerPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".trinity", "ledger.db")
	}
	return filepath.Join(home, ".trinity", "ledger.db")
}
