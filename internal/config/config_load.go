package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/chatmover/internal/masking"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			SessionPath: "./session.txt",
		},
		Migration: MigrationConfig{
			BatchSize:            100,
			BatchDelayMs:         1000,
			MaxFloodWaitSeconds:  300,
			GroupNamePrefix:      "[Migrated] ",
			GroupCreationDelayMs: 60000,
			DailyGroupLimit:      50,
			ProgressPath:         "./progress.json",
		},
		RateLimit: RateLimitConfig{
			MinBatchDelayMs: 500,
			MaxBatchDelayMs: 30000,
		},
		Realtime: RealtimeConfig{
			MaxQueueSize: 1000,
		},
		Logging: LoggingConfig{
			Level:    "info",
			FilePath: "./migration.log",
		},
		Ledger: LedgerConfig{
			Path: "./ledger.db",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "http",
			ServiceName: "chatmover",
			SampleRatio: 1.0,
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: commands that need credentials call
// Validate afterwards.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("config.env_not_int", "key", key, "value", v)
			return
		}
		*dst = n
	}

	envInt("CHATMOVER_API_ID", &c.Account.APIID)
	envStr("CHATMOVER_API_HASH", &c.Account.APIHash)
	envStr("CHATMOVER_PHONE_A", &c.Account.PhoneA)
	envStr("CHATMOVER_TARGET_USER_B", &c.Account.TargetUserB)
	envStr("CHATMOVER_SESSION_PATH", &c.Account.SessionPath)

	envInt("CHATMOVER_BATCH_SIZE", &c.Migration.BatchSize)
	envInt("CHATMOVER_BATCH_DELAY_MS", &c.Migration.BatchDelayMs)
	envInt("CHATMOVER_MAX_FLOOD_WAIT_SECONDS", &c.Migration.MaxFloodWaitSeconds)
	envStr("CHATMOVER_GROUP_NAME_PREFIX", &c.Migration.GroupNamePrefix)
	envInt("CHATMOVER_GROUP_CREATION_DELAY_MS", &c.Migration.GroupCreationDelayMs)
	envInt("CHATMOVER_DAILY_GROUP_LIMIT", &c.Migration.DailyGroupLimit)
	envStr("CHATMOVER_PROGRESS_PATH", &c.Migration.ProgressPath)

	envStr("CHATMOVER_LOG_LEVEL", &c.Logging.Level)
	envStr("CHATMOVER_LOG_FILE", &c.Logging.FilePath)

	envStr("CHATMOVER_LEDGER_PATH", &c.Ledger.Path)
	if v := os.Getenv("CHATMOVER_LEDGER_ENABLED"); v != "" {
		c.Ledger.Enabled = v == "true" || v == "1"
	}

	envStr("CHATMOVER_STATUS_ADDR", &c.Status.Addr)

	envStr("CHATMOVER_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("CHATMOVER_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("CHATMOVER_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("CHATMOVER_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CHATMOVER_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

var (
	apiHashRe = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
	phoneRe   = regexp.MustCompile(`^\+\d{7,15}$`)
)

// Validate checks the fields every migration run requires. Commands that
// only read local files (status, export) skip it.
func (c *Config) Validate() error {
	if c.Account.APIID <= 0 {
		return fmt.Errorf("account.api_id must be a positive integer")
	}
	if !apiHashRe.MatchString(c.Account.APIHash) {
		return fmt.Errorf("account.api_hash must be 32 hex characters")
	}
	if !phoneRe.MatchString(c.Account.PhoneA) {
		return fmt.Errorf("account.phone_a must be + followed by 7-15 digits")
	}
	if c.Account.TargetUserB == "" {
		return fmt.Errorf("account.target_user_b is required")
	}
	if c.Migration.BatchSize <= 0 || c.Migration.BatchSize > 100 {
		return fmt.Errorf("migration.batch_size must be in 1..100")
	}
	return nil
}

// Save writes the config to a JSON file with owner-only permissions.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

const secretMask = "***"

// MaskedCopy returns a deep copy of the config safe for printing: the API
// hash is fully masked, the phone keeps only country code and last digits.
func (c *Config) MaskedCopy() *Config {
	// Deep copy via JSON round-trip
	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	maskNonEmpty(&cp.Account.APIHash)
	cp.Account.PhoneA = masking.Phone(cp.Account.PhoneA)

	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
