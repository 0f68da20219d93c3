package config

import (
	"time"
)

// Config is the root configuration for chatmover. It is read once at
// startup and treated as immutable afterwards.
type Config struct {
	Account   AccountConfig   `json:"account"`
	Migration MigrationConfig `json:"migration"`
	RateLimit RateLimitConfig `json:"rate_limit,omitempty"`
	Realtime  RealtimeConfig  `json:"realtime,omitempty"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
	Ledger    LedgerConfig    `json:"ledger,omitempty"`
	Status    StatusConfig    `json:"status,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// AccountConfig identifies the source account (A) and the invited account (B).
type AccountConfig struct {
	APIID       int    `json:"api_id"`
	APIHash     string `json:"api_hash"`
	PhoneA      string `json:"phone_a"`
	TargetUserB string `json:"target_user_b"`
	SessionPath string `json:"session_path,omitempty"`
}

// MigrationConfig controls batching, destination groups and the progress file.
type MigrationConfig struct {
	BatchSize            int          `json:"batch_size,omitempty"`
	BatchDelayMs         int          `json:"batch_delay_ms,omitempty"`
	MaxFloodWaitSeconds  int          `json:"max_flood_wait_seconds,omitempty"`
	GroupNamePrefix      string       `json:"group_name_prefix,omitempty"`
	GroupCreationDelayMs int          `json:"group_creation_delay_ms,omitempty"`
	DailyGroupLimit      int          `json:"daily_group_limit,omitempty"`
	ProgressPath         string       `json:"progress_path,omitempty"`
	Filter               FilterConfig `json:"filter,omitempty"`
}

// FilterConfig selects which conversations migrate. Empty slices and nil
// bounds mean "no constraint".
type FilterConfig struct {
	IncludeChatIDs []int64  `json:"include_chat_ids,omitempty"`
	ExcludeChatIDs []int64  `json:"exclude_chat_ids,omitempty"`
	IncludeTypes   []string `json:"include_types,omitempty"`
	ExcludeTypes   []string `json:"exclude_types,omitempty"`
	MinMessages    *int     `json:"min_messages,omitempty"`
	MaxMessages    *int     `json:"max_messages,omitempty"`
}

// RateLimitConfig bounds the adaptive batch delay.
type RateLimitConfig struct {
	MinBatchDelayMs int `json:"min_batch_delay_ms,omitempty"`
	MaxBatchDelayMs int `json:"max_batch_delay_ms,omitempty"`
}

// RealtimeConfig controls the live-message tail queue.
type RealtimeConfig struct {
	MaxQueueSize int `json:"max_queue_size,omitempty"`
}

// LoggingConfig controls level and the secondary file sink.
type LoggingConfig struct {
	Level    string `json:"level,omitempty"`     // debug, info, warn, error
	FilePath string `json:"file_path,omitempty"` // empty disables the file sink
}

// LedgerConfig enables the optional SQLite forward-audit ledger.
type LedgerConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// StatusConfig configures the optional local status endpoint.
type StatusConfig struct {
	Addr string `json:"addr,omitempty"` // e.g. "127.0.0.1:18791"; empty disables
}

// TelemetryConfig configures OpenTelemetry export for migration spans.
type TelemetryConfig struct {
	Enabled     bool    `json:"enabled,omitempty"`
	Endpoint    string  `json:"endpoint,omitempty"` // OTLP endpoint, e.g. "localhost:4318"
	Protocol    string  `json:"protocol,omitempty"` // "http" (default) or "grpc"
	Insecure    bool    `json:"insecure,omitempty"`
	ServiceName string  `json:"service_name,omitempty"`
	SampleRatio float64 `json:"sample_ratio,omitempty"`
}

// BatchDelay returns the configured starting batch delay.
func (c *Config) BatchDelay() time.Duration {
	return time.Duration(c.Migration.BatchDelayMs) * time.Millisecond
}

// GroupCreationDelay returns the cooldown between group creations.
func (c *Config) GroupCreationDelay() time.Duration {
	return time.Duration(c.Migration.GroupCreationDelayMs) * time.Millisecond
}

// MinBatchDelay returns the adaptive controller floor.
func (c *Config) MinBatchDelay() time.Duration {
	return time.Duration(c.RateLimit.MinBatchDelayMs) * time.Millisecond
}

// MaxBatchDelay returns the adaptive controller ceiling.
func (c *Config) MaxBatchDelay() time.Duration {
	return time.Duration(c.RateLimit.MaxBatchDelayMs) * time.Millisecond
}
