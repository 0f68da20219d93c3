package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Migration.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.Migration.BatchSize)
	}
	if cfg.Migration.GroupNamePrefix != "[Migrated] " {
		t.Errorf("GroupNamePrefix = %q", cfg.Migration.GroupNamePrefix)
	}
	if cfg.Migration.DailyGroupLimit != 50 {
		t.Errorf("DailyGroupLimit = %d, want 50", cfg.Migration.DailyGroupLimit)
	}
	if cfg.Realtime.MaxQueueSize != 1000 {
		t.Errorf("MaxQueueSize = %d, want 1000", cfg.Realtime.MaxQueueSize)
	}
}

func TestLoadJSON5OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		// comments are fine in json5
		account: { api_id: 12345, api_hash: "0123456789abcdef0123456789abcdef", phone_a: "+14155552671", target_user_b: "@bob" },
		migration: { batch_size: 50 },
	}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Account.APIID != 12345 {
		t.Errorf("APIID = %d, want 12345", cfg.Account.APIID)
	}
	if cfg.Migration.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", cfg.Migration.BatchSize)
	}
	// untouched fields keep defaults
	if cfg.Migration.BatchDelayMs != 1000 {
		t.Errorf("BatchDelayMs = %d, want 1000", cfg.Migration.BatchDelayMs)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHATMOVER_API_ID", "777")
	t.Setenv("CHATMOVER_BATCH_SIZE", "25")
	t.Setenv("CHATMOVER_DAILY_GROUP_LIMIT", "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Account.APIID != 777 {
		t.Errorf("APIID = %d, want 777", cfg.Account.APIID)
	}
	if cfg.Migration.BatchSize != 25 {
		t.Errorf("BatchSize = %d, want 25", cfg.Migration.BatchSize)
	}
	if cfg.Migration.DailyGroupLimit != 50 {
		t.Errorf("bad env int should be skipped, DailyGroupLimit = %d", cfg.Migration.DailyGroupLimit)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Account.APIID = 1
		cfg.Account.APIHash = "0123456789abcdef0123456789abcdef"
		cfg.Account.PhoneA = "+14155552671"
		cfg.Account.TargetUserB = "@bob"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero api id", func(c *Config) { c.Account.APIID = 0 }, true},
		{"short hash", func(c *Config) { c.Account.APIHash = "abcd" }, true},
		{"non hex hash", func(c *Config) { c.Account.APIHash = "zzzz456789abcdef0123456789abcdzz" }, true},
		{"phone missing plus", func(c *Config) { c.Account.PhoneA = "14155552671" }, true},
		{"empty target", func(c *Config) { c.Account.TargetUserB = "" }, true},
		{"batch size too large", func(c *Config) { c.Migration.BatchSize = 101 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMaskedCopy(t *testing.T) {
	cfg := Default()
	cfg.Account.APIHash = "0123456789abcdef0123456789abcdef"
	cfg.Account.PhoneA = "+14155552671"

	cp := cfg.MaskedCopy()
	if cp.Account.APIHash != "***" {
		t.Errorf("masked hash = %q, want ***", cp.Account.APIHash)
	}
	if cp.Account.PhoneA != "+1****2671" {
		t.Errorf("masked phone = %q, want +1****2671", cp.Account.PhoneA)
	}
	// original untouched
	if cfg.Account.APIHash == "***" {
		t.Error("MaskedCopy mutated the original")
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	if err := Save(path, Default()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}
