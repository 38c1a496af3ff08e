// Package config holds the small set of knobs that shape one DoBackup run:
// how fast to throttle, how often to poll, how loudly to log, and the
// optional cross-process lock and hook commands. It deliberately does not
// carry retention/archive/compression policy: this engine performs one
// point-in-time copy per call, it does not manage a retained history of
// past backups.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"
)

// Config is the JSON-serializable configuration for a backup run.
type Config struct {
	ThrottleBytesPerSec int64  `json:"throttleBytesPerSec" comment:"Copier throughput cap, in bytes/sec. 0 or negative means unthrottled."`
	PollInterval        string `json:"pollInterval" comment:"Poll interval, e.g. \"1s\", parsed by PollDuration. The copier polls on a fixed one-second interval and does not read this value."`
	LogLevel            string `json:"logLevel" comment:"One of: info, warn, error. Not applied: plog logs info and above unless quiet mode is on."`
	ProcessLockPath     string `json:"processLockPath,omitempty" comment:"If set, an advisory lock file guarding DoBackup against a second engine process."`
	PreBackupHook       string `json:"preBackupHook,omitempty" comment:"Shell command run before DoBackup acquires the single-run mutex. A nonzero exit aborts the run."`
	PostBackupHook      string `json:"postBackupHook,omitempty" comment:"Shell command run after the session is torn down. Its result is logged only."`
	HookTimeout         string `json:"hookTimeout" comment:"Timeout applied to both hooks, e.g. \"30s\"."`
}

// NewDefault returns a Config with sane defaults: unthrottled, 1s polling,
// info logging, no hooks, no process lock.
func NewDefault() Config {
	return Config{
		ThrottleBytesPerSec: math.MaxInt64,
		PollInterval:        "1s",
		LogLevel:            "info",
		HookTimeout:         "30s",
	}
}

// Load reads a Config from a JSON file at path. A missing file is not an
// error: NewDefault is returned instead, matching a fresh installation with
// no configuration file yet.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return Config{}, fmt.Errorf("config: cannot read %s: %w", path, err)
	}
	cfg := NewDefault()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: cannot parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as indented JSON to path.
func Save(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// PollDuration parses PollInterval, defaulting to 1s on a parse failure.
func (c Config) PollDuration() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// HookTimeoutDuration parses HookTimeout, defaulting to 30s on a parse
// failure.
func (c Config) HookTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.HookTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Throttle returns the configured throttle, treating non-positive values as
// unthrottled.
func (c Config) Throttle() int64 {
	if c.ThrottleBytesPerSec <= 0 {
		return math.MaxInt64
	}
	return c.ThrottleBytesPerSec
}
