// Package config loads process configuration from environment
// variables, with an optional TOML file overlay for values operators
// would rather not place in the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds every tunable for the payout process.
type Config struct {
	DBDir   string `toml:"db_dir"`
	DBFile  string `toml:"db_file"`

	WorkSourceDB  string `toml:"work_source_db"`
	BlockSourceDB string `toml:"block_source_db"`

	BirthTime float64 `toml:"birth_time"`

	PayoutThresholdMsat   int64 `toml:"payout_threshold_msat"`
	PayoutMaximumMsat     int64 `toml:"payout_maximum_msat"`
	PayoutGranularityMsat int64 `toml:"payout_granularity_msat"`
	PayoutPeriodSecs      int64 `toml:"payout_period_secs"`

	UserMethodSettingOverride string `toml:"user_method_setting_override"`
	DefaultPaymentMethod      string `toml:"default_payment_method"`

	NostrNsecFilePassword string `toml:"-"` // secret: env only, never in a TOML file on disk
	NostrSecretFile       string `toml:"nostr_secret_file"`
	NostrRelays           string `toml:"nostr_relays"` // comma-separated relay URLs

	LnNodeHomeDir string `toml:"ln_node_home_dir"`
	LnNodeUser    string `toml:"ln_node_user"`

	// EnableTestSubstitution (PAYCALC_ENABLE_TEST_SUBSTITUTION, off by
	// default) and DUMMY_SUBSTITUTE_LNADDR_FROM/TO are parsed here only:
	// no code reads these fields, so no primary id is substituted.
	EnableTestSubstitution     bool   `toml:"-"`
	SubstituteLnAddrFrom       string `toml:"-"`
	SubstituteLnAddrTo         string `toml:"-"`

	MetricsAddr string `toml:"metrics_addr"`
}

// Default returns the baseline configuration defaults.
func Default() Config {
	return Config{
		DBDir:                 ".",
		DBFile:                "paycalc.db",
		BirthTime:             0,
		PayoutThresholdMsat:   5000,
		PayoutMaximumMsat:     20_000_000,
		PayoutGranularityMsat: 1000,
		PayoutPeriodSecs:      86400,
		WorkSourceDB:          "work_source.db",
		BlockSourceDB:         "block_source.db",
		NostrSecretFile:       "secret.nsec",
		NostrRelays:           "wss://relay.damus.io,wss://nos.lol",
		LnNodeHomeDir:         os.Getenv("HOME"),
		LnNodeUser:            "bitcoin",
		MetricsAddr:           "",
	}
}

// LoadFromFile reads a TOML overlay, applying it on top of Default().
func LoadFromFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg. Environment
// variables win over TOML-file values.
func (cfg *Config) ApplyEnv() error {
	if v := os.Getenv("DB_DIR"); v != "" {
		cfg.DBDir = v
	}
	if v := os.Getenv("WORK_SOURCE_DB"); v != "" {
		cfg.WorkSourceDB = v
	}
	if v := os.Getenv("BLOCK_SOURCE_DB"); v != "" {
		cfg.BlockSourceDB = v
	}
	if v, ok := envFloat("PAYCALC_BIRTH_TIME"); ok {
		cfg.BirthTime = v
	}
	if v, ok := envInt("PAYOUT_THRESHOLD_MSAT"); ok {
		cfg.PayoutThresholdMsat = v
	}
	if v, ok := envInt("PAYOUT_MAXIMUM_MSAT"); ok {
		cfg.PayoutMaximumMsat = v
	}
	if v, ok := envInt("PAYOUT_GRANULARITY_MSAT"); ok {
		cfg.PayoutGranularityMsat = v
	}
	if v, ok := envInt("PAYOUT_PERIOD_SECS"); ok {
		cfg.PayoutPeriodSecs = v
	}
	if v := os.Getenv("USER_METHOD_SETTING_OVERRIDE"); v != "" {
		cfg.UserMethodSettingOverride = v
	}
	if v := os.Getenv("DEFAULT_PAYMENT_METHOD"); v != "" {
		cfg.DefaultPaymentMethod = v
	}
	if v := os.Getenv("NOSTR_NSEC_FILE_PASSWORD"); v != "" {
		cfg.NostrNsecFilePassword = v
	}
	if v := os.Getenv("NOSTR_SECRET_FILE"); v != "" {
		cfg.NostrSecretFile = v
	}
	if v := os.Getenv("NOSTR_RELAYS"); v != "" {
		cfg.NostrRelays = v
	}
	if v := os.Getenv("LN_NODE_HOME_DIR"); v != "" {
		cfg.LnNodeHomeDir = v
	}
	if v := os.Getenv("LN_NODE_USER"); v != "" {
		cfg.LnNodeUser = v
	}
	if v, ok := os.LookupEnv("PAYCALC_ENABLE_TEST_SUBSTITUTION"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse PAYCALC_ENABLE_TEST_SUBSTITUTION: %w", err)
		}
		cfg.EnableTestSubstitution = b
	}
	if v := os.Getenv("DUMMY_SUBSTITUTE_LNADDR_FROM"); v != "" {
		cfg.SubstituteLnAddrFrom = v
	}
	if v := os.Getenv("DUMMY_SUBSTITUTE_LNADDR_TO"); v != "" {
		cfg.SubstituteLnAddrTo = v
	}
	if v := os.Getenv("PAYCALC_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	return nil
}

// DBPath is the full path to the local SQLite database file.
func (cfg *Config) DBPath() string {
	return filepath.Join(cfg.DBDir, cfg.DBFile)
}

// WorkSourceDBPath is the full path to the upstream work-source database.
func (cfg *Config) WorkSourceDBPath() string {
	return filepath.Join(cfg.DBDir, cfg.WorkSourceDB)
}

// BlockSourceDBPath is the full path to the upstream block-source database.
func (cfg *Config) BlockSourceDBPath() string {
	return filepath.Join(cfg.DBDir, cfg.BlockSourceDB)
}

// RelayList splits NostrRelays on commas, trimming whitespace and
// dropping empty entries.
func (cfg *Config) RelayList() []string {
	var out []string
	for _, r := range strings.Split(cfg.NostrRelays, ",") {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

func envInt(name string) (int64, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(name string) (float64, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
