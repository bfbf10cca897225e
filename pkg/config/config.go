// Package config is the flat YAML configuration surface: tokenizer/store/
// scorer records plus the ambient sections (lists, performance, logging,
// headers, milter, plugins), presets, and validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/zpam/bayescore/pkg/scorer"
	"github.com/zpam/bayescore/pkg/store"
	"github.com/zpam/bayescore/pkg/tokenizer"
)

// ErrConfigInvalid is returned by Validate and LoadConfig when a setting is
// out of range or a required field is missing.
var ErrConfigInvalid = errors.New("config: invalid")

// Config is the full configuration surface.
type Config struct {
	Tokenizer   TokenizerConfig   `yaml:"tokenizer"`
	Store       StoreConfig       `yaml:"store"`
	Scorer      ScorerConfig      `yaml:"scorer"`
	Lists       ListsConfig       `yaml:"lists"`
	Performance PerformanceConfig `yaml:"performance"`
	Logging     LoggingConfig     `yaml:"logging"`
	Headers     HeadersConfig     `yaml:"headers"`
	Tracker     TrackerConfig     `yaml:"tracker"`
	Milter      MilterConfig      `yaml:"milter"`
	Plugins     PluginsConfig     `yaml:"plugins"`
}

// TokenizerConfig mirrors tokenizer.Config field-for-field so the YAML
// surface and the package API stay in lockstep.
type TokenizerConfig struct {
	MaxPhraseTerms  int      `yaml:"max_phrase_terms"`
	MinPhraseTerms  int      `yaml:"min_phrase_terms"`
	MinTermLength   int      `yaml:"min_term_length"`
	MaxTermLength   int      `yaml:"max_term_length"`
	RemoveHTML      bool     `yaml:"remove_html"`
	IgnoreBody      bool     `yaml:"ignore_body"`
	ReplaceNonASCII string   `yaml:"replace_non_ascii"` // single character
	ProcessHeaders  bool     `yaml:"process_headers"`
	HeaderMode      string   `yaml:"header_mode"` // normal, plain, all
	CustomHeaders   []string `yaml:"custom_headers"`
	EmitSkipGrams   bool     `yaml:"emit_skip_grams"`
	SkipGramWindow  int      `yaml:"skip_gram_window"`
}

// ToTokenizerConfig converts the YAML record into tokenizer.Config.
func (c TokenizerConfig) ToTokenizerConfig() tokenizer.Config {
	replace := byte('z')
	if len(c.ReplaceNonASCII) > 0 {
		replace = c.ReplaceNonASCII[0]
	}
	mode := tokenizer.HeaderMode(c.HeaderMode)
	if mode == "" {
		mode = tokenizer.HeaderModeNormal
	}
	return tokenizer.Config{
		MaxPhraseTerms:   c.MaxPhraseTerms,
		MinPhraseTerms:   c.MinPhraseTerms,
		MinTermLength:    c.MinTermLength,
		MaxTermLength:    c.MaxTermLength,
		RemoveHTML:       c.RemoveHTML,
		IgnoreBody:       c.IgnoreBody,
		ReplaceNonASCII:  replace,
		ProcessHeaders:   c.ProcessHeaders,
		HeaderMode:       mode,
		CustomHeaders:    c.CustomHeaders,
		EmitSkipGrams:    c.EmitSkipGrams,
		SkipGramWindow:   c.SkipGramWindow,
	}
}

// StoreConfig selects and configures the TermStore backend.
type StoreConfig struct {
	// Backend selection: "bolt" or "redis".
	Backend string `yaml:"backend"`

	// Bolt backend settings
	BoltPath  string `yaml:"bolt_path"`
	CacheSize int    `yaml:"cache_size"`

	// Redis backend settings
	RedisURL  string `yaml:"redis_url"`
	KeyPrefix string `yaml:"key_prefix"`

	// Maintenance
	CleanupMaxCount   int `yaml:"cleanup_max_count"`
	CleanupMaxAgeDays int `yaml:"cleanup_max_age_days"`
}

// ScorerConfig mirrors scorer.Config field-for-field.
type ScorerConfig struct {
	SpamThreshold       float64 `yaml:"spam_threshold"`
	MinWordCount        int64   `yaml:"min_word_count"`
	NewWordScore        float64 `yaml:"new_word_score"`
	TermsForScore       int     `yaml:"terms_for_score"`
	MaxWordRepeats      int     `yaml:"max_word_repeats"`
	ExtendTopTerms      bool    `yaml:"extend_top_terms"`
	MinDistanceForScore float64 `yaml:"min_distance_for_score"`
	ScoringMode         string  `yaml:"scoring_mode"` // normal, graham, robinson
}

// ToScorerConfig converts the YAML record into scorer.Config.
func (c ScorerConfig) ToScorerConfig() scorer.Config {
	mode := scorer.ScoringMode(c.ScoringMode)
	if mode == "" {
		mode = scorer.ModeNormal
	}
	return scorer.Config{
		SpamThreshold:       c.SpamThreshold,
		MinWordCount:        c.MinWordCount,
		NewWordScore:        c.NewWordScore,
		TermsForScore:       c.TermsForScore,
		MaxWordRepeats:      c.MaxWordRepeats,
		ExtendTopTerms:      c.ExtendTopTerms,
		MinDistanceForScore: c.MinDistanceForScore,
		ScoringMode:         mode,
	}
}

// ListsConfig contains whitelist/blacklist settings.
type ListsConfig struct {
	WhitelistEmails  []string `yaml:"whitelist_emails"`
	BlacklistEmails  []string `yaml:"blacklist_emails"`
	WhitelistDomains []string `yaml:"whitelist_domains"`
	BlacklistDomains []string `yaml:"blacklist_domains"`
	TrustedDomains   []string `yaml:"trusted_domains"`
}

// PerformanceConfig contains performance tuning.
type PerformanceConfig struct {
	MaxConcurrentEmails int `yaml:"max_concurrent_emails"`
	TimeoutMs           int `yaml:"timeout_ms"`
	BatchSize           int `yaml:"batch_size"`
}

// LoggingConfig contains logging settings. No structured logging library
// is wired in, so this drives plain log/fmt.Fprintf output.
type LoggingConfig struct {
	Level      string `yaml:"level"` // debug, info, warn, error
	File       string `yaml:"file"`
	Format     string `yaml:"format"` // json, text
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// HeadersConfig contains the header/SPF/DKIM/DMARC anomaly signal's
// settings.
type HeadersConfig struct {
	EnableSPF             bool    `yaml:"enable_spf"`
	EnableDKIM            bool    `yaml:"enable_dkim"`
	EnableDMARC           bool    `yaml:"enable_dmarc"`
	DNSTimeoutMs          int     `yaml:"dns_timeout_ms"`
	MaxHopCount           int     `yaml:"max_hop_count"`
	SuspiciousServerScore int     `yaml:"suspicious_server_score"`
	AuthWeight            float64 `yaml:"auth_weight"`
	SuspiciousWeight      float64 `yaml:"suspicious_weight"`
	CacheSize             int     `yaml:"cache_size"`
	CacheTTLMin           int     `yaml:"cache_ttl_min"`
}

// MilterConfig contains milter server settings.
type MilterConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Network        string `yaml:"network"`
	Address        string `yaml:"address"`
	ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms"`

	MaxConcurrentConnections int `yaml:"max_concurrent_connections"`
	GracefulShutdownTimeout  int `yaml:"graceful_shutdown_timeout_ms"`

	RejectThreshold  float64 `yaml:"reject_threshold"`
	AddSpamHeaders   bool    `yaml:"add_spam_headers"`
	SpamHeaderPrefix string  `yaml:"spam_header_prefix"`
}

// TrackerConfig contains sender frequency tracking settings. Advisory
// only: never folded into the core probability.
type TrackerConfig struct {
	Enabled       bool `yaml:"enabled"`
	WindowMinutes int  `yaml:"window_minutes"`
	MaxCacheSize  int  `yaml:"max_cache_size"`
}

// PluginsConfig contains plugin system settings.
type PluginsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Timeout       int    `yaml:"timeout_ms"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	ScoreMethod   string `yaml:"score_method"` // weighted, max, average, consensus

	CustomRules PluginConfig `yaml:"custom_rules"`
}

// PluginConfig contains one plugin's settings.
type PluginConfig struct {
	Enabled  bool                   `yaml:"enabled"`
	Weight   float64                `yaml:"weight"`
	Priority int                    `yaml:"priority"`
	Timeout  int                    `yaml:"timeout_ms"`
	Settings map[string]interface{} `yaml:"settings"`
}

// DefaultConfig returns the defaults, equivalent to the
// "normal" behavior a bare config.Config{} would not quite give you
// (zero-value Go bools/ints don't match the intended non-zero defaults).
func DefaultConfig() *Config {
	return &Config{
		Tokenizer: TokenizerConfig{
			MaxPhraseTerms:  2,
			MinPhraseTerms:  1,
			MinTermLength:   3,
			MaxTermLength:   40,
			RemoveHTML:      true,
			IgnoreBody:      false,
			ReplaceNonASCII: "z",
			ProcessHeaders:  true,
			HeaderMode:      "normal",
			CustomHeaders:   []string{},
			EmitSkipGrams:   false,
			SkipGramWindow:  3,
		},
		Store: StoreConfig{
			Backend:           "bolt",
			BoltPath:          "bayescore.db",
			CacheSize:         1000,
			RedisURL:          "redis://localhost:6379",
			KeyPrefix:         "bayescore",
			CleanupMaxCount:   1,
			CleanupMaxAgeDays: 180,
		},
		Scorer: ScorerConfig{
			SpamThreshold:       0.9,
			MinWordCount:        5,
			NewWordScore:        0.4,
			TermsForScore:       15,
			MaxWordRepeats:      2,
			ExtendTopTerms:      false,
			MinDistanceForScore: 0.1,
			ScoringMode:         "normal",
		},
		Lists: ListsConfig{
			WhitelistEmails:  []string{},
			BlacklistEmails:  []string{},
			WhitelistDomains: []string{},
			BlacklistDomains: []string{},
			TrustedDomains:   []string{},
		},
		Performance: PerformanceConfig{
			MaxConcurrentEmails: 10,
			TimeoutMs:           5000,
			BatchSize:           100,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Headers: HeadersConfig{
			EnableSPF:             true,
			EnableDKIM:            true,
			EnableDMARC:           true,
			DNSTimeoutMs:          5000,
			MaxHopCount:           15,
			SuspiciousServerScore: 75,
			AuthWeight:            2.0,
			SuspiciousWeight:      2.5,
			CacheSize:             1000,
			CacheTTLMin:           60,
		},
		Tracker: TrackerConfig{
			Enabled:       true,
			WindowMinutes: 60,
			MaxCacheSize:  10000,
		},
		Milter: MilterConfig{
			Enabled:                  false,
			Network:                  "tcp",
			Address:                  "127.0.0.1:7357",
			ReadTimeoutMs:            10000,
			WriteTimeoutMs:           10000,
			MaxConcurrentConnections: 10,
			GracefulShutdownTimeout:  10000,
			RejectThreshold:          0.9,
			AddSpamHeaders:           true,
			SpamHeaderPrefix:         "X-Bayescore-",
		},
		Plugins: PluginsConfig{
			Enabled:       false,
			Timeout:       5000,
			MaxConcurrent: 3,
			ScoreMethod:   "weighted",
			CustomRules: PluginConfig{
				Enabled:  false,
				Weight:   1.5,
				Priority: 1,
				Timeout:  1000,
				Settings: map[string]interface{}{
					"rules": []interface{}{},
				},
			},
		},
	}
}

// Preset returns DefaultConfig with the named preset's overrides applied.
// Unknown names return ErrConfigInvalid.
func Preset(name string) (*Config, error) {
	cfg := DefaultConfig()
	switch name {
	case "", "default":
		return cfg, nil
	case "graham":
		// Graham's original scheme: chain combination, no Fisher
		// normalization; the spam threshold stays at the 0.9 default.
		cfg.Scorer.ScoringMode = "graham"
		cfg.Scorer.SpamThreshold = 0.9
		cfg.Scorer.TermsForScore = 15
	case "conservative":
		// Fewer false positives: higher threshold, more corroborating
		// terms required, wider discard band around 0.5.
		cfg.Scorer.ScoringMode = "robinson"
		cfg.Scorer.SpamThreshold = 0.95
		cfg.Scorer.TermsForScore = 25
		cfg.Scorer.MinDistanceForScore = 0.2
		cfg.Scorer.MinWordCount = 10
	case "aggressive":
		// Fewer false negatives: lower threshold, fewer terms needed,
		// narrower discard band.
		cfg.Scorer.ScoringMode = "robinson"
		cfg.Scorer.SpamThreshold = 0.75
		cfg.Scorer.TermsForScore = 10
		cfg.Scorer.MinDistanceForScore = 0.05
		cfg.Scorer.MinWordCount = 3
	default:
		return nil, fmt.Errorf("%w: unknown preset %q", ErrConfigInvalid, name)
	}
	return cfg, nil
}

// LoadConfig loads configuration from file, starting from DefaultConfig
// and overlaying whatever the YAML file specifies. An empty path returns
// the defaults. Unknown fields are rejected.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	if configPath == "" {
		return cfg, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: config file not found: %s", ErrConfigInvalid, configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config file: %v", ErrConfigInvalid, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes c as YAML to configPath, creating parent directories
// as needed.
func (c *Config) SaveConfig(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %v", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %v", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %v", err)
	}
	return nil
}

// Validate checks range/required-field constraints across every section.
func (c *Config) Validate() error {
	if c.Scorer.SpamThreshold <= 0 || c.Scorer.SpamThreshold > 1 {
		return fmt.Errorf("%w: scorer.spam_threshold must be in (0, 1]", ErrConfigInvalid)
	}
	if c.Scorer.TermsForScore < 1 {
		return fmt.Errorf("%w: scorer.terms_for_score must be >= 1", ErrConfigInvalid)
	}
	if c.Scorer.MaxWordRepeats < 1 {
		return fmt.Errorf("%w: scorer.max_word_repeats must be >= 1", ErrConfigInvalid)
	}
	switch c.Scorer.ScoringMode {
	case "normal", "graham", "robinson":
	default:
		return fmt.Errorf("%w: scorer.scoring_mode must be normal, graham, or robinson", ErrConfigInvalid)
	}

	if c.Tokenizer.MaxPhraseTerms < 1 || c.Tokenizer.MaxPhraseTerms > 5 {
		return fmt.Errorf("%w: tokenizer.max_phrase_terms must be in [1, 5]", ErrConfigInvalid)
	}
	if c.Tokenizer.MinPhraseTerms < 1 || c.Tokenizer.MinPhraseTerms > c.Tokenizer.MaxPhraseTerms {
		return fmt.Errorf("%w: tokenizer.min_phrase_terms must be in [1, max_phrase_terms]", ErrConfigInvalid)
	}
	switch tokenizer.HeaderMode(c.Tokenizer.HeaderMode) {
	case tokenizer.HeaderModeNormal, tokenizer.HeaderModePlain, tokenizer.HeaderModeAll:
	default:
		return fmt.Errorf("%w: tokenizer.header_mode must be normal, plain, or all", ErrConfigInvalid)
	}

	switch c.Store.Backend {
	case "bolt":
		if c.Store.BoltPath == "" {
			return fmt.Errorf("%w: store.bolt_path cannot be empty when backend=bolt", ErrConfigInvalid)
		}
	case "redis":
		if c.Store.RedisURL == "" {
			return fmt.Errorf("%w: store.redis_url cannot be empty when backend=redis", ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: store.backend must be bolt or redis", ErrConfigInvalid)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	validLevel := false
	for _, level := range validLevels {
		if c.Logging.Level == level {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("%w: invalid logging level: %s", ErrConfigInvalid, c.Logging.Level)
	}

	if c.Milter.Enabled {
		if c.Milter.Network != "tcp" && c.Milter.Network != "unix" {
			return fmt.Errorf("%w: milter.network must be tcp or unix", ErrConfigInvalid)
		}
		if c.Milter.Address == "" {
			return fmt.Errorf("%w: milter.address cannot be empty when enabled", ErrConfigInvalid)
		}
		if c.Milter.RejectThreshold <= 0 || c.Milter.RejectThreshold > 1 {
			return fmt.Errorf("%w: milter.reject_threshold must be in (0, 1]", ErrConfigInvalid)
		}
	}

	return nil
}

// OpenStore opens the TermStore backend selected by c.Store.Backend.
func (c *Config) OpenStore() (store.TermStore, error) {
	switch c.Store.Backend {
	case "redis":
		return store.OpenRedis(c.Store.RedisURL, c.Store.KeyPrefix)
	default:
		return store.Open(c.Store.BoltPath, c.Store.CacheSize)
	}
}

// IsWhitelisted checks if email/domain is whitelisted.
func (c *Config) IsWhitelisted(email, domain string) bool {
	for _, e := range c.Lists.WhitelistEmails {
		if email == e {
			return true
		}
	}
	for _, d := range c.Lists.WhitelistDomains {
		if domain == d {
			return true
		}
	}
	return false
}

// IsBlacklisted checks if email/domain is blacklisted.
func (c *Config) IsBlacklisted(email, domain string) bool {
	for _, e := range c.Lists.BlacklistEmails {
		if email == e {
			return true
		}
	}
	for _, d := range c.Lists.BlacklistDomains {
		if domain == d {
			return true
		}
	}
	return false
}

// IsTrustedDomain checks if domain is trusted.
func (c *Config) IsTrustedDomain(domain string) bool {
	for _, d := range c.Lists.TrustedDomains {
		if domain == d {
			return true
		}
	}
	return false
}
