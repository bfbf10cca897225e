package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig should validate cleanly: %v", err)
	}
}

func TestValidateRejectsOutOfRangeSpamThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scorer.SpamThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected an error for spam_threshold > 1")
	}
}

func TestValidateRejectsUnknownScoringMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scorer.ScoringMode = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected an error for an unknown scoring mode")
	}
}

func TestValidateRejectsMissingBoltPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Backend = "bolt"
	cfg.Store.BoltPath = ""
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected an error for an empty bolt_path with backend=bolt")
	}
}

func TestValidateRejectsMilterEnabledWithoutAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Milter.Enabled = true
	cfg.Milter.Address = ""
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected an error for milter.enabled with an empty address")
	}
}

func TestLoadConfigEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig(\"\"): %v", err)
	}
	if cfg.Scorer.SpamThreshold != DefaultConfig().Scorer.SpamThreshold {
		t.Errorf("expected defaults when no config path is given")
	}
}

func TestLoadConfigMissingFileErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Errorf("expected an error for a missing config file")
	}
}

func TestSaveAndLoadConfigRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scorer.SpamThreshold = 0.75
	cfg.Store.BoltPath = "custom.db"

	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	if err := cfg.SaveConfig(path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Scorer.SpamThreshold != 0.75 {
		t.Errorf("SpamThreshold = %v, want 0.75", loaded.Scorer.SpamThreshold)
	}
	if loaded.Store.BoltPath != "custom.db" {
		t.Errorf("BoltPath = %q, want custom.db", loaded.Store.BoltPath)
	}
}

func TestPresetUnknownNameErrors(t *testing.T) {
	if _, err := Preset("does-not-exist"); err == nil {
		t.Errorf("expected an error for an unknown preset name")
	}
}

func TestListsLookups(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lists.WhitelistEmails = []string{"friend@example.com"}
	cfg.Lists.BlacklistDomains = []string{"spam.example.com"}
	cfg.Lists.TrustedDomains = []string{"trusted.example.com"}

	if !cfg.IsWhitelisted("friend@example.com", "") {
		t.Errorf("expected friend@example.com to be whitelisted")
	}
	if !cfg.IsBlacklisted("", "spam.example.com") {
		t.Errorf("expected spam.example.com to be blacklisted")
	}
	if !cfg.IsTrustedDomain("trusted.example.com") {
		t.Errorf("expected trusted.example.com to be trusted")
	}
	if cfg.IsWhitelisted("stranger@example.com", "") {
		t.Errorf("expected stranger@example.com to not be whitelisted")
	}
}
