package plugins

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newManagerWithCustomRules(t *testing.T) *DefaultPluginManager {
	t.Helper()
	rulesPath := filepath.Join(t.TempDir(), "custom_rules.yml")
	if err := os.WriteFile(rulesPath, []byte(rulesYAML), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	pm := NewPluginManager()
	cr := NewCustomRulesPlugin()
	if err := pm.RegisterPlugin(cr); err != nil {
		t.Fatalf("RegisterPlugin: %v", err)
	}

	configs := map[string]*PluginConfig{
		cr.Name(): {
			Enabled:  true,
			Weight:   1.0,
			Settings: map[string]any{"rules_file": rulesPath},
		},
	}
	if err := pm.LoadPlugins(configs); err != nil {
		t.Fatalf("LoadPlugins: %v", err)
	}
	return pm
}

func TestLoadPluginsSkipsDisabledConfigs(t *testing.T) {
	pm := NewPluginManager()
	cr := NewCustomRulesPlugin()
	if err := pm.RegisterPlugin(cr); err != nil {
		t.Fatalf("RegisterPlugin: %v", err)
	}

	configs := map[string]*PluginConfig{
		cr.Name(): {Enabled: false},
	}
	if err := pm.LoadPlugins(configs); err != nil {
		t.Fatalf("LoadPlugins: %v", err)
	}

	results, err := pm.ExecuteAll(context.Background(), mustParse(t, "From: a@example.com\r\nSubject: x\r\n\r\nbody\r\n"))
	if err != nil {
		t.Fatalf("ExecuteAll: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results with every plugin disabled, got %+v", results)
	}
}

func TestLoadPluginsUnknownNameErrors(t *testing.T) {
	pm := NewPluginManager()
	configs := map[string]*PluginConfig{
		"not_registered": {Enabled: true},
	}
	if err := pm.LoadPlugins(configs); err == nil {
		t.Errorf("expected an error for a config referencing an unregistered plugin")
	}
}

func TestExecuteAllRunsEnabledPlugins(t *testing.T) {
	pm := newManagerWithCustomRules(t)
	msg := mustParse(t, "From: promo@example.com\r\nSubject: buy viagra now\r\n\r\nbody\r\n")

	results, err := pm.ExecuteAll(context.Background(), msg)
	if err != nil {
		t.Fatalf("ExecuteAll: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 plugin result, got %d", len(results))
	}
	if results[0].Score != 5.0 {
		t.Errorf("Score = %v, want 5.0", results[0].Score)
	}
}

func TestCombineScoresWeightedSum(t *testing.T) {
	pm := newManagerWithCustomRules(t)
	msg := mustParse(t, "From: promo@example.com\r\nSubject: buy viagra now\r\n\r\nbody\r\n")

	results, err := pm.ExecuteAll(context.Background(), msg)
	if err != nil {
		t.Fatalf("ExecuteAll: %v", err)
	}

	combined, err := pm.CombineScores(results)
	if err != nil {
		t.Fatalf("CombineScores: %v", err)
	}
	if combined != 5.0 {
		t.Errorf("combined score = %v, want 5.0", combined)
	}
}

func TestCombineScoresMaxMethod(t *testing.T) {
	pm := newManagerWithCustomRules(t)
	pm.SetScoreAggregation(&ScoreAggregation{Method: "max"})

	results := []*PluginResult{
		{Name: "a", Score: 3},
		{Name: "b", Score: 7},
	}
	combined, err := pm.CombineScores(results)
	if err != nil {
		t.Fatalf("CombineScores: %v", err)
	}
	if combined != 7 {
		t.Errorf("combined score = %v, want 7", combined)
	}
}

func TestCombineScoresUnknownMethodErrors(t *testing.T) {
	pm := NewPluginManager()
	pm.SetScoreAggregation(&ScoreAggregation{Method: "bogus"})

	if _, err := pm.CombineScores(nil); err == nil {
		t.Errorf("expected an error for an unknown aggregation method")
	}
}
