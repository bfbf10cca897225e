package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zpam/bayescore/pkg/config"
	"github.com/zpam/bayescore/pkg/message"
	"github.com/zpam/bayescore/pkg/plugins"
)

var (
	pluginsLuaScript string
	pluginsDir       string
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Run additive plugins (custom rules, Lua) against a message",
	Long: `plugins executes the configured downstream plugins against one
message and reports their results. Plugin scores are additive signals
for operators; they never feed back into the core term-store probability.`,
}

var pluginsTestCmd = &cobra.Command{
	Use:   "test <message-file>",
	Short: "Run all configured plugins against a message",
	Args:  cobra.ExactArgs(1),
	RunE:  runPluginsTest,
}

func loadPluginManager(cfg *config.Config) (*plugins.DefaultPluginManager, error) {
	pm := plugins.NewPluginManager()

	if cfg.Plugins.CustomRules.Enabled {
		if err := pm.RegisterPlugin(plugins.NewCustomRulesPlugin()); err != nil {
			return nil, fmt.Errorf("failed to register custom_rules plugin: %v", err)
		}
	}

	configs := map[string]*plugins.PluginConfig{
		"custom_rules": toPluginConfig(cfg.Plugins.CustomRules),
	}

	if pluginsLuaScript != "" {
		lp, err := plugins.NewLuaPlugin(pluginsLuaScript)
		if err != nil {
			return nil, fmt.Errorf("failed to load Lua plugin %s: %v", pluginsLuaScript, err)
		}
		if err := pm.RegisterPlugin(lp); err != nil {
			return nil, fmt.Errorf("failed to register Lua plugin: %v", err)
		}
		configs[lp.Name()] = &plugins.PluginConfig{Enabled: true, Weight: 1.0}
	}

	if pluginsDir != "" {
		discovered := plugins.NewDefaultRegistry()
		loader := plugins.NewPluginLoader(discovered)
		loader.SetPluginsDirectory(pluginsDir)
		if err := loader.LoadFromDirectory(); err != nil {
			return nil, fmt.Errorf("failed to scan plugins directory %s: %v", pluginsDir, err)
		}
		for _, p := range discovered.List() {
			if err := pm.RegisterPlugin(p); err != nil {
				return nil, fmt.Errorf("failed to register discovered plugin %s: %v", p.Name(), err)
			}
			configs[p.Name()] = &plugins.PluginConfig{Enabled: true, Weight: 1.0}
		}
	}

	if err := pm.LoadPlugins(configs); err != nil {
		return nil, fmt.Errorf("failed to load plugins: %v", err)
	}
	return pm, nil
}

func toPluginConfig(c config.PluginConfig) *plugins.PluginConfig {
	return &plugins.PluginConfig{
		Enabled:  c.Enabled,
		Weight:   c.Weight,
		Priority: c.Priority,
		Settings: c.Settings,
	}
}

func runPluginsTest(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open message: %v", err)
	}
	defer f.Close()

	msg, err := message.Parse(f)
	if err != nil {
		return fmt.Errorf("failed to parse message: %v", err)
	}

	pm, err := loadPluginManager(cfg)
	if err != nil {
		return err
	}
	defer pm.Shutdown(context.Background())

	results, err := pm.ExecuteAll(context.Background(), msg)
	if err != nil {
		return fmt.Errorf("plugin execution failed: %v", err)
	}

	if len(results) == 0 {
		fmt.Println("no plugins enabled")
		return nil
	}

	for _, r := range results {
		if r.Error != nil {
			fmt.Printf("%-16s error: %v\n", r.Name, r.Error)
			continue
		}
		fmt.Printf("%-16s score=%.2f confidence=%.2f rules=%v\n", r.Name, r.Score, r.Confidence, r.Rules)
	}

	combined, err := pm.CombineScores(results)
	if err != nil {
		return fmt.Errorf("failed to combine scores: %v", err)
	}
	fmt.Printf("combined additive score: %.2f\n", combined)
	return nil
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
	pluginsCmd.AddCommand(pluginsTestCmd)
	pluginsCmd.PersistentFlags().StringVar(&pluginsLuaScript, "lua-script", "", "Path to an additional Lua plugin script to run")
	pluginsCmd.PersistentFlags().StringVar(&pluginsDir, "plugins-dir", "", "Directory to scan for Lua plugins (each in its own subdir with a zpam-plugin.yaml manifest and main.lua)")
}
