package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zpam/bayescore/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  `Generate, validate and inspect bayescore configuration files`,
}

var configGenCmd = &cobra.Command{
	Use:   "generate [config-file]",
	Short: "Generate a configuration file",
	Long:  `Generate a configuration file seeded from a preset (default, graham, conservative, aggressive)`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := "config.yaml"
		if len(args) > 0 {
			configPath = args[0]
		}

		if _, err := os.Stat(configPath); err == nil {
			overwrite, _ := cmd.Flags().GetBool("force")
			if !overwrite {
				return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
			}
		}

		preset, _ := cmd.Flags().GetString("preset")
		cfg, err := config.Preset(preset)
		if err != nil {
			return err
		}

		if err := cfg.SaveConfig(configPath); err != nil {
			return fmt.Errorf("failed to save config: %v", err)
		}

		fmt.Printf("✅ Configuration file generated: %s (preset=%s)\n", configPath, preset)
		fmt.Printf("🚀 Use 'bayescore score --config %s <file>' to use it\n", configPath)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate a configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := args[0]

		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("❌ configuration validation failed: %v", err)
		}

		fmt.Printf("✅ Configuration is valid: %s\n", configPath)
		fmt.Printf("\n📊 Configuration Summary:\n")
		fmt.Printf("  Spam threshold: %.2f\n", cfg.Scorer.SpamThreshold)
		fmt.Printf("  Scoring mode: %s\n", cfg.Scorer.ScoringMode)
		fmt.Printf("  Store backend: %s\n", cfg.Store.Backend)
		fmt.Printf("  Whitelist emails: %d\n", len(cfg.Lists.WhitelistEmails))
		fmt.Printf("  Blacklist emails: %d\n", len(cfg.Lists.BlacklistEmails))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show [config-file]",
	Short: "Show the effective configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg *config.Config
		var err error

		if len(args) > 0 {
			cfg, err = config.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("failed to load config: %v", err)
			}
			fmt.Printf("Configuration: %s\n\n", args[0])
		} else {
			cfg = config.DefaultConfig()
			fmt.Printf("Default Configuration:\n\n")
		}

		fmt.Printf("🎯 Scoring:\n")
		fmt.Printf("  Mode: %s\n", cfg.Scorer.ScoringMode)
		fmt.Printf("  Threshold: %.2f\n", cfg.Scorer.SpamThreshold)
		fmt.Printf("  Terms for score: %d\n", cfg.Scorer.TermsForScore)
		fmt.Printf("  Max word repeats: %d\n", cfg.Scorer.MaxWordRepeats)

		fmt.Printf("\n🔤 Tokenizer:\n")
		fmt.Printf("  Header mode: %s\n", cfg.Tokenizer.HeaderMode)
		fmt.Printf("  Remove HTML: %v\n", cfg.Tokenizer.RemoveHTML)
		fmt.Printf("  Emit skip-grams: %v\n", cfg.Tokenizer.EmitSkipGrams)

		fmt.Printf("\n💾 Store:\n")
		fmt.Printf("  Backend: %s\n", cfg.Store.Backend)
		if cfg.Store.Backend == "redis" {
			fmt.Printf("  Redis URL: %s\n", cfg.Store.RedisURL)
		} else {
			fmt.Printf("  Bolt path: %s\n", cfg.Store.BoltPath)
		}

		fmt.Printf("\n📋 Lists:\n")
		fmt.Printf("  Trusted domains: %d\n", len(cfg.Lists.TrustedDomains))
		fmt.Printf("  Whitelist emails: %d\n", len(cfg.Lists.WhitelistEmails))
		fmt.Printf("  Blacklist emails: %d\n", len(cfg.Lists.BlacklistEmails))

		fmt.Printf("\n📨 Milter:\n")
		fmt.Printf("  Enabled: %v\n", cfg.Milter.Enabled)
		if cfg.Milter.Enabled {
			fmt.Printf("  Listen: %s %s\n", cfg.Milter.Network, cfg.Milter.Address)
			fmt.Printf("  Reject threshold: %.2f\n", cfg.Milter.RejectThreshold)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGenCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)

	configGenCmd.Flags().Bool("force", false, "Overwrite existing config file")
	configGenCmd.Flags().String("preset", "default", "Preset to seed from: default, graham, conservative, aggressive")
}
