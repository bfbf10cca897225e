package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zpam/bayescore/pkg/config"
	"github.com/zpam/bayescore/pkg/store"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show term store health and training counts",
	Long:  `status opens the configured term store and reports its global good/spam message counts and term count.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	ts, err := cfg.OpenStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %v", err)
	}
	defer ts.Close()

	good, spam, err := ts.Globals()
	if err != nil {
		return fmt.Errorf("failed to read globals: %v", err)
	}

	var terms int64
	if err := ts.Export(func(store.Entry) error { terms++; return nil }); err != nil {
		return fmt.Errorf("failed to count terms: %v", err)
	}

	if statusJSON {
		fmt.Printf("{\"backend\":%q,\"good_messages\":%d,\"spam_messages\":%d,\"terms\":%d}\n",
			cfg.Store.Backend, good, spam, terms)
		return nil
	}

	fmt.Printf("store backend: %s\n", cfg.Store.Backend)
	fmt.Printf("good messages trained: %d\n", good)
	fmt.Printf("spam messages trained: %d\n", spam)
	fmt.Printf("distinct terms: %d\n", terms)

	switch {
	case good+spam == 0:
		fmt.Println("status: untrained — run 'bayescore train' before scoring")
	case good < 100 || spam < 100:
		fmt.Println("status: thin corpus — accuracy improves with more training data on both sides")
	default:
		fmt.Println("status: trained")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")
}
