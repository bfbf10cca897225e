package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zpam/bayescore/pkg/config"
	"github.com/zpam/bayescore/pkg/store"
)

var exportOutFile string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the term store to CSV",
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	ts, err := cfg.OpenStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %v", err)
	}
	defer ts.Close()

	out := os.Stdout
	if exportOutFile != "" {
		f, err := os.Create(exportOutFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	if err := store.WriteCSV(ts, out); err != nil {
		return fmt.Errorf("export failed: %v", err)
	}
	return nil
}

var importCmd = &cobra.Command{
	Use:   "import <csv-file>",
	Short: "Import term counts from a CSV file",
	Long:  `Import replaces-or-adds records with the exact counts given in the CSV. Malformed lines are skipped and counted.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %v", args[0], err)
	}
	defer f.Close()

	entries, skipped, err := store.ReadCSV(f)
	if err != nil {
		return fmt.Errorf("failed to read CSV: %v", err)
	}

	ts, err := cfg.OpenStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %v", err)
	}
	defer ts.Close()

	applied, err := ts.Import(entries, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("import failed: %v", err)
	}

	fmt.Printf("imported %d records, skipped %d malformed lines\n", applied, skipped)
	return nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)

	exportCmd.Flags().StringVarP(&exportOutFile, "output", "o", "", "Write CSV to this file instead of stdout")
}
