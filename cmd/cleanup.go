package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zpam/bayescore/pkg/config"
)

var (
	cleanupMaxCount   int64
	cleanupMaxAgeDays int
	cleanupPurge      bool
	cleanupVacuum     bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale or low-signal terms from the store",
	Long: `Cleanup removes records with good+spam counts at or below --max-count
AND last touched more than --max-age-days ago. With --purge, the age
check is skipped and any record with good+spam strictly below --max-count
is removed regardless of age. --vacuum compacts on-disk storage afterward.`,
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	ts, err := cfg.OpenStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %v", err)
	}
	defer ts.Close()

	var removed int64
	if cleanupPurge {
		removed, err = ts.Purge(cleanupMaxCount)
	} else {
		removed, err = ts.Cleanup(cleanupMaxCount, cleanupMaxAgeDays, time.Now().Unix())
	}
	if err != nil {
		return fmt.Errorf("cleanup failed: %v", err)
	}
	fmt.Printf("removed %d terms\n", removed)

	if cleanupVacuum {
		if err := ts.Vacuum(); err != nil {
			return fmt.Errorf("vacuum failed: %v", err)
		}
		fmt.Println("vacuumed store")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().Int64Var(&cleanupMaxCount, "max-count", 1, "Remove records with good+spam at or below this count (strictly below with --purge)")
	cleanupCmd.Flags().IntVar(&cleanupMaxAgeDays, "max-age-days", 180, "Only remove records untouched for this many days (ignored with --purge)")
	cleanupCmd.Flags().BoolVar(&cleanupPurge, "purge", false, "Ignore age, remove by count alone")
	cleanupCmd.Flags().BoolVar(&cleanupVacuum, "vacuum", false, "Compact on-disk storage after cleanup")
}
