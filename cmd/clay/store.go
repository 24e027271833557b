package main

import (
	"github.com/spf13/cobra"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect or garbage-collect the shared content store",
}

var storeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show content store size and deduplication statistics",
	RunE:  runStoreStats,
}

var storeGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove content store objects not referenced by this project's lock file",
	RunE:  runStoreGC,
}

func init() {
	storeCmd.AddCommand(storeStatsCmd)
	storeCmd.AddCommand(storeGCCmd)
}

func runStoreStats(cmd *cobra.Command, args []string) error {
	cs, err := newContentStore()
	if err != nil {
		return err
	}
	stats := cs.Stats()
	printf(cmd, "packages:        %d\n", stats.Packages)
	printf(cmd, "unique objects:  %d\n", stats.UniqueObjects)
	printf(cmd, "total bytes:     %d\n", stats.TotalBytes)
	printf(cmd, "duplicates:      %d\n", stats.DuplicateCount)
	printf(cmd, "space saved:     %d bytes\n", stats.SpaceSaved)

	report := cs.DedupeReport()
	for _, group := range report.Groups {
		printf(cmd, "shared object across: %v\n", group)
	}
	return nil
}

func runStoreGC(cmd *cobra.Command, args []string) error {
	cs, err := newContentStore()
	if err != nil {
		return err
	}
	lf, err := loadLockFile()
	if err != nil {
		return err
	}
	active := make(map[string]bool, len(lf.Packages))
	for name, entry := range lf.Packages {
		active[name+"@"+entry.Version] = true
	}
	if err := cs.GC(active); err != nil {
		return err
	}
	printf(cmd, "garbage collection complete\n")
	return nil
}
