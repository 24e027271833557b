package main

import (
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the per-user tarball cache",
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "List cached tarballs",
	RunE:  runCacheInfo,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached tarball",
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func runCacheInfo(cmd *cobra.Command, args []string) error {
	pc := newProjectCache()
	entries, err := pc.CacheInfo()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		printf(cmd, "cache is empty (%s)\n", pc.CacheDir())
		return nil
	}
	var total int64
	for _, e := range entries {
		printf(cmd, "%s@%s\t%d bytes\n", e.Name, e.Version, e.Bytes)
		total += e.Bytes
	}
	printf(cmd, "%d entries, %d bytes total\n", len(entries), total)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	pc := newProjectCache()
	if err := pc.CacheClear(); err != nil {
		return err
	}
	printf(cmd, "cache cleared\n")
	return nil
}
