package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"rice/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the analysis cache",
}

func openCache() *cache.Cache {
	return cache.New(cfg.CoreLimits.MaxCacheEntries,
		cache.WithTTL(cfg.Timeouts.CacheEntryTTL),
		cache.WithDiskPersistence(filepath.Join(cfg.Home, "cache")),
	)
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache configuration and entry count",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats := openCache().Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "ttl:         %s\n", stats.TTL)
		fmt.Fprintf(cmd.OutOrStdout(), "max entries: %d\n", stats.MaxEntries)
		fmt.Fprintf(cmd.OutOrStdout(), "entries:     %d\n", stats.Entries)
		return nil
	},
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the cached entry for a digest key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, err := openCache().Get(args[0])
		if err != nil {
			return exitf(exitInvalidInput, "cache: %v", err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <key>",
	Short: "Remove a cache entry unconditionally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if openCache().Invalidate(args[0]) {
			fmt.Fprintln(cmd.OutOrStdout(), "invalidated")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "not present")
		}
		return nil
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Sweep all expired entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		n := openCache().CleanupExpired()
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired entries\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheGetCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)
}
