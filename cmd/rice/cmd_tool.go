package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rice/internal/executor"
	"rice/internal/permission"
	"rice/internal/registry"
)

var (
	toolParams    string
	toolPrincipal string
)

var toolCmd = &cobra.Command{
	Use:   "tool",
	Short: "Inspect the tool registry and invoke tools",
}

var toolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, cleanup, err := openRegistry()
		if err != nil {
			return err
		}
		defer cleanup()

		for _, d := range reg.List() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-10s %s\n", d.ID, d.Category, d.Description)
		}
		return nil
	},
}

var toolSearchCmd = &cobra.Command{
	Use:   "search <substring>",
	Short: "Search tools by name or description (case-insensitive)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, cleanup, err := openRegistry()
		if err != nil {
			return err
		}
		defer cleanup()

		for _, d := range reg.Search(args[0]) {
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", d.ID, d.Description)
		}
		return nil
	},
}

var toolCallCmd = &cobra.Command{
	Use:   "call <tool-id>",
	Short: "Invoke a tool through the executor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var params map[string]interface{}
		if toolParams != "" {
			if err := json.Unmarshal([]byte(toolParams), &params); err != nil {
				return exitf(exitInvalidInput, "parse --params: %v", err)
			}
		}

		reg, cleanup, err := openRegistry()
		if err != nil {
			return err
		}
		defer cleanup()

		gate := permission.New(bus)
		if err := permission.LoadPolicyFile(gate, filepath.Join(cfg.Home, "policy.yaml")); err != nil {
			return exitf(exitInvalidInput, "load policy: %v", err)
		}

		retry := executor.DefaultRetryPolicy()
		retry.InitialBackoff = cfg.Timeouts.RetryBackoffBase
		retry.MaxBackoff = cfg.Timeouts.RetryBackoffMax
		retry.MaxAttempts = cfg.Timeouts.MaxRetries
		opts := []executor.Option{
			executor.WithBus(bus),
			executor.WithCallTimeout(cfg.Timeouts.ToolCallTimeout),
			executor.WithParallelism(cfg.CoreLimits.MaxConcurrentTools),
			executor.WithRetryPolicy(retry),
		}
		stats, err := executor.NewStatsStore(filepath.Join(cfg.Home, "stats.db"))
		if err != nil {
			logger.Warn("stats store unavailable", zap.Error(err))
		} else {
			defer stats.Close()
			opts = append(opts, executor.WithStats(stats))
		}

		exec := executor.New(reg, gate, opts...)
		defer exec.Close()

		resp := exec.Execute(cmd.Context(), executor.ToolRequest{
			CorrelationID: uuid.NewString(),
			ToolID:        args[0],
			Parameters:    params,
			Principal:     toolPrincipal,
		})

		if resp.Failed() {
			switch resp.ErrorKind {
			case executor.ErrorPermissionDenied:
				return exitf(exitPermissionDenied, "tool %s: %s", args[0], resp.ErrorMessage)
			case executor.ErrorTransportFailure, executor.ErrorTimeout:
				return exitf(exitTransportFailure, "tool %s: %s: %s", args[0], resp.ErrorKind, resp.ErrorMessage)
			default:
				return exitf(exitInvalidInput, "tool %s: %s: %s", args[0], resp.ErrorKind, resp.ErrorMessage)
			}
		}

		logger.Debug("tool call finished", zap.String("tool", args[0]), zap.Duration("duration", resp.Duration))
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp.Result)
	},
}

// openRegistry loads tool descriptors from $RICE_HOME/tools and keeps
// watching the directory for the life of the command.
func openRegistry() (*registry.Registry, func(), error) {
	dir := filepath.Join(cfg.Home, "tools")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create tools directory: %w", err)
	}

	reg := registry.New()
	watcher, err := registry.WatchDir(reg, dir)
	if err != nil {
		return nil, nil, exitf(exitInvalidInput, "load tool descriptors: %v", err)
	}
	return reg, func() { _ = watcher.Close() }, nil
}

func init() {
	toolCallCmd.Flags().StringVar(&toolParams, "params", "", "tool parameters as a JSON object")
	toolCallCmd.Flags().StringVar(&toolPrincipal, "principal", "", "principal the call is made on behalf of")

	toolCmd.AddCommand(toolListCmd)
	toolCmd.AddCommand(toolSearchCmd)
	toolCmd.AddCommand(toolCallCmd)
}
