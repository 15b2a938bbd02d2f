// Package main implements the rice CLI - the driver process for the rice
// core runtime.
//
// Command implementations are split across cmd_*.go files:
//   - main.go         - entry point, rootCmd, global flags, exit codes
//   - cmd_schedule.go - scheduleCmd: task batch -> execution plan
//   - cmd_tool.go     - toolCmd: registry listing/search and tool calls
//   - cmd_cache.go    - cacheCmd: analysis cache inspection/maintenance
//   - cmd_session.go  - sessionCmd: encrypted session administration
//   - cmd_key.go      - keyCmd: AEAD key generation
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"rice/internal/config"
	"rice/internal/digest"
	"rice/internal/eventbus"
	"rice/internal/logging"
)

// Exit codes surfaced to callers of the driver process.
const (
	exitOK               = 0
	exitInvalidInput     = 1
	exitCycle            = 2
	exitPermissionDenied = 3
	exitTransportFailure = 4
	exitAuthFailure      = 5
)

var (
	cfgPath string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
	bus    *eventbus.Bus
)

// exitError carries a process exit code alongside the underlying error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitf(code int, format string, args ...interface{}) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

var rootCmd = &cobra.Command{
	Use:   "rice",
	Short: "rice - AI coding workbench core runtime driver",
	Long: `rice drives the core runtime: schedules task batches into
parallelizable phases, dispatches tool calls over stdio/HTTP/SSE
transports, inspects the content-addressed analysis cache, and
administers encrypted conversation sessions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return exitf(exitInvalidInput, "load config: %v", err)
		}
		if err := cfg.Validate(); err != nil {
			return exitf(exitInvalidInput, "invalid config: %v", err)
		}
		config.SetTimeouts(cfg.Timeouts)
		if err := cfg.InitLogging(); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}

		zapCfg := zap.NewProductionConfig()
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}

		bus = eventbus.New()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAudit()
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config YAML (default: built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug console output")

	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(toolCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(keyCmd)
}

// loadCodec reads the 32-byte AEAD key at RICE_KEY and builds the codec
// used by the session store.
func loadCodec() (*digest.Codec, error) {
	key, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, exitf(exitAuthFailure, "read key file %s: %v (run 'rice key init')", cfg.KeyPath, err)
	}
	codec, err := digest.NewCodec(key)
	if err != nil {
		return nil, exitf(exitAuthFailure, "invalid key file %s: %v", cfg.KeyPath, err)
	}
	return codec, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitInvalidInput)
	}
	os.Exit(exitOK)
}
