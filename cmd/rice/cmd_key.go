package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"rice/internal/digest"
)

var keyForce bool

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the session store's AEAD key",
}

var keyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a fresh 32-byte key at RICE_KEY",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfg.KeyPath); err == nil && !keyForce {
			return exitf(exitInvalidInput, "key file %s already exists (use --force to overwrite; existing sessions become unreadable)", cfg.KeyPath)
		}

		key := make([]byte, digest.KeySize)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(cfg.KeyPath), 0700); err != nil {
			return fmt.Errorf("create key directory: %w", err)
		}
		if err := os.WriteFile(cfg.KeyPath, key, 0600); err != nil {
			return fmt.Errorf("write key file: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", cfg.KeyPath)
		return nil
	},
}

func init() {
	keyInitCmd.Flags().BoolVar(&keyForce, "force", false, "overwrite an existing key file")
	keyCmd.AddCommand(keyInitCmd)
}
