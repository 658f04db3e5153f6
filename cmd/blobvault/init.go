package main

import (
	"github.com/spf13/cobra"

	"github.com/blobvault/blobvault"
)

var initSize int64

func init() {
	initCmd.Flags().Int64Var(&initSize, "size", 0, "container size in bytes (default 1 GiB)")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new vault, filling its container with random data",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if initSize > 0 {
			cfg.ContainerSize = initSize
		}

		nodes, err := parsePattern(pattern)
		if err != nil {
			return err
		}
		if len(nodes) < blobvault.MinPatternNodes {
			return fail("pattern needs at least %d nodes", blobvault.MinPatternNodes)
		}

		sp, stop := startSpinner("Filling container with random data...")
		defer stop()

		store, err := openStore(cfg)
		if err != nil {
			return fail("failed to open vault: %v", err)
		}
		go drainProgress(sp, store.Events())
		defer store.Close()

		key, err := unlockKey(cfg)
		if err != nil {
			return err
		}

		// Touch the index so the unlock pattern is bound to a MasterKey
		// from the start.
		idx, err := store.LoadIndex(key)
		if err != nil {
			return fail("failed to initialize index: %v", err)
		}
		if err := store.SaveIndex(idx, key); err != nil {
			return fail("failed to save index: %v", err)
		}

		if err := saveConfig(configPath, cfg); err != nil {
			return fail("failed to write config: %v", err)
		}

		stop()
		okLine("Vault created at %s (%d bytes)", cfg.Dir, cfg.ContainerSize)
		hintLine("Run 'blobvault store <file>' to add your first file")
		return nil
	},
}
