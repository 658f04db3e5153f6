package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blobvault/blobvault"
)

var (
	shareExpiry   time.Duration
	shareMaxOpens int
)

func init() {
	shareCreateCmd.Flags().DurationVar(&shareExpiry, "expires", 24*time.Hour, "how long the share stays claimable")
	shareCreateCmd.Flags().IntVar(&shareMaxOpens, "max-opens", 0, "maximum opens on the recipient side (0 = unlimited)")

	shareCmd.AddCommand(shareCreateCmd)
	shareCmd.AddCommand(shareResumeCmd)
	shareCmd.AddCommand(shareRevokeCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(claimCmd)
}

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Share vault contents through a relay",
}

func relayClient(cfg cliConfig) (blobvault.Relay, error) {
	if cfg.RelayURL == "" {
		return nil, fail("no relay_url configured; set it in config.toml")
	}
	return blobvault.NewHTTPRelay(cfg.RelayURL), nil
}

var shareCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a one-time share of the vault's files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		key, err := unlockKey(cfg)
		if err != nil {
			return err
		}
		relay, err := relayClient(cfg)
		if err != nil {
			return err
		}

		sp, stop := startSpinner("Preparing share...")
		defer stop()

		store, err := openStore(cfg)
		if err != nil {
			return fail("failed to open vault: %v", err)
		}
		go drainProgress(sp, store.Events())
		defer store.Close()

		policy := blobvault.SharePolicy{
			MaxOpens:       shareMaxOpens,
			AllowDownloads: true,
		}
		if shareExpiry > 0 {
			policy.ExpiresAt = time.Now().UTC().Add(shareExpiry)
		}

		share, err := store.InitiateShare(cmd.Context(), key, relay, policy, "")
		if err != nil {
			return fail("share failed: %v", err)
		}

		sp.Suffix = " Uploading..."
		if err := share.Upload(cmd.Context()); err != nil {
			stop()
			hintLine("Upload interrupted; resume with 'blobvault share resume %s'", share.ShareID)
			return fail("upload failed: %v", err)
		}

		stop()
		okLine("Share uploaded")
		fmt.Println()
		fmt.Println("  Share phrase: " + color.YellowString(share.Phrase))
		fmt.Println()
		hintLine("The phrase works exactly once. Send it over a separate channel.")
		return nil
	},
}

var shareResumeCmd = &cobra.Command{
	Use:   "resume <share-id>",
	Short: "Resume an interrupted share upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		key, err := unlockKey(cfg)
		if err != nil {
			return err
		}
		relay, err := relayClient(cfg)
		if err != nil {
			return err
		}

		sp, stop := startSpinner("Resuming upload...")
		defer stop()

		store, err := openStore(cfg)
		if err != nil {
			return fail("failed to open vault: %v", err)
		}
		go drainProgress(sp, store.Events())
		defer store.Close()

		share, err := store.ResumeShare(cmd.Context(), key, relay, args[0])
		if err != nil {
			return fail("resume failed: %v", err)
		}
		if err := share.Upload(cmd.Context()); err != nil {
			return fail("upload failed: %v", err)
		}

		stop()
		okLine("Share uploaded")
		return nil
	},
}

var shareRevokeCmd = &cobra.Command{
	Use:   "revoke <share-id>",
	Short: "Delete a share from the relay",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		key, err := unlockKey(cfg)
		if err != nil {
			return err
		}
		relay, err := relayClient(cfg)
		if err != nil {
			return err
		}

		store, err := openStore(cfg)
		if err != nil {
			return fail("failed to open vault: %v", err)
		}
		defer store.Close()

		if err := store.RevokeShare(cmd.Context(), key, relay, args[0]); err != nil {
			return fail("revoke failed: %v", err)
		}
		okLine("Share revoked")
		return nil
	},
}

var claimCmd = &cobra.Command{
	Use:   "claim <phrase>",
	Short: "Claim a shared vault into this device's vault",
	Long: `Claims a share with its one-time phrase. The downloaded files are
imported into this device's vault under your own unlock pattern; the
phrase itself never becomes a vault key.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		key, err := unlockKey(cfg)
		if err != nil {
			return err
		}
		relay, err := relayClient(cfg)
		if err != nil {
			return err
		}

		phrase := ""
		for i, w := range args {
			if i > 0 {
				phrase += " "
			}
			phrase += w
		}

		sp, stop := startSpinner("Claiming share...")
		defer stop()

		store, err := openStore(cfg)
		if err != nil {
			return fail("failed to open vault: %v", err)
		}
		go drainProgress(sp, store.Events())
		defer store.Close()

		result, err := store.ImportShare(cmd.Context(), relay, phrase, key)
		if err != nil {
			return fail("claim failed: %v", err)
		}

		stop()
		okLine("Imported %d files", len(result.Imported))
		for _, id := range result.Imported {
			hintLine("%s", id)
		}
		return nil
	},
}
