package main

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/blobvault/blobvault"
)

var (
	relayAddr string
	relayDB   string
)

func init() {
	relayServeCmd.Flags().StringVar(&relayAddr, "addr", ":8420", "listen address")
	relayServeCmd.Flags().StringVar(&relayDB, "db", "relay.db", "path to the relay's bolt database")
	relaySrvCmd.AddCommand(relayServeCmd)
	rootCmd.AddCommand(relaySrvCmd)
}

var relaySrvCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run a relay server",
}

var relayServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the share relay protocol over HTTP",
	Long: `Runs a self-hosted relay backed by a single bolt database file.
The relay stores only encrypted chunks addressed by share fingerprints;
it never sees phrases, keys, or plaintext.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := blobvault.OpenBoltRelay(relayDB)
		if err != nil {
			return fail("failed to open %s: %v", relayDB, err)
		}
		defer backend.Close()

		log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()

		srv := &http.Server{
			Addr:              relayAddr,
			Handler:           blobvault.NewRelayServer(backend, log),
			ReadHeaderTimeout: 10 * time.Second,
		}

		okLine("Relay listening on %s (db: %s)", relayAddr, relayDB)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fail("relay stopped: %v", err)
		}
		return nil
	},
}
