package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "blobvault",
	Short: "blobvault - a personal encrypted file vault",
	Long: `blobvault keeps your files inside a single pre-allocated container
that is indistinguishable from random data. Files are encrypted with
authenticated encryption and unlocked with a pattern drawn on a grid.

Usage:
  blobvault <command> [flags]

Available Commands:
  init       Create a new vault
  store      Encrypt a file into the vault
  get        Decrypt a file out of the vault
  ls         List files in the vault
  rm         Remove a file from the vault
  rekey      Change the vault's unlock pattern
  share      Share vault contents through a relay
  claim      Claim a shared vault with a phrase
  relay      Run a relay server

Run 'blobvault help <command>' for details on a specific command.
`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Run 'blobvault --help' to see available commands.")
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
