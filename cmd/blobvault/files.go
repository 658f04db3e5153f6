package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/blobvault/blobvault"
)

var getOutput string

func init() {
	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "output path (default: original filename)")
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(rekeyCmd)
}

var storeCmd = &cobra.Command{
	Use:   "store <file>",
	Short: "Encrypt a file into the vault",
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

		src, err := os.Open(args[0])
		if err != nil {
			return fail("cannot open %s: %v", args[0], err)
		}
		defer src.Close()
		info, err := src.Stat()
		if err != nil {
			return err
		}

		sp, stop := startSpinner("Encrypting...")
		defer stop()

		store, err := openStore(cfg)
		if err != nil {
			return fail("failed to open vault: %v", err)
		}
		go drainProgress(sp, store.Events())
		defer store.Close()

		name := filepath.Base(args[0])
		mimeType := mime.TypeByExtension(filepath.Ext(name))
		entry, err := store.StoreFileFrom(src, info.Size(), name, mimeType, key, nil)
		if err != nil {
			return fail("store failed: %v", err)
		}

		stop()
		okLine("Stored %s (%d bytes)", name, info.Size())
		hintLine("ID: %s", entry.ID)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Decrypt a file out of the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fail("bad file ID %q", args[0])
		}
		key, err := unlockKey(cfg)
		if err != nil {
			return err
		}

		sp, stop := startSpinner("Decrypting...")
		defer stop()

		store, err := openStore(cfg)
		if err != nil {
			return fail("failed to open vault: %v", err)
		}
		go drainProgress(sp, store.Events())
		defer store.Close()

		out := getOutput
		if out == "" {
			out = id.String()
		}
		dst, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
		if err != nil {
			return err
		}
		hdr, err := store.RetrieveFileTo(dst, id, key)
		if err != nil {
			dst.Close()
			os.Remove(out)
			return fail("retrieve failed: %v", err)
		}
		if err := dst.Close(); err != nil {
			return err
		}

		// Only rename to the stored filename when the user didn't pick one
		if getOutput == "" && hdr.Filename != "" {
			target := filepath.Base(hdr.Filename)
			if err := os.Rename(out, target); err == nil {
				out = target
			}
		}

		stop()
		okLine("Wrote %s (%d bytes)", out, hdr.OriginalSize)
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List files in the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		key, err := unlockKey(cfg)
		if err != nil {
			return err
		}

		store, err := openStore(cfg)
		if err != nil {
			return fail("failed to open vault: %v", err)
		}
		defer store.Close()

		files, err := store.ListFiles(key)
		if err != nil {
			return fail("list failed: %v", err)
		}
		if len(files) == 0 {
			fmt.Println("vault is empty")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTORED")
		for _, f := range files {
			stored := time.Unix(int64(f.CreatedAt), 0).Local().Format(time.DateTime)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.ID, f.Filename, f.MimeType, stored)
		}
		return w.Flush()
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a file, overwriting its region with random data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fail("bad file ID %q", args[0])
		}
		key, err := unlockKey(cfg)
		if err != nil {
			return err
		}

		store, err := openStore(cfg)
		if err != nil {
			return fail("failed to open vault: %v", err)
		}
		defer store.Close()

		if err := store.DeleteFile(id, key); err != nil {
			return fail("delete failed: %v", err)
		}
		okLine("Removed %s", id)
		return nil
	},
}

var rekeyNewPattern string

func init() {
	rekeyCmd.Flags().StringVar(&rekeyNewPattern, "new-pattern", "", "new unlock pattern")
	rekeyCmd.MarkFlagRequired("new-pattern")
}

var rekeyCmd = &cobra.Command{
	Use:   "rekey",
	Short: "Change the unlock pattern without re-encrypting any files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		oldKey, err := unlockKey(cfg)
		if err != nil {
			return err
		}

		nodes, err := parsePattern(rekeyNewPattern)
		if err != nil {
			return err
		}
		salt, err := deviceSalt(cfg.Dir)
		if err != nil {
			return err
		}
		newKey, err := blobvault.DeriveVaultKey(nodes, cfg.GridSize, salt)
		if err != nil {
			return err
		}

		store, err := openStore(cfg)
		if err != nil {
			return fail("failed to open vault: %v", err)
		}
		defer store.Close()

		if err := store.ChangeVaultKey(oldKey, newKey); err != nil {
			return fail("rekey failed: %v", err)
		}
		okLine("Unlock pattern changed")
		return nil
	},
}
