package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/absfs/osfs"
	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/blobvault/blobvault"
)

var (
	configPath string
	verbose    bool
	pattern    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&pattern, "pattern", "p", "", "unlock pattern, e.g. 1-5-9-6-3-2")
}

func cliLogger() *zerolog.Logger {
	if !verbose {
		return nil
	}
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
	return &l
}

// deviceSalt reads the per-device salt, creating it on first use
func deviceSalt(dir string) ([]byte, error) {
	p := filepath.Join(dir, "device.salt")
	salt, err := os.ReadFile(p)
	if err == nil {
		if len(salt) != 32 {
			return nil, fmt.Errorf("corrupt device salt at %s", p)
		}
		return salt, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	salt = make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(p, salt, 0600); err != nil {
		return nil, err
	}
	return salt, nil
}

// parsePattern converts "1-5-9-6-3-2" into grid node indices
func parsePattern(s string) ([]int, error) {
	if s == "" {
		return nil, fmt.Errorf("no pattern given; use --pattern")
	}
	parts := strings.Split(s, "-")
	nodes := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("bad pattern node %q", p)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// unlockKey derives the vault key from the --pattern flag and the
// device salt
func unlockKey(cfg cliConfig) ([]byte, error) {
	nodes, err := parsePattern(pattern)
	if err != nil {
		return nil, err
	}
	salt, err := deviceSalt(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return blobvault.DeriveVaultKey(nodes, cfg.GridSize, salt)
}

// openStore opens the vault described by the config on the real
// filesystem
func openStore(cfg cliConfig) (*blobvault.Store, error) {
	fs, err := osfs.NewFS()
	if err != nil {
		return nil, err
	}
	cipher, err := parseCipher(cfg.Cipher)
	if err != nil {
		return nil, err
	}
	return blobvault.Open(&blobvault.Options{
		FS:            fs,
		Dir:           cfg.Dir,
		ContainerSize: cfg.ContainerSize,
		Cipher:        cipher,
		Logger:        cliLogger(),
	})
}

func startSpinner(message string) (*spinner.Spinner, func()) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	if err := s.Color("cyan"); err == nil && !verbose {
		s.Start()
	}
	return s, func() { s.Stop() }
}

// drainProgress updates the spinner suffix from the store's progress
// events until the channel closes
func drainProgress(s *spinner.Spinner, events <-chan blobvault.ProgressEvent) {
	for ev := range events {
		if ev.Total > 0 {
			s.Suffix = fmt.Sprintf(" %s %d%%", ev.Kind, ev.Done*100/ev.Total)
		}
	}
}

func fail(format string, args ...interface{}) error {
	return fmt.Errorf("%s %s", color.RedString("✗"), fmt.Sprintf(format, args...))
}

func okLine(format string, args ...interface{}) {
	fmt.Println(color.GreenString("✓") + " " + fmt.Sprintf(format, args...))
}

func hintLine(format string, args ...interface{}) {
	fmt.Println(color.CyanString("→") + " " + fmt.Sprintf(format, args...))
}
