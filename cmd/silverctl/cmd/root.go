// Package cmd implements the silverctl CLI commands.
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kta136/Silver-estimate-sub000/internal/version"
	"github.com/kta136/Silver-estimate-sub000/pkg/clierror"
	"github.com/kta136/Silver-estimate-sub000/pkg/estimate"
	"github.com/kta136/Silver-estimate-sub000/pkg/settings"
	"github.com/kta136/Silver-estimate-sub000/pkg/vault"
)

var (
	// Global flags
	dbPath       string
	settingsPath string
	dataDir      string
	outputFormat string
	passwordFile string

	// Shared settings store, loaded by PersistentPreRunE
	cfg *settings.File
)

var rootCmd = &cobra.Command{
	Use:   "silverctl",
	Short: "Maintenance CLI for the encrypted estimate datastore",
	Long: `silverctl manages the encrypted-at-rest estimate database.

All business data lives in a single AEAD-encrypted file; during a session it
is decrypted into a temporary SQLite working copy. silverctl can inspect the
store, change its password, recover an unflushed working copy left by a
crash, and export data.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "completion" || cmd.Name() == "help" {
			return nil
		}
		path := settingsPath
		if path == "" {
			path = settings.DefaultPath()
		}
		var err error
		cfg, err = settings.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open settings: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Encrypted database path (default: <data dir>/estimates.enc)")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Settings file path (default: XDG data dir)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for working copies (default: system temp)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table or json")
	rootCmd.PersistentFlags().StringVar(&passwordFile, "password-file", "", "File containing the database password")
}

// Execute runs the root command and exits with the structured error's exit
// code when one surfaces.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var cliErr *clierror.CLIError
		if !errors.As(err, &cliErr) {
			cliErr = clierror.FromVaultError(err)
		}
		fmt.Fprintln(os.Stderr, color.RedString(clierror.FormatError(cliErr, outputFormat)))
		os.Exit(cliErr.ExitCode)
	}
}

// encryptedPath resolves the encrypted database file location.
func encryptedPath() string {
	if dbPath != "" {
		return dbPath
	}
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "silverestimate", "estimates.enc")
}

// readPassword resolves the database password from --password-file, the
// SILVERCTL_PASSWORD environment variable, or the first line of stdin.
func readPassword() (string, error) {
	if passwordFile != "" {
		data, err := os.ReadFile(passwordFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if pw := os.Getenv("SILVERCTL_PASSWORD"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// openStore opens the vault, refusing when an unflushed working copy from a
// prior crash is newer than the encrypted file.
func openStore(ctx context.Context, password string) (*vault.StoreManager, vault.OpenStatus, error) {
	rec := vault.NewRecoveryManager(cfg, nil)
	if candidate, ok := rec.FindRecoveryCandidate(encryptedPath()); ok {
		return nil, 0, clierror.RecoveryPending(candidate)
	}
	mgr, err := vault.NewStoreManager(vault.Options{
		Settings: cfg,
		Schema:   estimate.Schema{},
		WorkDir:  dataDir,
	})
	if err != nil {
		return nil, 0, clierror.InternalError(err)
	}
	status, err := mgr.Open(ctx, encryptedPath(), password)
	if err != nil {
		return nil, 0, clierror.FromVaultError(err)
	}
	return mgr, status, nil
}
