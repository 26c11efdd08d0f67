package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kta136/Silver-estimate-sub000/pkg/clierror"
	"github.com/kta136/Silver-estimate-sub000/pkg/vault"
)

var discardRecovery bool

func init() {
	rootCmd.AddCommand(recoverCmd)
	recoverCmd.Flags().BoolVar(&discardRecovery, "discard", false, "Delete the orphaned working copy instead of recovering it")
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Fold an unflushed working copy back into the encrypted file",
	Long: `Looks for a working copy left by a crashed session. If it is newer than
the encrypted file, re-encrypts it over the encrypted file; with --discard it
is deleted instead. Run this before any other command when a crash left data
unflushed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rec := vault.NewRecoveryManager(cfg, nil)
		candidate, ok := rec.FindRecoveryCandidate(encryptedPath())
		if !ok {
			fmt.Println("Nothing to recover.")
			return nil
		}
		if discardRecovery {
			if err := rec.Discard(candidate); err != nil {
				return clierror.FromVaultError(err)
			}
			color.Yellow("Discarded working copy %s", candidate)
			return nil
		}
		password, err := readPassword()
		if err != nil {
			return err
		}
		if err := rec.RecoverAndEncrypt(candidate, encryptedPath(), password); err != nil {
			return clierror.FromVaultError(err)
		}
		color.Green("Recovered %s into %s", candidate, encryptedPath())
		return nil
	},
}
