package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var newPasswordFile string

func init() {
	rootCmd.AddCommand(rekeyCmd)
	rekeyCmd.Flags().StringVar(&newPasswordFile, "new-password-file", "", "File containing the new password")
}

var rekeyCmd = &cobra.Command{
	Use:   "rekey",
	Short: "Change the database password",
	Long: `Re-encrypts the store under a key derived from a new password.

The salt is unchanged. If re-encryption fails, the store stays decryptable
with the old password.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		password, err := readPassword()
		if err != nil {
			return err
		}
		newPassword, err := readNewPassword()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		mgr, _, err := openStore(ctx, password)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := mgr.Close(ctx); closeErr != nil && err == nil {
				err = closeErr
			}
		}()

		if err := mgr.ReKey(ctx, newPassword); err != nil {
			return err
		}
		color.Green("Password changed.")
		return nil
	},
}

func readNewPassword() (string, error) {
	if newPasswordFile == "" {
		return "", fmt.Errorf("--new-password-file is required")
	}
	saved := passwordFile
	passwordFile = newPasswordFile
	defer func() { passwordFile = saved }()
	return readPassword()
}
