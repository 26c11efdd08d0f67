package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kta136/Silver-estimate-sub000/pkg/estimate"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Open the store and report its state",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		password, err := readPassword()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		mgr, openStatus, err := openStore(ctx, password)
		if err != nil {
			return err
		}
		// A failed close-time flush leaves the working copy on disk and must
		// fail the command.
		defer func() {
			if closeErr := mgr.Close(ctx); closeErr != nil && err == nil {
				err = closeErr
			}
		}()

		store := estimate.NewStore(mgr.DB(), mgr.RequestFlush)
		count, err := store.Count(ctx)
		if err != nil {
			return err
		}

		var size int64
		if fi, statErr := os.Stat(encryptedPath()); statErr == nil {
			size = fi.Size()
		}

		if outputFormat == "json" {
			out := map[string]any{
				"status":    openStatus.String(),
				"path":      encryptedPath(),
				"sizeBytes": size,
				"estimates": count,
			}
			data, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		color.Green("Store: %s", encryptedPath())
		fmt.Printf("Open:      %s\n", openStatus)
		fmt.Printf("Size:      %d bytes\n", size)
		fmt.Printf("Estimates: %d\n", count)
		return nil
	},
}
