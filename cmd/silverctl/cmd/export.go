package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kta136/Silver-estimate-sub000/pkg/estimate"
)

func init() {
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump all estimates as JSON",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		password, err := readPassword()
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

		store := estimate.NewStore(mgr.DB(), mgr.RequestFlush)
		headers, err := store.ListEstimates(ctx)
		if err != nil {
			return err
		}
		full := make([]*estimate.Estimate, 0, len(headers))
		for _, h := range headers {
			e, err := store.GetEstimate(ctx, h.VoucherNo)
			if err != nil {
				return err
			}
			full = append(full, e)
		}
		data, err := json.MarshalIndent(full, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode estimates: %w", err)
		}
		fmt.Println(string(data))
		return nil
	},
}
