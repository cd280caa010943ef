package commands

import (
	"fmt"

	"bussola-backend/lib/siafe"

	"github.com/spf13/cobra"
)

var metaUrl *string

func init() {
	metaUrl = metaCmd.Flags().String("url", "", "Login page URL to probe instead of production.")
	rootCmd.AddCommand(metaCmd)
}

var metaCmd = &cobra.Command{
	Use:   "meta",
	Short: "Reports the portal version and build without signing in.",
	RunE: func(cmd *cobra.Command, args []string) error {
		meta, err := siafe.FetchMeta(cmd.Context(), *metaUrl)
		if err != nil {
			return fmt.Errorf("fetching portal metadata: %w", err)
		}
		fmt.Printf("version: %s\nbuild: %s\n", meta.Version, meta.Build)
		return nil
	},
}
