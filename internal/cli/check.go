package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mailcrawl/internal/crawler"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the mail store is reachable with the configured credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			conn := crawler.New(crawler.WithLogger(logger))
			if err := conn.Connect(cfg.Endpoint); err != nil {
				return err
			}
			defer conn.Disconnect()

			fmt.Fprintln(cmd.OutOrStdout(), conn.Check(cmd.Context()))
			return nil
		},
	}
	return cmd
}
