package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/p-blackswan/perfreview/internal/locator"
)

func newLocateCmd() *cobra.Command {
	var host string
	cmd := &cobra.Command{
		Use:   "locate <url>",
		Short: "Print the identity parsed from a contribution URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := locator.NewParser(host).Parse(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(loc); err != nil {
				return fmt.Errorf("encoding location: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", locator.DefaultHost, "Web host contribution URLs live on")
	return cmd
}
