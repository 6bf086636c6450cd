package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test the Proxmox API connection",
	Long:  `Log in to the Proxmox API and display version and node information.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		log := newConsole()

		client, _, _, err := connect(ctx, log)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Connected to %s\n", client.Host())

		version, err := client.Version(ctx)
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		fmt.Printf("✓ Proxmox VE version: %s\n", version)
		fmt.Printf("✓ Node: %s\n", client.Node())

		return nil
	},
}
