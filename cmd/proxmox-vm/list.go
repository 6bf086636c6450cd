package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List VMs and templates",
	Long:  `List the VMs and templates on the Proxmox node with their IDs and status.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		log := newConsole()

		client, _, _, err := connect(ctx, log)
		if err != nil {
			return err
		}

		vms, err := client.VMs(ctx)
		if err != nil {
			return err
		}
		sort.Slice(vms, func(i, j int) bool { return vms[i].VMID < vms[j].VMID })

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS")
		for _, vm := range vms {
			fmt.Fprintf(w, "%d\t%s\t%s\n", vm.VMID, vm.Name, vm.Status)
		}
		return w.Flush()
	},
}
