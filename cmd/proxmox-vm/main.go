package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/majes-git/proxmox/internal/console"
	"github.com/majes-git/proxmox/internal/credentials"
	"github.com/majes-git/proxmox/internal/proxmox"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	flagServer   string
	flagUsername string
	flagPassword string
	flagSSHPort  int
	flagInsecure bool
	flagDebug    bool
	flagNoCache  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "proxmox-vm",
	Short: "Create virtual machines and templates on Proxmox",
	Long: `proxmox-vm creates virtual machines and templates on a Proxmox VE node
from simple YAML option files.

Disk images can be taken from the node's filesystem or downloaded from a
URL, and thin-pool storage is picked automatically when requested.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagServer, "server", "s", "", "Proxmox server name/address")
	pf.StringVarP(&flagUsername, "username", "u", "root@pam", "username for connecting to proxmox")
	pf.StringVarP(&flagPassword, "password", "p", "", "password for connecting to proxmox")
	pf.IntVar(&flagSSHPort, "ssh-port", 22, "SSH port to be used to connect to the server")
	pf.BoolVar(&flagInsecure, "insecure", false, "skip TLS certificate validation")
	pf.BoolVar(&flagDebug, "debug", false, "show debug messages")
	pf.BoolVar(&flagNoCache, "no-password-cache", false, "do not cache proxmox passwords")
	cobra.CheckErr(rootCmd.MarkPersistentFlagRequired("server"))

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(testConnCmd)
}

// newConsole builds the per-invocation logger.
func newConsole() *console.Logger {
	log := console.Default()
	log.SetDebug(flagDebug)
	return log
}

// connect resolves the Proxmox password and logs in. It returns the
// authenticated client, the credential store shared with the image download
// path, and the password for host-level SSH access.
func connect(ctx context.Context, log *console.Logger) (*proxmox.Client, *credentials.FileStore, string, error) {
	store := credentials.NewFileStore(credentials.DefaultPath(), log)

	password := flagPassword
	if password == "" {
		if rec, ok := store.Lookup(flagServer); ok {
			password = rec.Password
		}
	}
	if password == "" {
		var err error
		password, err = log.PromptSecret(fmt.Sprintf("Proxmox password for %s", flagServer))
		if err != nil {
			return nil, nil, "", err
		}
		if !flagNoCache {
			if err := store.Store(flagServer, credentials.Record{Password: password}); err != nil {
				log.Warn("%v", err)
			} else {
				log.Info("Saving credentials to: %s", credentials.DefaultPath())
			}
		}
	}

	var opts []proxmox.Option
	if flagInsecure {
		opts = append(opts, proxmox.WithInsecure())
	}
	client := proxmox.NewClient(flagServer, opts...)

	if err := client.Connect(ctx, flagUsername, password); err != nil {
		var authErr *proxmox.AuthError
		if errors.As(err, &authErr) {
			_ = store.Invalidate(flagServer)
			return nil, nil, "", errors.New("Proxmox login credentials are not correct")
		}
		return nil, nil, "", err
	}
	return client, store, password, nil
}
