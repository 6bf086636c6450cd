package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/majes-git/proxmox/internal/identity"
	"github.com/majes-git/proxmox/internal/image"
	"github.com/majes-git/proxmox/internal/options"
	"github.com/majes-git/proxmox/internal/provision"
	"github.com/majes-git/proxmox/internal/sshexec"
	"github.com/majes-git/proxmox/internal/storage"
)

var (
	flagConfig    string
	flagImage     string
	flagTemplate  bool
	flagAutostart bool
	flagPreset    string
	flagBaseID    int
	flagID        int
	flagReplace   bool
	flagNoCleanup bool
	flagAssumeYes bool
)

var createCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a VM or template",
	Long: `Create a virtual machine or template on the Proxmox server.

VM options are merged from built-in defaults, an optional defaults overlay
file, an optional preset and the config file, in that order. When the name
is omitted it is derived from the config file's basename.

A disk slot value of "` + options.AutoThinPool + `:<GiB>" picks the first
thin-pool storage with enough free space.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		return runCreate(context.Background(), name)
	},
}

func init() {
	f := createCmd.Flags()
	f.StringVarP(&flagConfig, "config", "c", "", "config file for VM settings")
	f.StringVarP(&flagImage, "image", "i", "", "location (url or file) to the VM disk image")
	f.BoolVarP(&flagTemplate, "template", "t", false, "convert VM into template")
	f.BoolVar(&flagAutostart, "autostart", false, "automatically start VMs after deployment")
	f.StringVar(&flagPreset, "preset", "", `preset for VM options (e.g. "debian")`)
	f.IntVar(&flagBaseID, "base-id", 0, "base ID for virtual machine (template)")
	f.IntVar(&flagID, "id", 0, "VM ID to be used")
	f.BoolVar(&flagReplace, "replace", false, "replace the VM if it exists")
	f.BoolVar(&flagNoCleanup, "no-cleanup", false, "do not remove downloaded image")
	f.BoolVarP(&flagAssumeYes, "assumeyes", "y", false, `answer "yes" for all questions`)
}

func runCreate(ctx context.Context, name string) error {
	log := newConsole()

	if name == "" && flagConfig == "" {
		return errors.New("a VM name or a config file is required")
	}

	client, store, password, err := connect(ctx, log)
	if err != nil {
		return err
	}

	opts, configID, imageRef, err := options.Build(flagPreset, flagConfig, log)
	if err != nil {
		return err
	}
	if flagConfig == "" {
		log.Warn("No config file specified. Using defaults only:")
		log.DumpYAML(opts.Document(), false)
	} else {
		log.DumpYAML(opts.Document(), true)
	}

	if !opts.HasBootDisk() {
		return errors.New("your config has no disk specified")
	}

	thin, err := client.ThinStorages(ctx)
	if err != nil {
		return err
	}
	if err := storage.ResolvePlaceholders(opts, storage.NewCatalog(thin), log); err != nil {
		return err
	}

	if opts.SSHKeys != "" {
		encoded, err := options.EncodeSSHKeys(opts.SSHKeys)
		if err != nil {
			return err
		}
		opts.SSHKeys = encoded
	}

	if name == "" {
		base := filepath.Base(flagConfig)
		name = strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
	}

	resources, err := client.VMs(ctx)
	if err != nil {
		return err
	}
	vms := make([]identity.VM, 0, len(resources))
	for _, r := range resources {
		vms = append(vms, identity.VM{ID: r.VMID, Name: r.Name})
	}

	if flagID != 0 {
		configID = flagID
	}
	id, err := identity.Resolve(vms, identity.Request{
		Name:     name,
		ID:       configID,
		BaseID:   flagBaseID,
		Template: flagTemplate,
		Replace:  flagReplace,
	}, log)
	if err != nil {
		return err
	}

	if flagImage != "" {
		imageRef = flagImage
	}

	exec := sshexec.NewClient(flagServer, flagSSHPort, "root", password, log)
	orchestrator := &provision.Orchestrator{
		API:     client,
		Exec:    exec,
		Console: log,
		Images: &image.Resolver{
			Exec:           exec,
			Creds:          store,
			Console:        log,
			CachePasswords: !flagNoCache,
		},
		AssumeYes:   flagAssumeYes,
		Autostart:   flagAutostart,
		SkipCleanup: flagNoCleanup,
	}
	return orchestrator.Run(ctx, id, opts, imageRef)
}
