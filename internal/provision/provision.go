// Package provision drives one VM lifecycle on a Proxmox node: optional
// replacement of an existing VM, creation, locating the primary disk, image
// conversion, and final template conversion or start.
package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/majes-git/proxmox/internal/console"
	"github.com/majes-git/proxmox/internal/identity"
	"github.com/majes-git/proxmox/internal/options"
	"github.com/majes-git/proxmox/internal/retry"
)

// Bounded polling defaults. Stopping a VM is retried once per second for up
// to 30 attempts; the created disk is looked for once per second for up to
// 10 attempts.
const (
	defaultStopAttempts = 30
	defaultDiskAttempts = 10
	defaultPollInterval = time.Second
)

// Orchestrator provisions a single VM per invocation. All collaborators are
// injected so the flow can be tested without a cluster.
type Orchestrator struct {
	API     clusterAPI
	Exec    executor
	Images  imageResolver
	Console *console.Logger

	// AssumeYes skips the interactive confirmation.
	AssumeYes bool
	// Autostart starts the VM after provisioning. Ignored when the VM is
	// converted into a template.
	Autostart bool
	// SkipCleanup keeps the staging directory of a downloaded image.
	SkipCleanup bool

	// Polling knobs, zero values use the package defaults.
	StopInterval time.Duration
	StopAttempts int
	DiskInterval time.Duration
	DiskAttempts int
}

// Run executes the provisioning flow for the resolved identity and options.
// A declined confirmation returns nil without any mutation.
func (o *Orchestrator) Run(ctx context.Context, id identity.Identity, opts *options.Options, imageRef string) error {
	if !o.confirm(id) {
		return nil
	}

	if id.Replace {
		if err := o.destroy(ctx, id.ID); err != nil {
			return err
		}
	}

	o.Console.Info("Creating VM")
	upid, err := o.API.CreateVM(ctx, id.ID, id.Name, opts.ToAPI())
	if err != nil {
		return err
	}
	if err := o.API.WaitForTask(ctx, upid); err != nil {
		return err
	}

	diskPath, err := o.locateDisk(ctx, id.ID)
	if err != nil {
		return err
	}

	if imageRef == "" {
		o.Console.Warn("No image provided. Creating an empty %s", id.Label())
	} else if err := o.attachImage(ctx, id.ID, imageRef, diskPath); err != nil {
		return err
	}

	if id.Template {
		o.Console.Info("Converting VM into template")
		return o.API.ConvertToTemplate(ctx, id.ID)
	}
	if o.Autostart {
		o.Console.Info("Starting VM")
		return o.API.StartVM(ctx, id.ID)
	}
	return nil
}

// confirm announces the resolved identity and asks for a go-ahead unless
// AssumeYes is set.
func (o *Orchestrator) confirm(id identity.Identity) bool {
	o.Console.Info("About to create a new %s:", id.Label())
	o.Console.Step("ID: %d", id.ID)
	o.Console.Step("Name: %s", id.Name)
	if o.AssumeYes {
		return true
	}
	return o.Console.Confirm("Continue")
}

// destroy stops and deletes an existing VM. The stop is best-effort: when
// the attempt budget runs out deletion is tried anyway, and a still-running
// VM surfaces as a deletion error.
func (o *Orchestrator) destroy(ctx context.Context, vmid int) error {
	announced := false
	err := retry.Poll(ctx, o.stopInterval(), o.stopAttempts(), func() (bool, error) {
		running, err := o.API.IsRunning(ctx, vmid)
		if err != nil {
			return false, err
		}
		if !running {
			return true, nil
		}
		if !announced {
			o.Console.Info("Stopping VM %d", vmid)
			announced = true
		}
		if err := o.API.StopVM(ctx, vmid); err != nil {
			return false, err
		}
		return false, nil
	})
	if err != nil && !errors.Is(err, retry.ErrTimeout) {
		return err
	}
	return o.API.DeleteVM(ctx, vmid)
}

// locateDisk polls the live VM config until the boot disk slot appears and
// resolves its volume to a path. The config may lag the creation task on a
// busy host.
func (o *Orchestrator) locateDisk(ctx context.Context, vmid int) (string, error) {
	var diskPath string
	err := retry.Poll(ctx, o.diskInterval(), o.diskAttempts(), func() (bool, error) {
		config, err := o.API.VMConfig(ctx, vmid)
		if err != nil {
			return false, err
		}
		slot, ok := config["scsi0"]
		if !ok {
			return false, nil
		}
		volumeID, _, _ := strings.Cut(slot, ",")
		path, err := o.API.VolumePath(ctx, volumeID)
		if err != nil {
			return false, err
		}
		diskPath = path
		return true, nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrTimeout) {
			return "", fmt.Errorf("could not find disk definition: %w", err)
		}
		return "", err
	}
	return diskPath, nil
}

// attachImage resolves the image reference, converts it onto the VM's disk
// and records the provenance. Downloaded images are cleaned up afterwards
// unless suppressed.
func (o *Orchestrator) attachImage(ctx context.Context, vmid int, ref, diskPath string) error {
	res, err := o.Images.Resolve(ctx, ref)
	if err != nil {
		return err
	}

	o.Console.Info("Converting qcow2 image to LVM thin volume")
	convert := fmt.Sprintf("qemu-img convert -O raw %s -S 4096 %s", res.Path, diskPath)
	if err := o.Exec.Run(ctx, convert); err != nil {
		return err
	}
	if err := o.API.SetImageOrigin(ctx, vmid, res.Display); err != nil {
		return err
	}

	if !o.SkipCleanup {
		return o.Images.Cleanup(ctx, res)
	}
	return nil
}

func (o *Orchestrator) stopInterval() time.Duration {
	if o.StopInterval > 0 {
		return o.StopInterval
	}
	return defaultPollInterval
}

func (o *Orchestrator) stopAttempts() int {
	if o.StopAttempts > 0 {
		return o.StopAttempts
	}
	return defaultStopAttempts
}

func (o *Orchestrator) diskInterval() time.Duration {
	if o.DiskInterval > 0 {
		return o.DiskInterval
	}
	return defaultPollInterval
}

func (o *Orchestrator) diskAttempts() int {
	if o.DiskAttempts > 0 {
		return o.DiskAttempts
	}
	return defaultDiskAttempts
}
