package provision

import (
	"context"

	"github.com/majes-git/proxmox/internal/image"
)

// clusterAPI defines the Proxmox operations needed for provisioning.
// This wraps operations from *proxmox.Client to allow for testing.
//
// In production, this is satisfied by *proxmox.Client directly.
// In tests, this is satisfied by mock implementations.
type clusterAPI interface {
	// IsRunning reports whether the VM is currently running.
	IsRunning(ctx context.Context, vmid int) (bool, error)

	// StopVM requests a VM stop.
	StopVM(ctx context.Context, vmid int) error

	// StartVM starts a VM.
	StartVM(ctx context.Context, vmid int) error

	// DeleteVM removes a VM definition.
	DeleteVM(ctx context.Context, vmid int) error

	// CreateVM submits a VM creation and returns the task UPID.
	CreateVM(ctx context.Context, vmid int, name string, options map[string]string) (string, error)

	// WaitForTask blocks until the task reaches a terminal state.
	WaitForTask(ctx context.Context, upid string) error

	// VMConfig fetches the VM's live configuration.
	VMConfig(ctx context.Context, vmid int) (map[string]string, error)

	// VolumePath resolves a volume identifier to a filesystem path.
	VolumePath(ctx context.Context, volumeID string) (string, error)

	// SetImageOrigin records the source image in the VM description.
	SetImageOrigin(ctx context.Context, vmid int, imageRef string) error

	// ConvertToTemplate converts the VM into a template.
	ConvertToTemplate(ctx context.Context, vmid int) error
}

// executor runs commands on the Proxmox host.
//
// In production, this is satisfied by *sshexec.Client.
type executor interface {
	Run(ctx context.Context, command string) error
}

// imageResolver prepares disk images on the Proxmox host.
//
// In production, this is satisfied by *image.Resolver.
type imageResolver interface {
	Resolve(ctx context.Context, ref string) (*image.Resolved, error)
	Cleanup(ctx context.Context, res *image.Resolved) error
}
