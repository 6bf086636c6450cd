package provision

import (
	"context"
	"fmt"

	"github.com/majes-git/proxmox/internal/image"
)

// mockClusterAPI is a mock implementation of the clusterAPI interface for
// testing.
type mockClusterAPI struct {
	// Configurable behavior
	isRunningFunc         func(vmid int) (bool, error)
	stopVMFunc            func(vmid int) error
	startVMFunc           func(vmid int) error
	deleteVMFunc          func(vmid int) error
	createVMFunc          func(vmid int, name string, options map[string]string) (string, error)
	waitForTaskFunc       func(upid string) error
	vmConfigFunc          func(vmid int) (map[string]string, error)
	volumePathFunc        func(volumeID string) (string, error)
	setImageOriginFunc    func(vmid int, imageRef string) error
	convertToTemplateFunc func(vmid int) error

	// Call tracking
	isRunningCalls         []int
	stopVMCalls            []int
	startVMCalls           []int
	deleteVMCalls          []int
	createVMCalls          []createCall
	waitForTaskCalls       []string
	vmConfigCalls          []int
	volumePathCalls        []string
	setImageOriginCalls    []originCall
	convertToTemplateCalls []int
}

type createCall struct {
	vmid    int
	name    string
	options map[string]string
}

type originCall struct {
	vmid     int
	imageRef string
}

// newMockClusterAPI creates a mock where every call succeeds: the VM is not
// running, creation yields a task that completes, and the disk is visible on
// the first config read.
func newMockClusterAPI() *mockClusterAPI {
	m := &mockClusterAPI{}

	m.isRunningFunc = func(vmid int) (bool, error) { return false, nil }
	m.stopVMFunc = func(vmid int) error { return nil }
	m.startVMFunc = func(vmid int) error { return nil }
	m.deleteVMFunc = func(vmid int) error { return nil }
	m.createVMFunc = func(vmid int, name string, options map[string]string) (string, error) {
		return fmt.Sprintf("UPID:pve:0000:%d:qmcreate:", vmid), nil
	}
	m.waitForTaskFunc = func(upid string) error { return nil }
	m.vmConfigFunc = func(vmid int) (map[string]string, error) {
		return map[string]string{"scsi0": "pool0:vm-101-disk-0,size=10G"}, nil
	}
	m.volumePathFunc = func(volumeID string) (string, error) {
		return "/dev/pool0/vm-101-disk-0", nil
	}
	m.setImageOriginFunc = func(vmid int, imageRef string) error { return nil }
	m.convertToTemplateFunc = func(vmid int) error { return nil }

	return m
}

func (m *mockClusterAPI) IsRunning(_ context.Context, vmid int) (bool, error) {
	m.isRunningCalls = append(m.isRunningCalls, vmid)
	return m.isRunningFunc(vmid)
}

func (m *mockClusterAPI) StopVM(_ context.Context, vmid int) error {
	m.stopVMCalls = append(m.stopVMCalls, vmid)
	return m.stopVMFunc(vmid)
}

func (m *mockClusterAPI) StartVM(_ context.Context, vmid int) error {
	m.startVMCalls = append(m.startVMCalls, vmid)
	return m.startVMFunc(vmid)
}

func (m *mockClusterAPI) DeleteVM(_ context.Context, vmid int) error {
	m.deleteVMCalls = append(m.deleteVMCalls, vmid)
	return m.deleteVMFunc(vmid)
}

func (m *mockClusterAPI) CreateVM(_ context.Context, vmid int, name string, options map[string]string) (string, error) {
	m.createVMCalls = append(m.createVMCalls, createCall{vmid: vmid, name: name, options: options})
	return m.createVMFunc(vmid, name, options)
}

func (m *mockClusterAPI) WaitForTask(_ context.Context, upid string) error {
	m.waitForTaskCalls = append(m.waitForTaskCalls, upid)
	return m.waitForTaskFunc(upid)
}

func (m *mockClusterAPI) VMConfig(_ context.Context, vmid int) (map[string]string, error) {
	m.vmConfigCalls = append(m.vmConfigCalls, vmid)
	return m.vmConfigFunc(vmid)
}

func (m *mockClusterAPI) VolumePath(_ context.Context, volumeID string) (string, error) {
	m.volumePathCalls = append(m.volumePathCalls, volumeID)
	return m.volumePathFunc(volumeID)
}

func (m *mockClusterAPI) SetImageOrigin(_ context.Context, vmid int, imageRef string) error {
	m.setImageOriginCalls = append(m.setImageOriginCalls, originCall{vmid: vmid, imageRef: imageRef})
	return m.setImageOriginFunc(vmid, imageRef)
}

func (m *mockClusterAPI) ConvertToTemplate(_ context.Context, vmid int) error {
	m.convertToTemplateCalls = append(m.convertToTemplateCalls, vmid)
	return m.convertToTemplateFunc(vmid)
}

// mutations counts the calls that change cluster state.
func (m *mockClusterAPI) mutations() int {
	return len(m.stopVMCalls) + len(m.startVMCalls) + len(m.deleteVMCalls) +
		len(m.createVMCalls) + len(m.setImageOriginCalls) + len(m.convertToTemplateCalls)
}

// mockExecutor is a mock implementation of the executor interface for
// testing.
type mockExecutor struct {
	runFunc  func(command string) error
	runCalls []string
}

func (m *mockExecutor) Run(_ context.Context, command string) error {
	m.runCalls = append(m.runCalls, command)
	if m.runFunc != nil {
		return m.runFunc(command)
	}
	return nil
}

// mockImageResolver is a mock implementation of the imageResolver interface
// for testing.
type mockImageResolver struct {
	resolveFunc func(ref string) (*image.Resolved, error)

	resolveCalls []string
	cleanupCalls []*image.Resolved
}

func (m *mockImageResolver) Resolve(_ context.Context, ref string) (*image.Resolved, error) {
	m.resolveCalls = append(m.resolveCalls, ref)
	if m.resolveFunc != nil {
		return m.resolveFunc(ref)
	}
	return &image.Resolved{Path: "/tmp/staging/qcow2-image", Display: ref, Remote: true}, nil
}

func (m *mockImageResolver) Cleanup(_ context.Context, res *image.Resolved) error {
	m.cleanupCalls = append(m.cleanupCalls, res)
	return nil
}
