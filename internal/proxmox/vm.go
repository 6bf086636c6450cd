package proxmox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/majes-git/proxmox/internal/retry"
)

// VMResource is one guest as reported by the node's qemu listing.
type VMResource struct {
	VMID   int    `json:"vmid"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// VMStatus is a guest's current runtime status.
type VMStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// TaskError reports a cluster task that reached a terminal state other than
// success.
type TaskError struct {
	UPID       string
	ExitStatus string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.UPID, e.ExitStatus)
}

// VMs lists the guests on the bound node.
func (c *Client) VMs(ctx context.Context) ([]VMResource, error) {
	data, err := c.do(ctx, http.MethodGet, c.nodePath("qemu"), nil)
	if err != nil {
		return nil, err
	}
	var vms []VMResource
	if err := json.Unmarshal(data, &vms); err != nil {
		return nil, fmt.Errorf("decode vm list: %w", err)
	}
	return vms, nil
}

// CreateVM submits a VM creation and returns the task handle.
func (c *Client) CreateVM(ctx context.Context, vmid int, name string, options map[string]string) (string, error) {
	form := url.Values{}
	form.Set("vmid", strconv.Itoa(vmid))
	form.Set("name", name)
	for key, value := range options {
		form.Set(key, value)
	}

	data, err := c.do(ctx, http.MethodPost, c.nodePath("qemu"), form)
	if err != nil {
		return "", err
	}
	var upid string
	if err := json.Unmarshal(data, &upid); err != nil {
		return "", fmt.Errorf("decode task handle: %w", err)
	}
	return upid, nil
}

// TaskStatus is a task's reported state.
type TaskStatus struct {
	Status     string `json:"status"`
	ExitStatus string `json:"exitstatus"`
}

// Terminal reports whether the task has finished.
func (t TaskStatus) Terminal() bool {
	return t.Status == "stopped"
}

// GetTaskStatus reads the current state of a task.
func (c *Client) GetTaskStatus(ctx context.Context, upid string) (TaskStatus, error) {
	data, err := c.do(ctx, http.MethodGet, c.nodePath("tasks", upid, "status"), nil)
	if err != nil {
		return TaskStatus{}, err
	}
	var status TaskStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return TaskStatus{}, fmt.Errorf("decode task status: %w", err)
	}
	return status, nil
}

// WaitForTask polls a task until it reaches a terminal state and returns a
// TaskError if it did not succeed.
func (c *Client) WaitForTask(ctx context.Context, upid string) error {
	var last TaskStatus
	err := retry.Poll(ctx, c.taskPollInterval, c.taskPollAttempts, func() (bool, error) {
		status, err := c.GetTaskStatus(ctx, upid)
		if err != nil {
			return false, err
		}
		last = status
		return status.Terminal(), nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrTimeout) {
			return fmt.Errorf("task %s did not finish: %w", upid, err)
		}
		return err
	}
	if last.ExitStatus != "OK" {
		return &TaskError{UPID: upid, ExitStatus: last.ExitStatus}
	}
	return nil
}

// VMConfig reads a guest's live configuration as flat string fields.
func (c *Client) VMConfig(ctx context.Context, vmid int) (map[string]string, error) {
	data, err := c.do(ctx, http.MethodGet, c.nodePath("qemu", strconv.Itoa(vmid), "config"), nil)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := decodeNumbersPreserved(data, &raw); err != nil {
		return nil, fmt.Errorf("decode vm config: %w", err)
	}
	config := make(map[string]string, len(raw))
	for key, value := range raw {
		config[key] = stringify(value)
	}
	return config, nil
}

// SetVMConfig updates fields of a guest's configuration.
func (c *Client) SetVMConfig(ctx context.Context, vmid int, options map[string]string) error {
	form := url.Values{}
	for key, value := range options {
		form.Set(key, value)
	}
	_, err := c.do(ctx, http.MethodPut, c.nodePath("qemu", strconv.Itoa(vmid), "config"), form)
	return err
}

// GetVMStatus reads a guest's current status.
func (c *Client) GetVMStatus(ctx context.Context, vmid int) (VMStatus, error) {
	data, err := c.do(ctx, http.MethodGet, c.nodePath("qemu", strconv.Itoa(vmid), "status", "current"), nil)
	if err != nil {
		return VMStatus{}, err
	}
	var status VMStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return VMStatus{}, fmt.Errorf("decode vm status: %w", err)
	}
	return status, nil
}

// IsRunning reports whether a guest is currently running.
func (c *Client) IsRunning(ctx context.Context, vmid int) (bool, error) {
	status, err := c.GetVMStatus(ctx, vmid)
	if err != nil {
		return false, err
	}
	return status.Status == "running", nil
}

// Exists reports whether a guest with the given ID is present. An API error
// response counts as absent; transport failures are surfaced.
func (c *Client) Exists(ctx context.Context, vmid int) (bool, error) {
	_, err := c.GetVMStatus(ctx, vmid)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// StartVM starts a guest.
func (c *Client) StartVM(ctx context.Context, vmid int) error {
	_, err := c.do(ctx, http.MethodPost, c.nodePath("qemu", strconv.Itoa(vmid), "status", "start"), url.Values{})
	return err
}

// StopVM requests an immediate stop of a guest.
func (c *Client) StopVM(ctx context.Context, vmid int) error {
	_, err := c.do(ctx, http.MethodPost, c.nodePath("qemu", strconv.Itoa(vmid), "status", "stop"), url.Values{})
	return err
}

// DeleteVM removes a guest. Deleting a running guest fails on the API side.
func (c *Client) DeleteVM(ctx context.Context, vmid int) error {
	_, err := c.do(ctx, http.MethodDelete, c.nodePath("qemu", strconv.Itoa(vmid)), nil)
	return err
}

// ConvertToTemplate marks the prior name in the guest's description, keeping
// any existing description below it, and converts the guest into a template.
func (c *Client) ConvertToTemplate(ctx context.Context, vmid int) error {
	status, err := c.GetVMStatus(ctx, vmid)
	if err != nil {
		return err
	}
	config, err := c.VMConfig(ctx, vmid)
	if err != nil {
		return err
	}

	description := "Branched off " + status.Name
	if existing := config["description"]; existing != "" {
		description += "\n" + existing
	}
	if err := c.SetVMConfig(ctx, vmid, map[string]string{"description": description}); err != nil {
		return err
	}

	_, err = c.do(ctx, http.MethodPost, c.nodePath("qemu", strconv.Itoa(vmid), "template"), url.Values{})
	return err
}

// SetImageOrigin records the image a guest's disk was provisioned from.
func (c *Client) SetImageOrigin(ctx context.Context, vmid int, image string) error {
	return c.SetVMConfig(ctx, vmid, map[string]string{
		"description": "Created based on " + image,
	})
}
