package proxmox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// StorageStatus is one storage backend as reported by the node.
type StorageStatus struct {
	Storage string `json:"storage"`
	Type    string `json:"type"`
	Avail   int64  `json:"avail"`
}

// ThinStorages returns the thin-pool storages of the bound node with their
// available bytes. This snapshot feeds the storage selection catalog.
func (c *Client) ThinStorages(ctx context.Context) (map[string]int64, error) {
	data, err := c.do(ctx, http.MethodGet, c.nodePath("storage"), nil)
	if err != nil {
		return nil, err
	}
	var entries []StorageStatus
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode storage list: %w", err)
	}

	storages := make(map[string]int64)
	for _, entry := range entries {
		if entry.Type == "lvmthin" {
			storages[entry.Storage] = entry.Avail
		}
	}
	return storages, nil
}

// VolumePath resolves a volume identifier like "local-lvm:vm-101-disk-0" to
// its filesystem path on the node.
func (c *Client) VolumePath(ctx context.Context, volumeID string) (string, error) {
	storage, _, found := strings.Cut(volumeID, ":")
	if !found || storage == "" {
		return "", fmt.Errorf("invalid volume identifier %q", volumeID)
	}

	data, err := c.do(ctx, http.MethodGet, c.nodePath("storage", storage, "content", volumeID), nil)
	if err != nil {
		return "", err
	}
	var volume struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(data, &volume); err != nil {
		return "", fmt.Errorf("decode volume %s: %w", volumeID, err)
	}
	if volume.Path == "" {
		return "", fmt.Errorf("volume %s has no path", volumeID)
	}
	return volume.Path, nil
}

// decodeNumbersPreserved unmarshals JSON keeping numbers as json.Number so
// integer config values do not pick up a float representation.
func decodeNumbersPreserved(data []byte, out *map[string]any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}

// stringify renders an API config value the way it appears on the wire.
func stringify(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case json.Number:
		return value.String()
	case bool:
		if value {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", value)
	}
}
