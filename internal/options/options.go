// Package options builds the VM option set sent to the Proxmox API. Built-in
// defaults, an optional defaults overlay file, a named preset and the user's
// config file are merged in that order (later sources win by key), then the
// merged document is validated and parsed into a typed structure at this
// boundary. Fields the tool makes decisions about are explicit; everything
// else passes through untouched as forward-compatible API fields.
package options

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/majes-git/proxmox/internal/console"
)

// AutoThinPool is the placeholder storage reference in a disk slot that asks
// the tool to pick a suitable thin-pool storage by free capacity.
const AutoThinPool = "_lvmthin_"

// DefaultsFile is an optional overlay document applied on top of the built-in
// defaults when present in the working directory.
const DefaultsFile = "default_vm_options.yaml"

// defaults are the built-in baseline VM options.
var defaults = map[string]any{
	"cores":   1,
	"memory":  1024,
	"ostype":  "l26",
	"scsihw":  "virtio-scsi-pci",
	"serial0": "socket",
	"vga":     "serial0",
}

// presets is the fixed registry of named option bundles.
var presets = map[string]map[string]any{
	"debian": {
		"cores":  1,
		"cpu":    "",
		"memory": 512,
	},
	"ssr": {
		"cores":  4,
		"cpu":    "host",
		"memory": 4096,
	},
}

var diskSlotPattern = regexp.MustCompile(`^scsi(\d+)$`)

// DiskSpec is a parsed disk slot value: a storage reference (a storage name
// or AutoThinPool) and a size in GiB.
type DiskSpec struct {
	Storage string
	SizeGiB int
}

func (d DiskSpec) String() string {
	return d.Storage + ":" + strconv.Itoa(d.SizeGiB)
}

// Options is the merged, validated VM option set.
type Options struct {
	Cores   int
	Memory  int
	CPU     string // empty means the field is omitted from the create call
	SSHKeys string
	Disks   map[string]DiskSpec // keyed by slot name, e.g. "scsi0"
	Extra   map[string]string   // pass-through Proxmox API fields
}

// Build merges defaults, the optional defaults overlay, the named preset and
// the config file, and parses the result. The config's id and image keys are
// extracted and returned separately; they are not Proxmox create fields.
// An unknown preset is skipped with a warning.
func Build(presetName, configPath string, log *console.Logger) (*Options, int, string, error) {
	merged := make(map[string]any, len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}

	if overlay, err := loadDocument(DefaultsFile); err == nil {
		update(merged, overlay)
	}

	if presetName != "" {
		preset, ok := presets[presetName]
		if !ok {
			log.Warn("Unknown preset: %s", presetName)
		} else {
			update(merged, preset)
		}
	}

	if configPath != "" {
		config, err := loadDocument(configPath)
		if err != nil || len(config) == 0 {
			return nil, 0, "", fmt.Errorf("could not load config: %s", configPath)
		}
		update(merged, config)
	}

	id := 0
	if raw, ok := merged["id"]; ok {
		n, err := toInt(raw)
		if err != nil {
			return nil, 0, "", fmt.Errorf("invalid id in config: %v", raw)
		}
		id = n
		delete(merged, "id")
	}

	image := ""
	if raw, ok := merged["image"]; ok {
		image = toString(raw)
		delete(merged, "image")
	}

	opts, err := parse(merged)
	if err != nil {
		return nil, 0, "", err
	}
	return opts, id, image, nil
}

// parse validates the merged document and converts it into Options.
func parse(merged map[string]any) (*Options, error) {
	opts := &Options{
		Disks: make(map[string]DiskSpec),
		Extra: make(map[string]string),
	}

	for key, raw := range merged {
		switch {
		case key == "cores":
			n, err := toInt(raw)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("cores must be a positive integer, got %v", raw)
			}
			opts.Cores = n
		case key == "memory":
			n, err := toInt(raw)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("memory must be a positive integer, got %v", raw)
			}
			opts.Memory = n
		case key == "cpu":
			opts.CPU = toString(raw)
		case key == "sshkeys":
			opts.SSHKeys = toString(raw)
		case diskSlotPattern.MatchString(key):
			spec, err := parseDisk(key, toString(raw))
			if err != nil {
				return nil, err
			}
			opts.Disks[key] = spec
		default:
			opts.Extra[key] = toString(raw)
		}
	}

	return opts, nil
}

// parseDisk parses a "storage:size" disk slot value.
func parseDisk(slot, value string) (DiskSpec, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return DiskSpec{}, fmt.Errorf("disk %q must be storage:size, got %q", slot, value)
	}
	size, err := strconv.Atoi(parts[1])
	if err != nil || size <= 0 {
		return DiskSpec{}, fmt.Errorf("disk %q has invalid size %q", slot, parts[1])
	}
	return DiskSpec{Storage: parts[0], SizeGiB: size}, nil
}

// HasBootDisk reports whether the primary disk slot is configured.
func (o *Options) HasBootDisk() bool {
	_, ok := o.Disks["scsi0"]
	return ok
}

// DiskSlots returns the configured disk slot names in sorted order.
func (o *Options) DiskSlots() []string {
	slots := make([]string, 0, len(o.Disks))
	for slot := range o.Disks {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	return slots
}

// ToAPI renders the options as the flat field mapping the Proxmox create call
// expects. An empty cpu value is dropped; the API rejects it.
func (o *Options) ToAPI() map[string]string {
	fields := make(map[string]string, len(o.Extra)+len(o.Disks)+4)
	fields["cores"] = strconv.Itoa(o.Cores)
	fields["memory"] = strconv.Itoa(o.Memory)
	if o.CPU != "" {
		fields["cpu"] = o.CPU
	}
	if o.SSHKeys != "" {
		fields["sshkeys"] = o.SSHKeys
	}
	for slot, spec := range o.Disks {
		fields[slot] = spec.String()
	}
	for key, value := range o.Extra {
		fields[key] = value
	}
	return fields
}

// Document renders the options as a plain mapping for display.
func (o *Options) Document() map[string]any {
	doc := make(map[string]any, len(o.Extra)+len(o.Disks)+4)
	doc["cores"] = o.Cores
	doc["memory"] = o.Memory
	if o.CPU != "" {
		doc["cpu"] = o.CPU
	}
	if o.SSHKeys != "" {
		doc["sshkeys"] = o.SSHKeys
	}
	for slot, spec := range o.Disks {
		doc[slot] = spec.String()
	}
	for key, value := range o.Extra {
		doc[key] = value
	}
	return doc
}

// loadDocument reads a YAML mapping from path.
func loadDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc := make(map[string]any)
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}

// update overlays src onto dst, later keys winning.
func update(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("not an integer: %v", v)
	}
}
