// Package storage picks concrete thin-pool storages for disk slots that
// request automatic placement. It works on a capacity snapshot taken once per
// invocation; capacity accounting is advisory and purely in-memory.
package storage

import (
	"fmt"
	"sort"

	"github.com/majes-git/proxmox/internal/console"
	"github.com/majes-git/proxmox/internal/options"
)

// GiB is the unit disk sizes are declared in.
const GiB = int64(1) << 30

// CapacityError reports that no storage can hold a requested disk.
type CapacityError struct {
	Slot    string
	SizeGiB int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("could not find suitable storage for disk %q (%d GiB)", e.Slot, e.SizeGiB)
}

// Catalog is a point-in-time snapshot of thin-pool storages and their free
// capacity. Selections decrement the tracked capacity so one run cannot
// assign the same bytes to two disks; the cluster is never written back to.
type Catalog struct {
	names []string
	avail map[string]int64
}

// NewCatalog builds a catalog from a storage name to available bytes mapping.
// Storages are considered in sorted name order to keep selection
// deterministic.
func NewCatalog(avail map[string]int64) *Catalog {
	names := make([]string, 0, len(avail))
	tracked := make(map[string]int64, len(avail))
	for name, bytes := range avail {
		names = append(names, name)
		tracked[name] = bytes
	}
	sort.Strings(names)
	return &Catalog{names: names, avail: tracked}
}

// Names returns the storage names in selection order.
func (c *Catalog) Names() []string {
	return c.names
}

// Available returns the tracked free capacity of a storage.
func (c *Catalog) Available(name string) int64 {
	return c.avail[name]
}

// ResolvePlaceholders rewrites every disk slot requesting automatic thin-pool
// placement to the first storage with enough tracked capacity, decrementing
// that capacity. More than one fitting storage produces a warning naming the
// one used. A slot no storage can hold aborts with a CapacityError before any
// cluster mutation happens.
func ResolvePlaceholders(opts *options.Options, catalog *Catalog, log *console.Logger) error {
	for _, slot := range opts.DiskSlots() {
		spec := opts.Disks[slot]
		if spec.Storage != options.AutoThinPool {
			continue
		}

		required := int64(spec.SizeGiB) * GiB
		selected := ""
		for _, name := range catalog.names {
			if required > catalog.avail[name] {
				continue
			}
			if selected != "" {
				log.Warn("Found more than 1 suitable storage for disk %q. Using storage %s.", slot, selected)
				break
			}
			selected = name
			catalog.avail[name] -= required
		}
		if selected == "" {
			return &CapacityError{Slot: slot, SizeGiB: spec.SizeGiB}
		}

		spec.Storage = selected
		opts.Disks[slot] = spec
	}
	return nil
}
