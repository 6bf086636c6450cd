// Package identity resolves the numeric ID and name a VM or template will be
// created under, detecting collisions with what already exists on the cluster.
package identity

import (
	"fmt"
	"sort"

	"github.com/majes-git/proxmox/internal/console"
)

// Base IDs new allocations start from when none is given. Templates scan
// downward from a higher base so they end up in a visually distinct range.
const (
	DefaultBaseID         = 100
	DefaultTemplateBaseID = 2000
)

// VM is the view of an existing guest the resolver needs.
type VM struct {
	ID   int
	Name string
}

// Request carries the caller's intent.
type Request struct {
	Name     string // requested name, without template suffix
	ID       int    // explicit ID, 0 when unset
	BaseID   int    // allocation base, 0 for the default
	Template bool
	Replace  bool
}

// Identity is the resolved target of one provisioning run.
type Identity struct {
	ID       int
	Name     string
	Template bool
	Replace  bool
}

// Label returns "VM" or "template" for messages.
func (id Identity) Label() string {
	if id.Template {
		return "template"
	}
	return "VM"
}

// ConflictError reports an explicit ID that is already in use without the
// replace flag.
type ConflictError struct {
	ID    int
	Label string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with ID %d already exists. Please specify --replace to replace it.", e.Label, e.ID)
}

// Resolve determines the final ID and name. Template runs use the requested
// name suffixed with "-template". With replace set, an existing explicit ID
// takes precedence over an existing same-name guest; without it, an explicit
// ID collision is fatal while a name collision under a different ID only
// warns and a fresh ID is allocated.
func Resolve(vms []VM, req Request, log *console.Logger) (Identity, error) {
	target := Identity{
		Name:     req.Name,
		Template: req.Template,
	}
	label := target.Label()
	if req.Template {
		target.Name = req.Name + "-template"
	}

	existingID := 0
	names := make(map[int]string, len(vms))
	inUse := make([]int, 0, len(vms))
	for _, vm := range vms {
		inUse = append(inUse, vm.ID)
		names[vm.ID] = vm.Name
		if vm.Name == target.Name {
			existingID = vm.ID
		}
	}

	target.ID = req.ID

	if req.Replace {
		if target.ID != 0 && names[target.ID] != "" {
			target.Replace = true
		} else if existingID != 0 {
			target.ID = existingID
			target.Replace = true
		}
		if target.Replace {
			log.Info("Replacing %s: %s (id: %d)", label, names[target.ID], target.ID)
			return target, nil
		}
		// Nothing to replace, continue with a normal allocation.
	}

	if target.ID != 0 {
		if _, taken := names[target.ID]; taken {
			return Identity{}, &ConflictError{ID: target.ID, Label: capitalize(label)}
		}
	}
	if existingID != 0 {
		log.Warn("Another %s with the same name (id: %d) already exists!", label, existingID)
	}
	if target.ID == 0 {
		base := req.BaseID
		if base == 0 {
			base = DefaultBaseID
			if req.Template {
				base = DefaultTemplateBaseID
			}
		}
		target.ID = NextFreeID(inUse, base, req.Template)
	}

	return target, nil
}

// NextFreeID returns the first integer past base, in scan direction, that is
// not in use. Ascending allocation yields the smallest free ID above base;
// descending yields the largest free ID below it.
func NextFreeID(inUse []int, base int, descending bool) int {
	increment := 1
	if descending {
		increment = -1
	}

	ids := make([]int, len(inUse))
	copy(ids, inUse)
	if descending {
		sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	} else {
		sort.Ints(ids)
	}

	next := base + increment
	for _, id := range ids {
		if id == next {
			next += increment
		}
	}
	return next
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
