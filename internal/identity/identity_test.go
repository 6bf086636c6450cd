package identity

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/majes-git/proxmox/internal/console"
)

func testLogger() (*console.Logger, *bytes.Buffer) {
	var out bytes.Buffer
	return console.New(&out, &out, strings.NewReader("")), &out
}

func TestNextFreeID(t *testing.T) {
	tests := []struct {
		name       string
		inUse      []int
		base       int
		descending bool
		want       int
	}{
		{"empty cluster ascending", nil, 100, false, 101},
		{"skips consecutive used ids", []int{101, 102, 103}, 100, false, 104},
		{"gap is used", []int{101, 103}, 100, false, 102},
		{"unsorted input", []int{103, 101, 102}, 100, false, 104},
		{"empty cluster descending", nil, 2000, true, 1999},
		{"skips downward", []int{1999, 1998}, 2000, true, 1997},
		{"ignores ids past the scan", []int{2005, 1999}, 2000, true, 1998},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextFreeID(tt.inUse, tt.base, tt.descending)
			if got != tt.want {
				t.Errorf("NextFreeID(%v, %d, %v) = %d, want %d",
					tt.inUse, tt.base, tt.descending, got, tt.want)
			}
			for _, id := range tt.inUse {
				if got == id {
					t.Errorf("allocated in-use ID %d", id)
				}
			}
		})
	}
}

func TestResolveAllocatesFreshID(t *testing.T) {
	log, _ := testLogger()
	vms := []VM{{ID: 100, Name: "other"}}

	id, err := Resolve(vms, Request{Name: "web"}, log)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if id.ID != 101 || id.Name != "web" || id.Replace || id.Template {
		t.Errorf("identity = %+v", id)
	}
}

func TestResolveTemplateNameAndBase(t *testing.T) {
	log, _ := testLogger()

	id, err := Resolve(nil, Request{Name: "debian", Template: true}, log)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if id.Name != "debian-template" {
		t.Errorf("name = %q, want debian-template", id.Name)
	}
	if id.ID != 1999 {
		t.Errorf("id = %d, want 1999 (descending from 2000)", id.ID)
	}
	if id.Label() != "template" {
		t.Errorf("label = %q", id.Label())
	}
}

func TestResolveExplicitIDConflictFails(t *testing.T) {
	log, _ := testLogger()
	vms := []VM{{ID: 105, Name: "other"}}

	_, err := Resolve(vms, Request{Name: "web", ID: 105}, log)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %v, want ConflictError", err)
	}
	if conflict.ID != 105 {
		t.Errorf("conflict ID = %d", conflict.ID)
	}
	if !strings.Contains(conflict.Error(), "--replace") {
		t.Errorf("error text = %q", conflict.Error())
	}
}

func TestResolveNameCollisionOnlyWarns(t *testing.T) {
	log, out := testLogger()
	vms := []VM{{ID: 150, Name: "web"}}

	id, err := Resolve(vms, Request{Name: "web"}, log)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if id.ID == 150 {
		t.Error("must not silently adopt the existing ID without --replace")
	}
	if id.ID != 101 {
		t.Errorf("id = %d, want freshly allocated 101", id.ID)
	}
	if !strings.Contains(out.String(), "same name (id: 150)") {
		t.Errorf("missing warning, got %q", out.String())
	}
}

func TestResolveReplaceByName(t *testing.T) {
	log, out := testLogger()
	vms := []VM{{ID: 150, Name: "web"}}

	id, err := Resolve(vms, Request{Name: "web", Replace: true}, log)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !id.Replace || id.ID != 150 {
		t.Errorf("identity = %+v, want replace of 150", id)
	}
	if !strings.Contains(out.String(), "Replacing VM: web (id: 150)") {
		t.Errorf("missing announcement, got %q", out.String())
	}
}

func TestResolveReplaceByIDTakesPrecedence(t *testing.T) {
	log, _ := testLogger()
	vms := []VM{
		{ID: 150, Name: "web"},
		{ID: 200, Name: "db"},
	}

	// Both a same-name VM (150) and the explicit ID (200) exist; the explicit
	// ID wins.
	id, err := Resolve(vms, Request{Name: "web", ID: 200, Replace: true}, log)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !id.Replace || id.ID != 200 {
		t.Errorf("identity = %+v, want replace of 200", id)
	}
}

func TestResolveReplaceByIDAndNameAgree(t *testing.T) {
	log, _ := testLogger()
	vms := []VM{{ID: 150, Name: "web"}}

	byName, err := Resolve(vms, Request{Name: "web", Replace: true}, log)
	if err != nil {
		t.Fatalf("Resolve() by name error: %v", err)
	}
	byID, err := Resolve(vms, Request{Name: "web", ID: 150, Replace: true}, log)
	if err != nil {
		t.Fatalf("Resolve() by ID error: %v", err)
	}
	if byName != byID {
		t.Errorf("replace by name %+v != replace by ID %+v", byName, byID)
	}
}

func TestResolveReplaceWithoutMatchCreatesNew(t *testing.T) {
	log, _ := testLogger()

	// --replace given but nothing matches: behaves like a plain create with
	// the explicit ID kept.
	id, err := Resolve(nil, Request{Name: "web", ID: 300, Replace: true}, log)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if id.Replace || id.ID != 300 {
		t.Errorf("identity = %+v", id)
	}
}

func TestResolveReplaceWithoutMatchAllocates(t *testing.T) {
	log, _ := testLogger()

	// --replace with no explicit ID and no same-name guest still needs a
	// fresh ID to create under.
	id, err := Resolve([]VM{{ID: 101, Name: "db"}}, Request{Name: "web", Replace: true}, log)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if id.Replace || id.ID != 102 {
		t.Errorf("identity = %+v", id)
	}
}

func TestResolveCustomBaseID(t *testing.T) {
	log, _ := testLogger()

	id, err := Resolve(nil, Request{Name: "web", BaseID: 500}, log)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if id.ID != 501 {
		t.Errorf("id = %d, want 501", id.ID)
	}
}
