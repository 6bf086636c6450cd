package credentials

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/majes-git/proxmox/internal/console"
)

func testStore(t *testing.T) *FileStore {
	t.Helper()
	var out bytes.Buffer
	log := console.New(&out, &out, strings.NewReader(""))
	return NewFileStore(filepath.Join(t.TempDir(), "credentials.yaml"), log)
}

func TestStoreAndLookup(t *testing.T) {
	s := testStore(t)

	if _, ok := s.Lookup("pve.example.com"); ok {
		t.Fatal("lookup on empty store should miss")
	}

	rec := Record{Username: "root@pam", Password: "secret"}
	if err := s.Store("pve.example.com", rec); err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	got, ok := s.Lookup("pve.example.com")
	if !ok || got != rec {
		t.Errorf("Lookup() = %+v, %v", got, ok)
	}
}

func TestStoreMergesPartialRecords(t *testing.T) {
	s := testStore(t)

	if err := s.Store("images.example.com", Record{Username: "downloader"}); err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	if err := s.Store("images.example.com", Record{Password: "hunter2"}); err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	got, ok := s.Lookup("images.example.com")
	if !ok {
		t.Fatal("record missing after merge")
	}
	if got.Username != "downloader" || got.Password != "hunter2" {
		t.Errorf("merged record = %+v", got)
	}
}

func TestFilePermissionsRestricted(t *testing.T) {
	s := testStore(t)
	if err := s.Store("pve.example.com", Record{Password: "secret"}); err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	info, err := os.Stat(s.path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 0600", perm)
	}
}

func TestInvalidate(t *testing.T) {
	s := testStore(t)
	if err := s.Store("pve.example.com", Record{Password: "secret"}); err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	if err := s.Store("other.example.com", Record{Password: "keepme"}); err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	if err := s.Invalidate("pve.example.com"); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}
	if _, ok := s.Lookup("pve.example.com"); ok {
		t.Error("record still present after invalidation")
	}
	if _, ok := s.Lookup("other.example.com"); !ok {
		t.Error("unrelated record lost")
	}

	// Invalidating a never-cached host is not an error.
	if err := s.Invalidate("unknown.example.com"); err != nil {
		t.Errorf("Invalidate() for unknown host: %v", err)
	}
}
