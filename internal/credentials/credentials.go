// Package credentials caches per-host credentials in a YAML file in the
// user's home directory. Records hold a username and password; either part
// may be filled in later, so a stored record is merged rather than replaced.
// The file is restricted to owner-only permissions after every write. There
// is no locking against concurrent invocations; a lost update between two
// parallel runs is accepted.
package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/majes-git/proxmox/internal/console"
)

// Record is the unified per-host credential shape.
type Record struct {
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// Provider is the capability handed to the login and image-download paths.
type Provider interface {
	Lookup(host string) (Record, bool)
	Store(host string, rec Record) error
	Invalidate(host string) error
}

// FileStore implements Provider over a YAML file keyed by host.
type FileStore struct {
	path string
	log  *console.Logger
}

// DefaultPath returns ~/.proxmox_credentials.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".proxmox_credentials.yaml"
	}
	return filepath.Join(home, ".proxmox_credentials.yaml")
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string, log *console.Logger) *FileStore {
	return &FileStore{path: path, log: log}
}

// Lookup returns the cached record for host. A record with neither part set
// counts as absent.
func (s *FileStore) Lookup(host string) (Record, bool) {
	data := s.load()
	rec, ok := data[host]
	if !ok || (rec.Username == "" && rec.Password == "") {
		return Record{}, false
	}
	s.log.Debug("Loaded credentials for %s from: %s", host, s.path)
	return rec, true
}

// Store merges rec into the cached record for host and writes the file with
// owner-only permissions.
func (s *FileStore) Store(host string, rec Record) error {
	data := s.load()
	current := data[host]
	if rec.Username != "" {
		current.Username = rec.Username
	}
	if rec.Password != "" {
		current.Password = rec.Password
	}
	data[host] = current
	return s.write(data)
}

// Invalidate removes the cached record for host. A host that was never cached
// is not an error.
func (s *FileStore) Invalidate(host string) error {
	data := s.load()
	if _, ok := data[host]; !ok {
		return nil
	}
	s.log.Debug("Cleaning credentials for %s from: %s", host, s.path)
	delete(data, host)
	return s.write(data)
}

func (s *FileStore) load() map[string]Record {
	data := make(map[string]Record)
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("Could not access file: %s", s.path)
		}
		return data
	}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		s.log.Warn("Could not parse credentials file: %s", s.path)
		return make(map[string]Record)
	}
	return data
}

func (s *FileStore) write(data map[string]Record) error {
	raw, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("could not access file %s: %w", s.path, err)
	}
	// WriteFile only applies the mode to new files.
	if err := os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("restrict permissions on %s: %w", s.path, err)
	}
	return nil
}
