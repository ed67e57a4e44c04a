package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the persisted settings file. The suffix versions the format.
const FileName = "config-v4.json"

// MaxHosts is the number of remote host slots.
const MaxHosts = 3

// ErrNotFound is returned by Load when no settings were persisted.
var ErrNotFound = errors.New("settings not found")

// Settings are the values supplied by provisioning and kept across reboots.
type Settings struct {
	Hosts [MaxHosts]string // empty slot disables the target
	PIN   string
}

// document is the on-disk JSON shape.
type document struct {
	RemoteHost1 string `json:"remoteHost1"`
	RemoteHost2 string `json:"remoteHost2"`
	RemoteHost3 string `json:"remoteHost3"`
	ConfigPIN   string `json:"configPin"`
}

// MarshalJSON encodes settings with the persisted field names.
func (s Settings) MarshalJSON() ([]byte, error) {
	return json.Marshal(document{
		RemoteHost1: s.Hosts[0],
		RemoteHost2: s.Hosts[1],
		RemoteHost3: s.Hosts[2],
		ConfigPIN:   s.PIN,
	})
}

// UnmarshalJSON decodes settings from the persisted field names.
func (s *Settings) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	s.Hosts = [MaxHosts]string{doc.RemoteHost1, doc.RemoteHost2, doc.RemoteHost3}
	s.PIN = doc.ConfigPIN
	return nil
}

// HostsFrom copies up to MaxHosts entries into a host array.
func HostsFrom(hosts []string) [MaxHosts]string {
	var result [MaxHosts]string
	copy(result[:], hosts)
	return result
}

// Store persists Settings.
type Store interface {
	Load() (Settings, error)
	Save(Settings) error
	Delete() error
}

// Ensure File implements Store.
var _ Store = (*File)(nil)

// File stores settings as a JSON document in a data directory.
type File struct {
	path string
}

// Open prepares the data directory. Failure here means the storage
// subsystem is unusable.
func Open(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return &File{path: filepath.Join(dir, FileName)}, nil
}

// Path returns the settings file path.
func (f *File) Path() string {
	return f.path
}

// Load reads the settings file.
func (f *File) Load() (Settings, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Settings{}, ErrNotFound
		}
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}

	return s, nil
}

// Save writes the settings file atomically.
func (f *File) Save(s Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".settings-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}

	return nil
}

// Delete removes the settings file. Deleting missing settings is not an error.
func (f *File) Delete() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete settings: %w", err)
	}
	return nil
}

// Memory is an in-memory Store that counts calls. Intended for tests.
type Memory struct {
	Settings *Settings
	SaveErr  error
	Deletes  int
	Saves    int
}

// Load returns the held settings or ErrNotFound.
func (m *Memory) Load() (Settings, error) {
	if m.Settings == nil {
		return Settings{}, ErrNotFound
	}
	return *m.Settings, nil
}

// Save stores s unless SaveErr is set.
func (m *Memory) Save(s Settings) error {
	m.Saves++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Settings = &s
	return nil
}

// Delete forgets the held settings.
func (m *Memory) Delete() error {
	m.Deletes++
	m.Settings = nil
	return nil
}
