// Package credentials remembers the filebox servers a user connects to.
//
// A profile names a server address and the username to log in with, so that
// "filebox shell" works without flags. Passwords are never stored: the
// protocol has no tokens, and a session must send the password each time.
package credentials

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigDir is the directory under the user config home.
	DefaultConfigDir = "filebox"
	// ConfigFileName is the profile file inside DefaultConfigDir.
	ConfigFileName = "profiles.yaml"

	DirPermissions  = 0700
	FilePermissions = 0600
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrNoCurrent       = errors.New("no current profile - run 'filebox profile add' first")
	ErrInvalidAddress  = errors.New("address must be host:port")
)

// Profile is one remembered server.
type Profile struct {
	Address  string    `json:"address" yaml:"address"`
	Username string    `json:"username,omitempty" yaml:"username,omitempty"`
	Banner   string    `json:"banner,omitempty" yaml:"banner,omitempty"`
	LastUsed time.Time `json:"last_used,omitempty" yaml:"last_used,omitempty"`
}

// Validate checks the address.
func (p *Profile) Validate() error {
	if _, _, err := net.SplitHostPort(p.Address); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, p.Address)
	}
	return nil
}

type file struct {
	Current  string              `yaml:"current,omitempty"`
	Profiles map[string]*Profile `yaml:"profiles"`
}

// Store reads and writes the profile file. Every mutation is saved
// immediately.
type Store struct {
	path string
	data file
}

// NewStore opens the profile file under $XDG_CONFIG_HOME (or ~/.config).
func NewStore() (*Store, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}
	return NewStoreAt(filepath.Join(configHome, DefaultConfigDir, ConfigFileName))
}

// NewStoreAt opens the profile file at path. A missing file is an empty
// store.
func NewStoreAt(path string) (*Store, error) {
	s := &Store{path: path, data: file{Profiles: map[string]*Profile{}}}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if s.data.Profiles == nil {
		s.data.Profiles = map[string]*Profile{}
	}
	return s, nil
}

// Path returns the profile file location.
func (s *Store) Path() string {
	return s.path
}

// Current returns the selected profile and its name.
func (s *Store) Current() (string, *Profile, error) {
	if s.data.Current == "" {
		return "", nil, ErrNoCurrent
	}
	p, ok := s.data.Profiles[s.data.Current]
	if !ok {
		return "", nil, ErrProfileNotFound
	}
	return s.data.Current, p, nil
}

// Get returns a profile by name.
func (s *Store) Get(name string) (*Profile, error) {
	p, ok := s.data.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return p, nil
}

// Names returns all profile names, sorted.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.data.Profiles))
	for name := range s.data.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set creates or replaces a profile. The first profile becomes current.
func (s *Store) Set(name string, p *Profile) error {
	if name == "" {
		return errors.New("profile name is required")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	s.data.Profiles[name] = p
	if s.data.Current == "" {
		s.data.Current = name
	}
	return s.save()
}

// Use makes name the current profile.
func (s *Store) Use(name string) error {
	if _, err := s.Get(name); err != nil {
		return err
	}
	s.data.Current = name
	return s.save()
}

// Delete removes a profile. Deleting the current one leaves none selected.
func (s *Store) Delete(name string) error {
	if _, err := s.Get(name); err != nil {
		return err
	}
	delete(s.data.Profiles, name)
	if s.data.Current == name {
		s.data.Current = ""
	}
	return s.save()
}

// Touch records that name was just used.
func (s *Store) Touch(name string, now time.Time) error {
	p, err := s.Get(name)
	if err != nil {
		return err
	}
	p.LastUsed = now
	return s.save()
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), DirPermissions); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	raw, err := yaml.Marshal(&s.data)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, FilePermissions)
}
