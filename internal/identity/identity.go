// Package identity remembers the last maze device a session reached Active
// with, so the next run can reconnect without a scan.
package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/mazelink/internal/device"
	"gopkg.in/yaml.v3"
)

// ErrNoIdentity is returned by Load when nothing has been saved yet.
var ErrNoIdentity = errors.New("no remembered device")

// Identity is the persisted form of a device handle.
type Identity struct {
	DeviceID string    `yaml:"device_id"`
	Name     string    `yaml:"name,omitempty"`
	SavedAt  time.Time `yaml:"saved_at"`
}

// Handle converts the identity into a persisted device handle
func (i Identity) Handle() device.Handle {
	return device.HandleFromID(i.DeviceID, i.Name)
}

// Store keeps one Identity in a YAML file.
type Store struct {
	path   string
	logger *logrus.Logger
	mu     sync.Mutex

	now func() time.Time
}

// NewStore creates a store backed by path. The file is created on first Save.
func NewStore(path string, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{path: path, logger: logger, now: time.Now}
}

// Path returns the backing file location
func (s *Store) Path() string {
	return s.path
}

// Save records deviceID as the remembered device, replacing any previous one.
func (s *Store) Save(deviceID, name string) (Identity, error) {
	if strings.TrimSpace(deviceID) == "" {
		return Identity{}, fmt.Errorf("device id is empty")
	}

	id := Identity{DeviceID: deviceID, Name: name, SavedAt: s.now().UTC().Truncate(time.Second)}
	data, err := yaml.Marshal(&id)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to encode identity: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return Identity{}, fmt.Errorf("failed to create identity directory: %w", err)
	}

	// Write-then-rename keeps a crash from leaving a truncated file behind.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return Identity{}, fmt.Errorf("failed to write identity %s: %w", s.path, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return Identity{}, fmt.Errorf("failed to write identity %s: %w", s.path, err)
	}

	s.logger.WithFields(logrus.Fields{
		"device_id": deviceID,
		"path":      s.path,
	}).Debug("Remembered device")
	return id, nil
}

// Load returns the remembered device, or ErrNoIdentity.
func (s *Store) Load() (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Identity{}, ErrNoIdentity
	}
	if err != nil {
		return Identity{}, fmt.Errorf("failed to read identity %s: %w", s.path, err)
	}

	var id Identity
	if err := yaml.Unmarshal(data, &id); err != nil {
		return Identity{}, fmt.Errorf("failed to parse identity %s: %w", s.path, err)
	}
	if id.DeviceID == "" {
		return Identity{}, ErrNoIdentity
	}
	return id, nil
}

// Forget removes the remembered device. Forgetting twice is not an error.
func (s *Store) Forget() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to forget identity %s: %w", s.path, err)
	}
	s.logger.WithField("path", s.path).Debug("Forgot remembered device")
	return nil
}
