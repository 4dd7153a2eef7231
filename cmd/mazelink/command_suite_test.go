package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/mazelink/internal/session"
	"github.com/srg/mazelink/internal/summary"
	"github.com/srg/mazelink/internal/testutils"
)

// Test device addresses for consistent fake device identification
const (
	mazeAddr  = "AA:BB:CC:DD:EE:01"
	mazeName  = "MazeChallenge_01"
	mazeAddr2 = "AA:BB:CC:DD:EE:02"
	mazeName2 = "MazeChallenge_02"
	otherAddr = "11:22:33:44:55:66"
)

// fakeRadio lets a FakeTransport stand in for the platform radio.
type fakeRadio struct {
	*testutils.FakeTransport
}

func (fakeRadio) Close() error { return nil }

// syncBuffer is a bytes.Buffer safe to read while a command is still writing.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeBackend records posted game records and serves them back on GET.
type fakeBackend struct {
	mu      sync.Mutex
	status  int
	records []summary.Record
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if b.status != 0 {
		w.WriteHeader(b.status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": http.StatusText(b.status)})
		return
	}

	switch r.Method {
	case http.MethodPost:
		var rec summary.Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		rec.ID = int64(len(b.records) + 1)
		b.records = append(b.records, rec)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(rec)
	case http.MethodGet:
		id := r.URL.Query().Get("device_id")
		out := []summary.Record{}
		for _, rec := range b.records {
			if rec.DeviceID == id {
				out = append(out, rec)
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (b *fakeBackend) setStatus(code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = code
}

func (b *fakeBackend) Records() []summary.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]summary.Record(nil), b.records...)
}

// CommandSuite runs mazelink commands against a fake radio, a fake backend
// and a throwaway config directory. All cmd/mazelink suites embed it.
type CommandSuite struct {
	testutils.TransportSuite

	Dir        string
	ConfigPath string
	Link       *testutils.FakeLink
	Backend    *fakeBackend

	server      *httptest.Server
	restoreOpen func(*logrus.Logger) (radio, error)
}

func (s *CommandSuite) SetupTest() {
	s.TransportSuite.SetupTest()

	s.Dir = s.T().TempDir()
	s.Link = s.NewMazeLink(mazeAddr)
	s.Transport.AddLink(s.Link)
	s.Transport.Advertise(testutils.NewAdvertisement(mazeAddr, mazeName, -55))

	s.Backend = &fakeBackend{}
	s.server = httptest.NewServer(s.Backend)

	s.ConfigPath = filepath.Join(s.Dir, "mazelink.yaml")
	s.WriteConfig("")

	s.restoreOpen = newRadio
	s.UseTransport(s.Transport)

	s.resetFlags()
}

func (s *CommandSuite) TearDownTest() {
	newRadio = s.restoreOpen
	s.server.Close()
}

// UseTransport makes commands open t as their radio.
func (s *CommandSuite) UseTransport(t *testutils.FakeTransport) {
	s.Transport = t
	newRadio = func(*logrus.Logger) (radio, error) {
		return fakeRadio{t}, nil
	}
}

// NewMazeLink creates a fake link exposing the maze profile.
func (s *CommandSuite) NewMazeLink(addr string) *testutils.FakeLink {
	p := session.DefaultProfile()
	return testutils.NewFakeLink(addr, p.Service, p.Timer, p.Status, p.Control)
}

// WriteConfig writes the suite config file, appending extra YAML.
func (s *CommandSuite) WriteConfig(extra string) {
	cfg := fmt.Sprintf(`log_level: error
session:
  scan_window: 200ms
  connect_timeout: 500ms
retry:
  max_attempts: 2
  initial_delay: 10ms
  max_delay: 20ms
identity:
  file: %s
outbox:
  path: %s
backend:
  url: %s
  timeout: 2s
`, filepath.Join(s.Dir, "device.yaml"), filepath.Join(s.Dir, "outbox.db"), s.server.URL)

	s.Require().NoError(os.WriteFile(s.ConfigPath, []byte(cfg+extra), 0o600), "config MUST be written")
}

// resetFlags restores command flags that earlier tests may have set.
func (s *CommandSuite) resetFlags() {
	scanDuration = 0
	scanFormat = "table"
	scanAll = false

	watchDevice = ""
	watchRescan = false
	watchFeed = ""
	watchNoUpload = false
	watchUntilDone = false
	watchReconnects = 3

	sendDevice = ""
	sendRescan = false

	_ = rootCmd.PersistentFlags().Set("log-level", "")
	_ = rootCmd.PersistentFlags().Set("verbose", "false")
}

// ExecuteCommand runs mazelink with args and the suite config, returning the output.
func (s *CommandSuite) ExecuteCommand(args ...string) (string, error) {
	out := &syncBuffer{}
	err := s.execute(context.Background(), out, args...)
	return out.String(), err
}

// StartCommand runs mazelink in the background. The returned channel
// yields the command error once it exits.
func (s *CommandSuite) StartCommand(ctx context.Context, args ...string) (*syncBuffer, <-chan error) {
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- s.execute(ctx, out, args...)
	}()
	return out, done
}

func (s *CommandSuite) execute(ctx context.Context, out *syncBuffer, args ...string) error {
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(append(args, "--config", s.ConfigPath))
	// cobra keeps the first context a subcommand ran with
	for _, c := range rootCmd.Commands() {
		c.SetContext(ctx)
	}
	return rootCmd.ExecuteContext(ctx)
}

// AwaitExit waits for a background command to finish.
func (s *CommandSuite) AwaitExit(done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-time.After(s.TestTimeout):
		s.FailNow("command MUST exit in time")
		return nil
	}
}

// RememberDevice stores a remembered device the way a finished watch would.
func (s *CommandSuite) RememberDevice(addr, name string) {
	data := fmt.Sprintf("device_id: %q\nname: %q\nsaved_at: 2025-03-01T12:00:00Z\n", addr, name)
	s.Require().NoError(os.WriteFile(filepath.Join(s.Dir, "device.yaml"), []byte(data), 0o600))
}
