package supervisor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func alwaysHealthy(context.Context, int) error { return nil }

func neverHealthy(context.Context, int) error { return errors.New("no answer") }

// syncBuffer is a bytes.Buffer safe for concurrent writes from the child
// output goroutines.
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

func testLogger(buf *syncBuffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func sleepSpec(name string, port int) Spec {
	return Spec{
		Name:      name,
		Command:   []string{"/bin/sh", "-c", "sleep 60"},
		Port:      port,
		Transport: "streamable-http",
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		specs []Spec
	}{
		{name: "no servers", specs: nil},
		{name: "empty name", specs: []Spec{{Name: " ", Command: []string{"true"}, Port: 8001}}},
		{name: "no command", specs: []Spec{{Name: "weather", Port: 8001}}},
		{name: "invalid port", specs: []Spec{{Name: "weather", Command: []string{"true"}, Port: 0}}},
		{name: "duplicate name", specs: []Spec{
			{Name: "weather", Command: []string{"true"}, Port: 8001},
			{Name: "weather", Command: []string{"true"}, Port: 8002},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.specs); err == nil {
				t.Fatal("New() accepted invalid specs")
			}
		})
	}
}

func TestStartAll_HealthyServer(t *testing.T) {
	t.Parallel()

	stateFile := filepath.Join(t.TempDir(), "state.txt")
	s, err := New([]Spec{sleepSpec("weather", 8001)},
		WithLogger(testLogger(&syncBuffer{})),
		WithStateFile(stateFile),
		WithHealthCheck(alwaysHealthy),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer s.StopAll(context.Background())

	if err := s.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll() error: %v", err)
	}

	running := s.Running()
	if len(running) != 1 {
		t.Fatalf("Running() = %d servers, want 1", len(running))
	}
	if running[0].Name != "weather" || running[0].Port != 8001 {
		t.Errorf("Running()[0] = %+v, want weather on 8001", running[0])
	}
	if running[0].PID <= 0 {
		t.Errorf("Running()[0].PID = %d, want positive", running[0].PID)
	}
}

func TestStartAll_WritesStateFile(t *testing.T) {
	t.Parallel()

	stateFile := filepath.Join(t.TempDir(), "state.txt")
	s, err := New(
		[]Spec{
			sleepSpec("weather", 8001),
			{Name: "sqlquery", Command: []string{"/bin/sh", "-c", "sleep 60"}, Port: 8002, Transport: "stdio"},
		},
		WithLogger(testLogger(&syncBuffer{})),
		WithStateFile(stateFile),
		WithHealthCheck(alwaysHealthy),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer s.StopAll(context.Background())

	if err := s.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll() error: %v", err)
	}

	data, err := os.ReadFile(stateFile)
	if err != nil {
		t.Fatalf("reading state file: %v", err)
	}
	got := strings.TrimSpace(string(data))
	want := "sqlquery:8002:stdio\nweather:8001:streamable-http"
	if got != want {
		t.Errorf("state file = %q, want %q", got, want)
	}
}

func TestStartAll_RetriesNextPortWhenProcessExits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// The child exits immediately unless a marker file for its port
	// exists, simulating ports 9001 and 9002 being taken.
	if err := os.WriteFile(filepath.Join(dir, "9003"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	script := `[ -e "` + dir + `/$2" ] || exit 1; sleep 60`

	s, err := New(
		[]Spec{{
			Name:      "weather",
			Command:   []string{"/bin/sh", "-c", script, "sh"},
			Port:      9001,
			Transport: "streamable-http",
		}},
		WithLogger(testLogger(&syncBuffer{})),
		WithStateFile(filepath.Join(dir, "state.txt")),
		WithHealthCheck(alwaysHealthy),
		WithStartupTimeout(2*time.Second),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer s.StopAll(context.Background())

	if err := s.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll() error: %v", err)
	}
	running := s.Running()
	if len(running) != 1 || running[0].Port != 9003 {
		t.Fatalf("Running() = %+v, want weather on port 9003", running)
	}
}

func TestStartAll_FailsAfterAllPortAttempts(t *testing.T) {
	t.Parallel()

	s, err := New(
		[]Spec{{
			Name:      "weather",
			Command:   []string{"/bin/sh", "-c", "exit 1"},
			Port:      9101,
			Transport: "streamable-http",
		}},
		WithLogger(testLogger(&syncBuffer{})),
		WithStateFile(filepath.Join(t.TempDir(), "state.txt")),
		WithHealthCheck(neverHealthy),
		WithStartupTimeout(2*time.Second),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	err = s.StartAll(context.Background())
	if err == nil {
		t.Fatal("StartAll() succeeded for a server that always exits")
	}
	if !strings.Contains(err.Error(), "all 5 ports") {
		t.Errorf("StartAll() error = %v, want mention of exhausted ports", err)
	}
	if len(s.Running()) != 0 {
		t.Errorf("Running() = %+v, want none", s.Running())
	}
}

func TestStartAll_StopsUnhealthyServer(t *testing.T) {
	t.Parallel()

	s, err := New(
		[]Spec{sleepSpec("weather", 9201)},
		WithLogger(testLogger(&syncBuffer{})),
		WithStateFile(filepath.Join(t.TempDir(), "state.txt")),
		WithHealthCheck(neverHealthy),
		WithStartupTimeout(300*time.Millisecond),
		WithStopTimeout(time.Second),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	err = s.StartAll(context.Background())
	if err == nil {
		t.Fatal("StartAll() succeeded for a server that never answers health probes")
	}
	if !strings.Contains(err.Error(), "not healthy") {
		t.Errorf("StartAll() error = %v, want health failure", err)
	}
	if len(s.Running()) != 0 {
		t.Errorf("Running() = %+v, want none", s.Running())
	}
}

func TestStreamOutput_ChildLinesReachLogger(t *testing.T) {
	t.Parallel()

	buf := &syncBuffer{}
	s, err := New(
		[]Spec{{
			Name:      "weather",
			Command:   []string{"/bin/sh", "-c", "echo weather server listening; sleep 60"},
			Port:      9301,
			Transport: "streamable-http",
		}},
		WithLogger(testLogger(buf)),
		WithStateFile(filepath.Join(t.TempDir(), "state.txt")),
		WithHealthCheck(alwaysHealthy),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer s.StopAll(context.Background())

	if err := s.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll() error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), "weather server listening") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("child output never reached the logger, log:\n%s", buf.String())
}

func TestStopAll_TerminatesChildren(t *testing.T) {
	t.Parallel()

	s, err := New(
		[]Spec{sleepSpec("weather", 9401)},
		WithLogger(testLogger(&syncBuffer{})),
		WithStateFile(filepath.Join(t.TempDir(), "state.txt")),
		WithHealthCheck(alwaysHealthy),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := s.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll() error: %v", err)
	}

	if err := s.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll() error: %v", err)
	}
	if len(s.Running()) != 0 {
		t.Errorf("Running() after StopAll = %+v, want none", s.Running())
	}
}

func TestStopAll_KillsStubbornChild(t *testing.T) {
	t.Parallel()

	s, err := New(
		[]Spec{{
			Name:      "stubborn",
			Command:   []string{"/bin/sh", "-c", `trap "" TERM; sleep 60`},
			Port:      9501,
			Transport: "streamable-http",
		}},
		WithLogger(testLogger(&syncBuffer{})),
		WithStateFile(filepath.Join(t.TempDir(), "state.txt")),
		WithHealthCheck(alwaysHealthy),
		WithStopTimeout(200*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := s.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll() error: %v", err)
	}

	start := time.Now()
	if err := s.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("StopAll() took %s, escalation to SIGKILL seems broken", elapsed)
	}
}

func TestReadStateFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.txt")
	content := "sqlquery:8002:stdio\nweather:8001:streamable-http\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := ReadStateFile(path)
	if err != nil {
		t.Fatalf("ReadStateFile() error: %v", err)
	}
	want := []StateEntry{
		{Name: "sqlquery", Port: 8002, Transport: "stdio"},
		{Name: "weather", Port: 8001, Transport: "streamable-http"},
	}
	if len(entries) != len(want) {
		t.Fatalf("ReadStateFile() = %d entries, want %d", len(entries), len(want))
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestReadStateFile_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{name: "missing fields", content: "weather:8001\n"},
		{name: "bad port", content: "weather:eighty:streamable-http\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "state.txt")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := ReadStateFile(path); err == nil {
				t.Fatal("ReadStateFile() accepted malformed content")
			}
		})
	}
}
