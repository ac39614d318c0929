// Package supervisor manages the lifecycle of tool server child processes.
//
// A [Supervisor] takes a declarative set of [Spec] entries and starts one
// child process per entry, retrying on the next port when a server fails to
// come up, streaming child output into slog, and polling each server's
// /healthz endpoint until it is ready. Successfully started servers are
// recorded in a state file of name:port:transport lines so that clients can
// discover them without the supervisor running in the same process.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultStateFile is where StartAll records the running server set.
	DefaultStateFile = "server_state.txt"

	// maxPortAttempts bounds how many consecutive ports are tried per server.
	maxPortAttempts = 5

	defaultStartupTimeout = 10 * time.Second
	defaultStopTimeout    = 5 * time.Second
	healthPollInterval    = 100 * time.Millisecond

	// startupGrace is how long a child must stay alive before health
	// probing begins. A child that exits within the grace period is
	// treated as a failed start, typically a port already in use.
	startupGrace = 200 * time.Millisecond
)

// Spec describes one tool server the supervisor should run.
type Spec struct {
	// Name identifies the server in logs and the state file.
	Name string

	// Command is the argv to spawn. The chosen port is appended as
	// "--port N".
	Command []string

	// Port is the first port to try. When startup fails the supervisor
	// retries on Port+1, Port+2, … up to the attempt bound.
	Port int

	// Transport is recorded in the state file so clients know how to
	// connect ("stdio" or "streamable-http").
	Transport string

	// Env holds extra KEY=VALUE pairs appended to the child environment.
	Env map[string]string
}

// Status reports one running child process.
type Status struct {
	Name      string
	Port      int
	PID       int
	Transport string
}

// HealthCheck probes a started server on the given port. The default
// implementation issues GET http://127.0.0.1:<port>/healthz and succeeds on
// a 200 response.
type HealthCheck func(ctx context.Context, port int) error

// Option configures a [Supervisor].
type Option func(*Supervisor)

// WithLogger sets the logger for child output and lifecycle events.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithStateFile sets the path of the state file. Defaults to
// [DefaultStateFile] in the working directory.
func WithStateFile(path string) Option {
	return func(s *Supervisor) { s.stateFile = path }
}

// WithStartupTimeout bounds how long a server may take to answer its first
// health probe before it is considered failed.
func WithStartupTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.startupTimeout = d }
}

// WithStopTimeout bounds how long StopAll waits after SIGTERM before
// escalating to SIGKILL.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.stopTimeout = d }
}

// WithHealthCheck replaces the HTTP /healthz probe. Used by tests and by
// servers without an HTTP sidecar.
func WithHealthCheck(hc HealthCheck) Option {
	return func(s *Supervisor) { s.health = hc }
}

// Supervisor starts, monitors and stops a set of tool server processes.
type Supervisor struct {
	specs          []Spec
	logger         *slog.Logger
	stateFile      string
	startupTimeout time.Duration
	stopTimeout    time.Duration
	health         HealthCheck

	mu      sync.Mutex
	running map[string]*child
}

type child struct {
	spec Spec
	port int
	cmd  *exec.Cmd

	// done is closed once cmd.Wait returns.
	done chan struct{}
}

// New validates the server set and creates a supervisor. Nothing is spawned
// until StartAll is called.
func New(specs []Spec, opts ...Option) (*Supervisor, error) {
	if len(specs) == 0 {
		return nil, errors.New("supervisor: no servers configured")
	}
	seen := make(map[string]bool, len(specs))
	for _, sp := range specs {
		if strings.TrimSpace(sp.Name) == "" {
			return nil, errors.New("supervisor: server with empty name")
		}
		if seen[sp.Name] {
			return nil, fmt.Errorf("supervisor: duplicate server name %q", sp.Name)
		}
		seen[sp.Name] = true
		if len(sp.Command) == 0 {
			return nil, fmt.Errorf("supervisor: server %q has no command", sp.Name)
		}
		if sp.Port <= 0 {
			return nil, fmt.Errorf("supervisor: server %q has invalid port %d", sp.Name, sp.Port)
		}
	}

	s := &Supervisor{
		specs:          specs,
		logger:         slog.Default(),
		stateFile:      DefaultStateFile,
		startupTimeout: defaultStartupTimeout,
		stopTimeout:    defaultStopTimeout,
		running:        make(map[string]*child),
	}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = s.httpHealthCheck
	}
	return s, nil
}

// StartAll spawns every configured server concurrently and waits for all of
// them to either become healthy or exhaust their port attempts. Servers that
// started are recorded in the state file even when others failed; the
// returned error reports the first failure.
func (s *Supervisor) StartAll(ctx context.Context) error {
	var g errgroup.Group
	for _, sp := range s.specs {
		g.Go(func() error {
			c, err := s.startOne(ctx, sp)
			if err != nil {
				s.logger.Error("server failed to start", "server", sp.Name, "err", err)
				return err
			}
			s.mu.Lock()
			s.running[sp.Name] = c
			s.mu.Unlock()
			s.logger.Info("server started", "server", sp.Name, "port", c.port, "pid", c.cmd.Process.Pid)
			return nil
		})
	}
	startErr := g.Wait()

	if err := s.writeStateFile(); err != nil {
		return errors.Join(startErr, err)
	}
	return startErr
}

// startOne tries consecutive ports until the server process stays up and
// answers a health probe.
func (s *Supervisor) startOne(ctx context.Context, sp Spec) (*child, error) {
	var lastErr error
	for attempt := 0; attempt < maxPortAttempts; attempt++ {
		port := sp.Port + attempt
		c, err := s.spawn(sp, port)
		if err != nil {
			return nil, err
		}

		err = s.awaitHealthy(ctx, c)
		if err == nil {
			return c, nil
		}
		lastErr = err

		if processExited(c) {
			// Port likely in use, try the next one.
			s.logger.Warn("server exited during startup, retrying on next port",
				"server", sp.Name, "port", port, "err", err)
			continue
		}

		// The process is alive but never became healthy. More ports
		// will not help.
		s.stopChild(c)
		return nil, fmt.Errorf("supervisor: server %q on port %d: %w", sp.Name, port, err)
	}
	return nil, fmt.Errorf("supervisor: server %q failed on all %d ports starting at %d: %w",
		sp.Name, maxPortAttempts, sp.Port, lastErr)
}

// spawn starts the child process with the port flag appended and wires its
// stdout/stderr into the logger.
func (s *Supervisor) spawn(sp Spec, port int) (*child, error) {
	argv := append(append([]string{}, sp.Command...), "--port", strconv.Itoa(port))
	cmd := exec.Command(argv[0], argv[1:]...)
	env := append([]string{}, os.Environ()...)
	for k, v := range sp.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("supervisor: stdout pipe for %q: %w", sp.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("supervisor: stderr pipe for %q: %w", sp.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: start %q: %w", sp.Name, err)
	}

	c := &child{spec: sp, port: port, cmd: cmd, done: make(chan struct{})}
	go s.streamOutput(sp.Name, "stdout", stdout)
	go s.streamOutput(sp.Name, "stderr", stderr)
	go func() {
		_ = cmd.Wait()
		close(c.done)
	}()
	return c, nil
}

// streamOutput forwards one child stream line by line into the logger.
func (s *Supervisor) streamOutput(name, stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if stream == "stderr" {
			s.logger.Warn(line, "server", name, "stream", stream)
		} else {
			s.logger.Info(line, "server", name, "stream", stream)
		}
	}
}

// awaitHealthy waits out the startup grace period and then polls the health
// check until it succeeds, the process exits, or the startup timeout elapses.
func (s *Supervisor) awaitHealthy(ctx context.Context, c *child) error {
	deadline := time.NewTimer(s.startupTimeout)
	defer deadline.Stop()

	select {
	case <-c.done:
		return errors.New("process exited before becoming healthy")
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(startupGrace):
	}

	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		if processExited(c) {
			return errors.New("process exited before becoming healthy")
		}
		probeCtx, cancel := context.WithTimeout(ctx, healthPollInterval)
		err := s.health(probeCtx, c.port)
		cancel()
		if err == nil && !processExited(c) {
			return nil
		}
		if err == nil {
			err = errors.New("process exited after first healthy probe")
		}

		select {
		case <-c.done:
			return errors.New("process exited before becoming healthy")
		case <-deadline.C:
			return fmt.Errorf("not healthy after %s: %w", s.startupTimeout, err)
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Supervisor) httpHealthCheck(ctx context.Context, port int) error {
	url := fmt.Sprintf("http://127.0.0.1:%d/healthz", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func processExited(c *child) bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// StopAll terminates every running server concurrently. Each child gets a
// SIGTERM and, if it has not exited within the stop timeout, a SIGKILL.
func (s *Supervisor) StopAll(ctx context.Context) error {
	s.mu.Lock()
	children := make([]*child, 0, len(s.running))
	for _, c := range s.running {
		children = append(children, c)
	}
	s.running = make(map[string]*child)
	s.mu.Unlock()

	var g errgroup.Group
	for _, c := range children {
		g.Go(func() error {
			s.logger.Info("stopping server", "server", c.spec.Name, "port", c.port)
			s.stopChild(c)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// stopChild terminates one child, escalating from SIGTERM to SIGKILL.
func (s *Supervisor) stopChild(c *child) {
	if processExited(c) {
		return
	}
	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.logger.Warn("signalling server failed", "server", c.spec.Name, "err", err)
	}
	select {
	case <-c.done:
		return
	case <-time.After(s.stopTimeout):
	}
	s.logger.Warn("server did not stop in time, killing", "server", c.spec.Name)
	_ = c.cmd.Process.Kill()
	<-c.done
}

// Running returns the currently supervised servers sorted by name.
func (s *Supervisor) Running() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]Status, 0, len(s.running))
	for _, c := range s.running {
		statuses = append(statuses, Status{
			Name:      c.spec.Name,
			Port:      c.port,
			PID:       c.cmd.Process.Pid,
			Transport: c.spec.Transport,
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// writeStateFile records the running server set as name:port:transport lines.
func (s *Supervisor) writeStateFile() error {
	var sb strings.Builder
	for _, st := range s.Running() {
		fmt.Fprintf(&sb, "%s:%d:%s\n", st.Name, st.Port, st.Transport)
	}
	if err := os.WriteFile(s.stateFile, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("supervisor: write state file: %w", err)
	}
	return nil
}

// StateEntry is one line of the state file.
type StateEntry struct {
	Name      string
	Port      int
	Transport string
}

// ReadStateFile parses a state file written by a supervisor. Clients use it
// to discover running tool servers.
func ReadStateFile(path string) ([]StateEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("supervisor: read state file: %w", err)
	}

	var entries []StateEntry
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("supervisor: state file line %d malformed: %q", i+1, line)
		}
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("supervisor: state file line %d has invalid port: %q", i+1, parts[1])
		}
		entries = append(entries, StateEntry{Name: parts[0], Port: port, Transport: parts[2]})
	}
	return entries, nil
}
