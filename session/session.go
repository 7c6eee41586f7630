package session

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/replmon/replmon/parse"
	"go.uber.org/zap"
)

// Marker strings injected into the interpreter's output for framing. They are
// required to be improbable in ordinary output, not guaranteed unique: a
// legitimate line that happens to begin with the prompt marker would have the
// marker stripped.
const (
	promptMarker = "#~REPLMON-START~#"
	finishMarker = "#~REPLMON-FINISH~#"
)

// Session owns exactly one interpreter subprocess: its pipes, its process
// group, and the framing state that turns its free-form output into discrete
// per-command results. Sessions are created by Start and destroyed by Stop.
type Session struct {
	log     *zap.SugaredLogger
	launch  string
	dir     string
	profile Profile
	echo0   func(line string)
	verbose bool
	bridge  bool

	graceInterrupt time.Duration
	graceKill      time.Duration

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *consumer
	stderr *consumer
	sink   *sink

	// execMu admits one command at a time; inFlight is true strictly between
	// a command being written and its combined result being obtained. The
	// interrupt path reads and clears inFlight without taking execMu.
	execMu   sync.Mutex
	inFlight atomic.Bool

	stopOnce   sync.Once
	stopBridge func()
}

// Option configures a Session before its interpreter is spawned.
type Option func(s *Session)

// WithWorkingDir sets the interpreter's working directory.
func WithWorkingDir(dir string) Option {
	return func(s *Session) {
		s.dir = dir
	}
}

// WithLogger sets the session's logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		s.log = l.Named("session").Sugar()
	}
}

// WithEcho sets the live-output sink used while the interpreter starts up.
// After the handshake the sink is disabled; later output flows only through
// Execute and ExecuteStream.
func WithEcho(f func(line string)) Option {
	return func(s *Session) {
		s.echo0 = f
	}
}

// WithVerbose logs every raw protocol line. If no logger was configured, a
// development logger is built so the lines are actually visible.
func WithVerbose(v bool) Option {
	return func(s *Session) {
		s.verbose = v
	}
}

// WithProfile sets the interpreter command set. The default is GHCi.
func WithProfile(p Profile) Option {
	return func(s *Session) {
		s.profile = p
	}
}

// WithStopGrace overrides the shutdown escalation delays, both measured from
// the start of Stop: the process group is interrupted after interrupt and
// killed after kill.
func WithStopGrace(interrupt, kill time.Duration) Option {
	return func(s *Session) {
		s.graceInterrupt = interrupt
		s.graceKill = kill
	}
}

// WithoutSignalBridge disables forwarding of the host's interactive-interrupt
// signal to the session. Useful when one process hosts several sessions.
func WithoutSignalBridge() Option {
	return func(s *Session) {
		s.bridge = false
	}
}

// Start spawns the interpreter named by the shell command, performs the
// framing handshake, and returns the session together with the initial load
// result parsed from the interpreter's startup output.
func Start(command string, opts ...Option) (*Session, []parse.Load, error) {
	s := &Session{
		log:            zap.NewNop().Sugar(),
		launch:         command,
		profile:        GHCi(),
		bridge:         true,
		graceInterrupt: 1 * time.Second,
		graceKill:      5 * time.Second,
		sink:           &sink{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.verbose && !s.log.Desugar().Core().Enabled(zap.DebugLevel) {
		if l, err := zap.NewDevelopment(); err == nil {
			s.log = l.Named("session").Sugar()
		}
	}

	cmd := shellCommand(command)
	cmd.Dir = s.dir
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("opening stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("opening stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("opening stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting interpreter %q: %w", command, err)
	}
	s.cmd = cmd
	s.stdin = stdin

	// The startup sink must be in place before the consumers can read the
	// first banner line.
	s.sink.set(s.echo0)

	s.stdout = newConsumer(s.log.Named("stdout_consumer"), promptMarker, finishMarker, s.sink)
	s.stderr = newConsumer(s.log.Named("stderr_consumer"), promptMarker, finishMarker, s.sink)
	go s.stdout.run(stdoutPipe)
	go s.stderr.run(stderrPipe)

	// No concurrent access is possible yet, so these setup lines may bypass
	// the executor lock.
	if err := s.send(s.profile.SetPrompt(promptMarker), s.profile.NoDebug); err != nil {
		s.log.Debugf("writing setup statements: %s", err)
	}

	if hasProcessGroups && s.bridge {
		installSignalBridge(s)
	}

	// One throwaway exchange flushes startup banner text through the framing
	// protocol and yields the initial load result.
	lines, err := s.run("", s.echo0)
	if err != nil {
		s.cmd.Wait()
		if s.stopBridge != nil {
			s.stopBridge()
		}
		return nil, nil, fmt.Errorf("interpreter handshake: %w", err)
	}
	return s, parse.ParseLoad(lines), nil
}

// Interrupt asks the interpreter to abandon the current evaluation by
// signaling its process group. If no command is in flight this is a no-op.
// Delivery is best-effort: the waiting Execute call is not unblocked; the
// interpreter is expected to react by printing the finish markers it was
// already instructed to print, or by dying.
func (s *Session) Interrupt() {
	if s.inFlight.CompareAndSwap(true, false) {
		s.log.Debugw("interrupting process group", "Pid", s.cmd.Process.Pid)
		if err := interruptGroup(s.cmd); err != nil {
			s.log.Debugf("interrupt failed: %s", err)
		}
	}
}

// Stop shuts the session down and reaps the interpreter. It prefers a
// cooperative quit, escalating on a timer to a process-group interrupt and
// then a kill so that total shutdown latency stays bounded even when the
// interpreter ignores the quit statement. Stop is idempotent.
func (s *Session) Stop() {
	s.stopOnce.Do(s.stop)
}

func (s *Session) stop() {
	done := make(chan struct{})
	go func() {
		select {
		case <-done:
			return
		case <-time.After(s.graceInterrupt):
		}
		if err := interruptGroup(s.cmd); err != nil {
			s.log.Debugf("shutdown interrupt failed: %s", err)
		}
		delay := s.graceKill - s.graceInterrupt
		if delay < 0 {
			delay = 0
		}
		select {
		case <-done:
			return
		case <-time.After(delay):
		}
		if err := killGroup(s.cmd); err != nil {
			s.log.Debugf("shutdown kill failed: %s", err)
		}
	}()

	// The quit statement normally closes the streams mid-exchange, so the
	// resulting unexpected-exit error is the success path here.
	if _, err := s.Execute(s.profile.Quit); err != nil {
		s.log.Debugw("quit statement finished", "Error", err)
	}

	err := s.cmd.Wait()
	close(done)
	s.log.Debugw("interpreter reaped", "Error", err)
	if s.stopBridge != nil {
		s.stopBridge()
	}
}

func (s *Session) send(statements ...string) error {
	for _, stmt := range statements {
		if _, err := io.WriteString(s.stdin, stmt+"\n"); err != nil {
			return fmt.Errorf("writing statement: %w", err)
		}
	}
	return nil
}
