package session

import (
	"fmt"

	"github.com/replmon/replmon/parse"
)

// UnexpectedExitError reports that an interpreter stream closed while a
// command was awaiting its result. The session is no longer usable for new
// commands once this is returned.
type UnexpectedExitError struct {
	// Launch is the shell command the interpreter was started with.
	Launch string
	// Command is the command that was in flight when the stream closed.
	Command string
}

func (e *UnexpectedExitError) Error() string {
	return fmt.Sprintf("interpreter %q exited unexpectedly while running %q", e.Launch, e.Command)
}

// Execute runs one command and returns its combined output: the stdout lines
// followed by the stderr lines, with framing markers stripped. Interpreter
// diagnostics (compile errors, runtime errors) are data in the returned
// lines, not a Go error. Callers block until any prior command finishes.
func (s *Session) Execute(command string) ([]string, error) {
	return s.run(command, nil)
}

// ExecuteStream runs one command, invoking echo for each output line as it
// arrives, interleaved across the two streams in arrival order. The returned
// lines are the same buffered result Execute produces.
func (s *Session) ExecuteStream(command string, echo func(line string)) ([]string, error) {
	return s.run(command, echo)
}

// ShowModules lists the interpreter's loaded modules.
func (s *Session) ShowModules() ([]parse.Module, error) {
	lines, err := s.Execute(s.profile.ShowModules)
	if err != nil {
		return nil, err
	}
	return parse.ParseShowModules(lines), nil
}

// Reload re-loads the interpreter's modules and returns the parsed
// diagnostics.
func (s *Session) Reload() ([]parse.Load, error) {
	lines, err := s.Execute(s.profile.Reload)
	if err != nil {
		return nil, err
	}
	return parse.ParseLoad(lines), nil
}

// run writes the command plus the two trailer statements, then blocks until
// both consumers deliver their batches. The print trailer puts the finish
// marker on stdout; the failing trailer puts it on stderr, so both streams
// terminate their batch regardless of what the command itself wrote.
func (s *Session) run(command string, echo func(line string)) ([]string, error) {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	s.sink.set(echo)
	defer s.sink.set(nil)

	s.inFlight.Store(true)
	err := s.send(
		command,
		s.profile.Print(finishMarker),
		s.profile.Fail(finishMarker),
	)
	if err != nil {
		// A write failure means the interpreter is gone; the consumers will
		// observe end-of-stream and resolve the slots below.
		s.log.Debugf("writing command: %s", err)
	}

	out, outOK := s.stdout.slot.take()
	errLines, errOK := s.stderr.slot.take()
	s.inFlight.Store(false)

	if !outOK || !errOK {
		return nil, &UnexpectedExitError{Launch: s.launch, Command: command}
	}
	return append(out, errLines...), nil
}
