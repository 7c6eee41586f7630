package session

import (
	"bufio"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const maxLineBytes = 1024 * 1024

// batchSlot is a single-use rendezvous cell between a consumer and the
// executor. The consumer resolves at most one batch per command, and the
// executor always drains the slot before the next command's trailers are
// written, so no backlog can accumulate. End-of-stream is sticky: once the
// consumer closes the slot, every take returns ok=false immediately.
type batchSlot struct {
	ch chan []string
}

func newBatchSlot() *batchSlot {
	return &batchSlot{ch: make(chan []string, 1)}
}

func (s *batchSlot) deliver(lines []string) {
	s.ch <- lines
}

func (s *batchSlot) eof() {
	close(s.ch)
}

// take blocks until a batch is delivered. ok is false if the stream reached
// end-of-file instead, which means the interpreter is gone.
func (s *batchSlot) take() (lines []string, ok bool) {
	lines, ok = <-s.ch
	return lines, ok
}

// sink is the live-output destination shared between the consumer goroutines
// and the executor. The executor swaps it per command; consumers observe the
// swap on their next line.
type sink struct {
	mu sync.Mutex
	f  func(line string)
}

func (s *sink) set(f func(line string)) {
	s.mu.Lock()
	s.f = f
	s.mu.Unlock()
}

func (s *sink) emit(line string) {
	s.mu.Lock()
	f := s.f
	s.mu.Unlock()
	if f != nil {
		f(line)
	}
}

// consumer reads one output stream of the interpreter for the lifetime of the
// session, accumulating lines until a finish marker delimits a batch.
type consumer struct {
	log    *zap.SugaredLogger
	prompt string
	finish string
	echo   *sink
	slot   *batchSlot

	mu      sync.Mutex
	pending []string
}

func newConsumer(log *zap.SugaredLogger, prompt, finish string, echo *sink) *consumer {
	return &consumer{
		log:    log,
		prompt: prompt,
		finish: finish,
		echo:   echo,
		slot:   newBatchSlot(),
	}
}

// run reads lines until the stream closes. Stream closure is the only
// termination path; it signals interpreter death to any pending command.
func (c *consumer) run(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		c.line(sc.Text())
	}
	c.log.Debugw("stream closed", "Error", sc.Err())
	c.slot.eof()
}

func (c *consumer) line(l string) {
	c.log.Debugf("raw line: %q", l)

	// Lines carrying a marker are protocol noise, not command output.
	if !strings.Contains(l, c.prompt) && !strings.Contains(l, c.finish) {
		c.echo.emit(l)
	}

	if strings.Contains(l, c.finish) {
		c.mu.Lock()
		lines := c.pending
		c.pending = nil
		c.mu.Unlock()
		c.slot.deliver(lines)
		return
	}

	// The interpreter re-prints its prompt once per queued statement, so a
	// line may start with several copies of the marker.
	for strings.HasPrefix(l, c.prompt) {
		l = l[len(c.prompt):]
	}
	c.mu.Lock()
	c.pending = append(c.pending, l)
	c.mu.Unlock()
}
