//go:build unix

package session

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// installSignalBridge forwards the host's interactive interrupt to the
// session. The interpreter shares the controlling terminal, so a Ctrl-C would
// otherwise race between the host and the interpreter: the bridge interrupts
// and stops the managed interpreter first, then re-raises the signal so the
// host's own default handling still occurs.
func installSignalBridge(s *Session) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)

	var once sync.Once
	uninstall := func() {
		once.Do(func() {
			signal.Stop(ch)
			close(ch)
		})
	}
	s.stopBridge = uninstall

	go func() {
		_, ok := <-ch
		if !ok {
			return
		}
		s.log.Debug("interrupt signal received, stopping interpreter")
		s.Interrupt()
		s.Stop()
		uninstall()
		syscall.Kill(os.Getpid(), syscall.SIGINT)
	}()
}
