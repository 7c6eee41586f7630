package netutil

import (
	"fmt"
	"net"
)

// EphemeralPort asks the kernel for a free TCP port. There is a window
// between returning and binding it in which another process could grab it;
// callers are tests that tolerate the rare collision.
func EphemeralPort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, fmt.Errorf("resolving localhost:0: %w", err)
	}
	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("listening to acquire port: %w", err)
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}
