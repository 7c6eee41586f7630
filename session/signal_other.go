//go:build !unix

package session

// Never reached: hasProcessGroups is false here, so Start does not install
// the bridge.
func installSignalBridge(s *Session) {}
