package session

import "strconv"

// Profile describes the wire-level command set of an interpreter: how to
// change its prompt, print a literal string, fail with a literal message, and
// so on. All statements must work without additional imports on the
// interpreter side.
type Profile struct {
	// SetPrompt returns a statement that changes the interpreter's displayed
	// prompt to the given marker.
	SetPrompt func(marker string) string

	// NoDebug is a statement disabling any break-on-exception/break-on-error
	// behavior, so the injected failing trailer statements do not drop the
	// interpreter into a nested debug prompt.
	NoDebug string

	// Print returns a statement printing msg followed by a newline to the
	// interpreter's stdout.
	Print func(msg string) string

	// Fail returns a statement that raises an error carrying msg, which the
	// interpreter reports on stderr.
	Fail func(msg string) string

	// Quit exits the interpreter.
	Quit string

	// Reload re-loads the current set of modules.
	Reload string

	// ShowModules lists the loaded modules and their file paths.
	ShowModules string
}

// GHCi returns the profile for the GHC interactive interpreter. strconv.Quote
// produces the double-quoted, escaped string literals GHCi expects.
func GHCi() Profile {
	return Profile{
		SetPrompt: func(marker string) string {
			return ":set prompt " + strconv.Quote(marker)
		},
		NoDebug: ":set -fno-break-on-exception -fno-break-on-error",
		Print: func(msg string) string {
			return "Prelude.putStrLn " + strconv.Quote(msg)
		},
		Fail: func(msg string) string {
			return "Prelude.error " + strconv.Quote(msg)
		},
		Quit:        ":quit",
		Reload:      ":reload",
		ShowModules: ":show modules",
	}
}
