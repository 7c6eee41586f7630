// Package testrepl provides a cooperative fake interpreter for tests: a tiny
// line-oriented shell loop that echoes a prompt after every statement, the
// way a real interactive interpreter does.
package testrepl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/replmon/replmon/session"
)

const script = `#!/bin/sh
prompt='> '
echo 'fake repl ready'
printf '%s' "$prompt"
while IFS= read -r line; do
  case "$line" in
    "@prompt "*) prompt=${line#"@prompt "} ;;
    @nodebug) ;;
    "@echo "*) printf '%s\n' "${line#"@echo "}" ;;
    "@err "*) printf '%s\n' "${line#"@err "}" >&2 ;;
    "@both "*) arg=${line#"@both "}
      printf 'out %s\n' "$arg"
      printf 'err %s\n' "$arg" >&2 ;;
    "@sleep "*) sleep "${line#"@sleep "}" ;;
    @quit) exit 0 ;;
    @die) exit 7 ;;
    "") ;;
    *) printf 'unknown %s\n' "$line" ;;
  esac
  printf '%s' "$prompt"
done
`

// stubbornScript ignores both the quit statement and SIGINT, forcing a Stop
// to escalate all the way to a kill.
const stubbornScript = `#!/bin/sh
trap '' INT
prompt='> '
echo 'stubborn repl ready'
printf '%s' "$prompt"
while IFS= read -r line; do
  case "$line" in
    "@prompt "*) prompt=${line#"@prompt "} ;;
    "@echo "*) printf '%s\n' "${line#"@echo "}" ;;
    "@err "*) printf '%s\n' "${line#"@err "}" >&2 ;;
    *) ;;
  esac
  printf '%s' "$prompt"
done
sleep 600
`

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}
	return "sh " + path
}

// Command writes the fake interpreter and returns the shell command that
// launches it.
func Command(t *testing.T) string {
	return write(t, "fakerepl.sh", script)
}

// StubbornCommand returns a launch command for an interpreter that ignores
// quit statements and interrupts.
func StubbornCommand(t *testing.T) string {
	return write(t, "stubborn.sh", stubbornScript)
}

// Profile maps the session's command set onto the fake interpreter's
// statements.
func Profile() session.Profile {
	return session.Profile{
		SetPrompt:   func(marker string) string { return "@prompt " + marker },
		NoDebug:     "@nodebug",
		Print:       func(msg string) string { return "@echo " + msg },
		Fail:        func(msg string) string { return "@err " + msg },
		Quit:        "@quit",
		Reload:      "@echo reload done",
		ShowModules: "@echo Main             ( src/Main.hs, interpreted )",
	}
}
