// Package parse turns the framed, prompt-stripped output of an interpreter
// load or reload into structured diagnostic records. All functions are pure:
// they hold no state and perform no I/O.
package parse

import (
	"regexp"
	"strconv"
	"strings"
)

// Severity classifies a diagnostic.
type Severity int

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	if s == Error {
		return "error"
	}
	return "warning"
}

// Pos is a 1-based line/column source position.
type Pos struct {
	Line int
	Col  int
}

// Load is one diagnostic parsed from a load or reload: its severity, the
// source span it points at, and the full message lines (header included).
type Load struct {
	Severity Severity
	File     string
	Pos      Pos
	PosEnd   Pos
	Message  []string
}

// Module is one loaded module as reported by the interpreter.
type Module struct {
	Name string
	File string
}

var (
	// src/Main.hs:10:5: error: ...  (the column may be a 5-8 range)
	headerPoint = regexp.MustCompile(`^(.+?):(\d+):(\d+)(?:-(\d+))?:(.*)$`)
	// src/Main.hs:(10,5)-(12,3): error: ...
	headerSpan = regexp.MustCompile(`^(.+?):\((\d+),(\d+)\)-\((\d+),(\d+)\):(.*)$`)
	// Main ( src/Main.hs, interpreted )
	moduleRow = regexp.MustCompile(`^([A-Za-z][\w.']*)\s+\(\s*(.+?),`)
)

// ParseLoad parses the diagnostics out of the lines produced by loading or
// reloading modules. Compiler progress lines ("[1 of 3] Compiling ...") and
// summary lines are skipped; indented lines continue the current diagnostic.
func ParseLoad(lines []string) []Load {
	var loads []Load
	cur := -1
	for _, line := range lines {
		if cur >= 0 && len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
			loads[cur].Message = append(loads[cur].Message, line)
			continue
		}
		cur = -1
		if l, ok := parseHeader(line); ok {
			loads = append(loads, l)
			cur = len(loads) - 1
		}
	}
	return loads
}

func parseHeader(line string) (Load, bool) {
	if strings.HasPrefix(line, "<no location info>:") {
		return Load{
			Severity: severityOf(strings.TrimPrefix(line, "<no location info>:")),
			File:     "<no location info>",
			Message:  []string{line},
		}, true
	}
	if m := headerSpan.FindStringSubmatch(line); m != nil {
		return Load{
			Severity: severityOf(m[6]),
			File:     m[1],
			Pos:      Pos{Line: atoi(m[2]), Col: atoi(m[3])},
			PosEnd:   Pos{Line: atoi(m[4]), Col: atoi(m[5])},
			Message:  []string{line},
		}, true
	}
	m := headerPoint.FindStringSubmatch(line)
	if m == nil || strings.HasPrefix(m[1], "[") {
		return Load{}, false
	}
	pos := Pos{Line: atoi(m[2]), Col: atoi(m[3])}
	end := pos
	if m[4] != "" {
		end.Col = atoi(m[4])
	}
	return Load{
		Severity: severityOf(m[5]),
		File:     m[1],
		Pos:      pos,
		PosEnd:   end,
		Message:  []string{line},
	}, true
}

// severityOf inspects the text after the location. GHC emits "error:" or
// "warning: [-Wname]"; older layouts put "Warning:" there or nothing at all,
// in which case the diagnostic is an error.
func severityOf(rest string) Severity {
	rest = strings.ToLower(strings.TrimSpace(rest))
	if strings.HasPrefix(rest, "warning") {
		return Warning
	}
	return Error
}

// ParseShowModules parses the module listing produced by the interpreter's
// show-modules command, e.g. "Main ( src/Main.hs, interpreted )".
func ParseShowModules(lines []string) []Module {
	var mods []Module
	for _, line := range lines {
		if m := moduleRow.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			mods = append(mods, Module{Name: m[1], File: strings.TrimSpace(m[2])})
		}
	}
	return mods
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
