package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLoad(t *testing.T) {
	lines := []string{
		"GHCi, version 9.2.7: https://www.haskell.org/ghc/  :? for help",
		"[1 of 2] Compiling Lib              ( src/Lib.hs, interpreted )",
		"src/Lib.hs:5:1: warning: [-Wunused-imports]",
		"    The import of 'Data.List' is redundant",
		"src/Lib.hs:9:12-15: error:",
		"    Variable not in scope: oops",
		"src/Main.hs:(3,1)-(4,10): error:",
		"    parse error on input",
		"<no location info>: error:",
		"    Module imports form a cycle",
		"Failed, one module loaded.",
	}

	loads := ParseLoad(lines)
	require.Len(t, loads, 4)

	assert.Equal(t, Warning, loads[0].Severity)
	assert.Equal(t, "src/Lib.hs", loads[0].File)
	assert.Equal(t, Pos{Line: 5, Col: 1}, loads[0].Pos)
	assert.Equal(t, Pos{Line: 5, Col: 1}, loads[0].PosEnd)
	assert.Len(t, loads[0].Message, 2)

	assert.Equal(t, Error, loads[1].Severity)
	assert.Equal(t, Pos{Line: 9, Col: 12}, loads[1].Pos)
	assert.Equal(t, Pos{Line: 9, Col: 15}, loads[1].PosEnd)

	assert.Equal(t, "src/Main.hs", loads[2].File)
	assert.Equal(t, Pos{Line: 3, Col: 1}, loads[2].Pos)
	assert.Equal(t, Pos{Line: 4, Col: 10}, loads[2].PosEnd)

	assert.Equal(t, "<no location info>", loads[3].File)
	assert.Equal(t, Error, loads[3].Severity)
	assert.Equal(t, []string{
		"<no location info>: error:",
		"    Module imports form a cycle",
	}, loads[3].Message)
}

func TestParseLoadOldStyleWarning(t *testing.T) {
	loads := ParseLoad([]string{
		"src/Lib.hs:12:3: Warning:",
		"    Defined but not used: helper",
	})
	require.Len(t, loads, 1)
	assert.Equal(t, Warning, loads[0].Severity)
}

func TestParseLoadBareLocationIsError(t *testing.T) {
	loads := ParseLoad([]string{
		"src/Lib.hs:7:9:",
		"    Couldn't match expected type",
	})
	require.Len(t, loads, 1)
	assert.Equal(t, Error, loads[0].Severity)
}

func TestParseLoadEmpty(t *testing.T) {
	assert.Empty(t, ParseLoad(nil))
	assert.Empty(t, ParseLoad([]string{"Ok, two modules loaded."}))
}

func TestParseShowModules(t *testing.T) {
	mods := ParseShowModules([]string{
		"Main             ( src/Main.hs, interpreted )",
		"Paths_demo       ( /abs/path/Paths_demo.hs, interpreted )",
		"not a module row",
	})
	require.Len(t, mods, 2)
	assert.Equal(t, Module{Name: "Main", File: "src/Main.hs"}, mods[0])
	assert.Equal(t, Module{Name: "Paths_demo", File: "/abs/path/Paths_demo.hs"}, mods[1])
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "warning", Warning.String())
	assert.Equal(t, "error", Error.String())
}
