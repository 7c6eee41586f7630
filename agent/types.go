package agent

import "github.com/replmon/replmon/parse"

// requestMessage is a client->server message. Exactly one field is set. The
// first message of a connection must carry Start; after that, Exec, Interrupt
// and Stop may be sent.
type requestMessage struct {
	Start     *startRequest `json:",omitempty"`
	Exec      *execRequest  `json:",omitempty"`
	Interrupt bool          `json:",omitempty"`
	Stop      bool          `json:",omitempty"`
}

type startRequest struct {
	// Command is the shell command launching the interpreter.
	Command string
	// WD is the interpreter's working directory. Empty means the server's.
	WD string
	// Verbose turns on raw protocol line logging server-side.
	Verbose bool
}

type execRequest struct {
	// ID correlates the exec with its Line and Done responses. The client
	// chooses it; uuids are a good choice.
	ID      string
	Command string
}

// responseMessage is a server->client message. Exactly one field is set.
type responseMessage struct {
	Started *startedMessage `json:",omitempty"`
	Line    *lineMessage    `json:",omitempty"`
	Done    *doneMessage    `json:",omitempty"`
}

type startedMessage struct {
	SessionID string
	Loads     []parse.Load
	// Err is set if the session could not be started; the server closes the
	// connection after sending it.
	Err string `json:",omitempty"`
}

// lineMessage carries one live output line of the in-flight exec.
type lineMessage struct {
	ID   string
	Line string
}

type doneMessage struct {
	ID string
	// Lines is the buffered result: stdout batch then stderr batch.
	Lines []string
	// UnexpectedExit reports that the interpreter died running this exec.
	UnexpectedExit bool
}
