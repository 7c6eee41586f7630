/*
Package session manages an interactive session with a long-lived, line-oriented
read-eval-print interpreter over its stdin/stdout/stderr pipes.

The interpreter offers no message framing, no request IDs, and no out-of-band
control channel, so the session invents its own framing on top of the two
output streams. At startup the interpreter's prompt is changed to a marker
string that is improbable in ordinary output. Every command is followed by two
trailer statements: one that prints a finish marker to stdout, and one that
fails with the finish marker as its message so that the marker also reaches
stderr. A consumer goroutine per stream accumulates lines until it sees the
finish marker, then hands the accumulated batch to the waiting executor. The
two batches (stdout first, then stderr) form the command's result.

The protocol proceeds as follows:

 1. Start spawns the interpreter in its own process group with piped stdio.
 2. Start sends a statement changing the prompt to the start marker, and a
    statement disabling break-on-error debugging (injected failing trailer
    statements must not drop the interpreter into a nested debug prompt).
 3. Start executes one empty command to flush any startup banner through the
    framing protocol; the flushed lines are parsed as the initial load result.
 4. Each Execute call, under a lock admitting one command at a time, writes the
    command plus the two trailer statements and blocks until both stream
    consumers deliver their batches.
 5. Stop sends the quit statement, escalates to a process-group interrupt and
    then a kill on a timer, and reaps the interpreter.

If a stream reaches end-of-file while a command is awaiting its batch, the
interpreter died; the command fails with an UnexpectedExitError and the
session is unusable for further commands.

The initial empty command costs one full round trip even when the interpreter
printed nothing before becoming ready. That is a fixed latency cost of the
framing scheme, not avoidable without out-of-band readiness signaling.
*/
package session
