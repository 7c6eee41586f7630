/*
Package agent provides a client and server giving remote access to one
interpreter session over a WebSocket, so that an editor or build tool on the
other end of a socket can drive the same execute/interrupt/stop surface the
session package offers locally.

There are two messages in this protocol: "request" messages are sent
client->server, and "response" messages are sent server->client. The schema
for these messages is described in types.go.

The protocol proceeds as follows:

 1. The client opens a WebSocket connection with the server.
 2. The client sends a request message containing a Start body naming the
    interpreter launch command and optionally a working directory.
 3. The server starts the session and replies with a Started body carrying the
    session ID and the initial load diagnostics.
 4. The client sends Exec bodies, one in flight at a time. The server streams
    Line bodies as output arrives and finishes each exec with a Done body
    carrying the buffered result. Interrupt bodies may be sent at any time and
    are applied to the in-flight command.
 5. A Stop body, or closing the connection, stops the session.

Sessions are scoped to the WebSocket connection: if the connection dies for
any reason, the interpreter is stopped. This is not a general RPC layer; it
carries exactly one session with one command in flight, mirroring the
discipline of the session package.
*/
package agent
