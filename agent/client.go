package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/replmon/replmon/parse"
	"github.com/replmon/replmon/session"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Client drives one remote interpreter session. Start must be called first;
// after that Exec, Interrupt and Stop mirror the session package's surface.
// Exec admits one command at a time, like the session itself.
type Client struct {
	log        *zap.SugaredLogger
	baseURL    string
	httpClient *retryablehttp.Client

	conn    *websocket.Conn
	ctx     context.Context
	cancel  func()
	launch  string
	started chan startedMessage
	done    chan doneMessage

	execMu sync.Mutex

	// activeID correlates responses with the in-flight exec; Line and Done
	// messages carrying any other ID are dropped as stale.
	activeMu sync.Mutex
	activeID string
	echo     func(line string)

	closeConnOnce sync.Once
}

// ClientOption configures a Client.
type ClientOption func(c *Client)

// WithCustomizeRetryableClient customizes the HTTP client used for readiness
// probing, e.g. to lower the retry count in tests.
func WithCustomizeRetryableClient(f func(c *retryablehttp.Client)) ClientOption {
	return func(c *Client) {
		f(c.httpClient)
	}
}

// NewClient constructs a client for the agent at host:port.
func NewClient(l *zap.Logger, host string, port int, opts ...ClientOption) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	c := &Client{
		log:        l.Named("agent_client").Sugar(),
		baseURL:    fmt.Sprintf("http://%s:%d", host, port),
		httpClient: retryClient,
		started:    make(chan startedMessage, 1),
		done:       make(chan doneMessage, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// WaitForServer blocks until the agent answers its health endpoint.
func (c *Client) WaitForServer(ctx context.Context) error {
	req, err := retryablehttp.NewRequest(http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("waiting for agent: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("waiting for agent: status %d", resp.StatusCode)
	}
	return nil
}

// Start opens the WebSocket, starts the remote session, and returns the
// initial load diagnostics.
func (c *Client) Start(ctx context.Context, command, wd string) ([]parse.Load, error) {
	c.log.Debugw("dialing WebSocket for session", "URL", c.baseURL)
	wsConn, _, err := websocket.Dial(ctx, c.baseURL+"/session", &websocket.DialOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		return nil, fmt.Errorf("establishing WebSocket conn to agent: %w", err)
	}
	wsConn.SetReadLimit(readLimit)

	c.launch = command
	c.conn = wsConn
	c.ctx, c.cancel = context.WithCancel(context.Background())
	go c.readMessages()

	err = wsjson.Write(ctx, wsConn, requestMessage{
		Start: &startRequest{Command: command, WD: wd},
	})
	if err != nil {
		c.Stop(ctx)
		return nil, fmt.Errorf("writing start request: %w", err)
	}

	select {
	case msg := <-c.started:
		if msg.Err != "" {
			c.Stop(ctx)
			return nil, fmt.Errorf("starting remote session: %s", msg.Err)
		}
		c.log.Debugw("remote session started", "SessionID", msg.SessionID)
		return msg.Loads, nil
	case <-ctx.Done():
		c.Stop(ctx)
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, errors.New("conn closed before session started")
	}
}

// Exec runs one command remotely. echo may be nil; when set it receives live
// output lines in arrival order. The returned lines are the buffered result,
// stdout batch then stderr batch.
func (c *Client) Exec(ctx context.Context, command string, echo func(line string)) ([]string, error) {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	// An exec that returned early on context expiry may have left its Done
	// message buffered after it matched the then-active ID.
	select {
	case stale := <-c.done:
		c.log.Debugw("discarding stale done message", "ID", stale.ID)
	default:
	}

	id := uuid.NewString()
	c.setActive(id, echo)
	defer c.setActive("", nil)
	err := wsjson.Write(ctx, c.conn, requestMessage{
		Exec: &execRequest{ID: id, Command: command},
	})
	if err != nil {
		return nil, fmt.Errorf("writing exec request: %w", err)
	}

	select {
	case msg := <-c.done:
		if msg.UnexpectedExit {
			return nil, &session.UnexpectedExitError{Launch: c.launch, Command: command}
		}
		return msg.Lines, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, &session.UnexpectedExitError{Launch: c.launch, Command: command}
	}
}

// Interrupt asks the agent to interrupt the in-flight command. Best-effort,
// like the local operation it mirrors.
func (c *Client) Interrupt(ctx context.Context) error {
	return wsjson.Write(ctx, c.conn, requestMessage{Interrupt: true})
}

// Stop stops the remote session and closes the connection. Idempotent.
func (c *Client) Stop(ctx context.Context) {
	if c.conn == nil {
		return
	}
	c.closeConnOnce.Do(func() {
		if err := wsjson.Write(ctx, c.conn, requestMessage{Stop: true}); err != nil {
			c.log.Debugf("error writing stop request: %s", err)
		}
		if err := c.conn.Close(websocket.StatusNormalClosure, ""); err != nil {
			c.log.Debugf("error closing conn: %s", err)
		}
		c.cancel()
	})
}

func (c *Client) setActive(id string, echo func(line string)) {
	c.activeMu.Lock()
	c.activeID = id
	c.echo = echo
	c.activeMu.Unlock()
}

func (c *Client) readMessages() {
	defer c.cancel()
	for {
		var msg responseMessage
		err := wsjson.Read(c.ctx, c.conn, &msg)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				c.log.Debugf("message reader got error: %s", err)
			}
			return
		}
		switch {
		case msg.Started != nil:
			c.started <- *msg.Started
		case msg.Line != nil:
			c.activeMu.Lock()
			echo := c.echo
			match := msg.Line.ID == c.activeID
			c.activeMu.Unlock()
			if match && echo != nil {
				echo(msg.Line.Line)
			}
		case msg.Done != nil:
			c.activeMu.Lock()
			match := msg.Done.ID == c.activeID
			c.activeMu.Unlock()
			if !match {
				c.log.Debugw("dropping stale done message", "ID", msg.Done.ID)
				continue
			}
			c.done <- *msg.Done
		}
	}
}
