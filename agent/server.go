package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/replmon/replmon/session"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const readLimit = 1 << 20

// Server serves interpreter sessions over WebSockets, one session per
// connection.
type Server struct {
	log         *zap.SugaredLogger
	listenAddr  string
	sessionOpts []session.Option

	httpServer *http.Server
}

// ServerOption configures a Server.
type ServerOption func(s *Server)

func WithListenAddr(addr string) ServerOption {
	return func(s *Server) {
		s.listenAddr = addr
	}
}

func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		s.log = l.Named("agent").Sugar()
	}
}

// WithSessionOptions sets options applied to every session the server starts,
// e.g. a fixed interpreter profile.
func WithSessionOptions(opts ...session.Option) ServerOption {
	return func(s *Server) {
		s.sessionOpts = opts
	}
}

// NewServer constructs an agent server. It binds loopback by default; this is
// local tooling, not a hardened network service.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		log:        zap.NewNop().Sugar(),
		listenAddr: "127.0.0.1:9777",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run serves until Stop is called.
func (s *Server) Run() error {
	listener, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", s.listenAddr, err)
	}

	router := httprouter.New()
	router.GET("/healthz", s.healthz)
	router.GET("/session", s.sessionWS)

	server := &http.Server{Handler: router}
	s.httpServer = server

	s.log.Infow("agent listening", "Addr", listener.Addr().String())
	err = server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop closes the server. In-flight connections are dropped, which stops
// their sessions.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) sessionWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		s.log.Debugf("error accepting WebSocket conn: %s", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.log.Debug("accepted WebSocket conn")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	runner := &sessionRunner{
		log:    s.log.Named("session_runner"),
		conn:   wsConn,
		ctx:    ctx,
		cancel: cancel,
		opts:   s.sessionOpts,
		execCh: make(chan execRequest),
	}
	runner.run()
}

// sessionRunner owns one connection's session. A reader goroutine routes
// incoming requests; execs run sequentially on the exec goroutine so that
// interrupts can be applied while a command is in flight.
type sessionRunner struct {
	log    *zap.SugaredLogger
	conn   *websocket.Conn
	ctx    context.Context
	cancel func()
	opts   []session.Option

	sess   *session.Session
	execCh chan execRequest

	wg            sync.WaitGroup
	closeConnOnce sync.Once
}

func (r *sessionRunner) run() {
	defer r.shutdown()

	err := r.readFirstMessageAndStart()
	if err != nil {
		r.log.Debugf("error starting session: %s", err)
		r.writeStarted(&startedMessage{Err: err.Error()})
		r.close(websocket.StatusInternalError, err.Error())
		return
	}
	r.log.Debug("session started")

	r.wg.Add(2)
	go r.readMessages()
	go r.runExecs()

	r.wg.Wait()
}

func (r *sessionRunner) shutdown() {
	if r.sess != nil {
		r.sess.Stop()
	}
	r.cancel()
	r.wg.Wait()
}

func (r *sessionRunner) close(code websocket.StatusCode, reason string) {
	// websocket reason can't be above 123 chars
	if len(reason) > 100 {
		reason = reason[0:100]
	}
	r.closeConnOnce.Do(func() {
		err := r.conn.Close(code, reason)
		if err != nil {
			r.log.Debugf("error closing conn: %s", err)
		}
	})
}

func (r *sessionRunner) readFirstMessageAndStart() error {
	r.conn.SetReadLimit(readLimit)
	var msg requestMessage
	if err := wsjson.Read(r.ctx, r.conn, &msg); err != nil {
		return fmt.Errorf("reading first message: %w", err)
	}
	if msg.Start == nil {
		return errors.New("first message must carry a start request")
	}

	opts := append([]session.Option{}, r.opts...)
	opts = append(opts,
		session.WithWorkingDir(msg.Start.WD),
		session.WithVerbose(msg.Start.Verbose),
		// The agent hosts sessions for remote callers; its own SIGINT
		// handling must not be hijacked per session.
		session.WithoutSignalBridge(),
	)
	sess, loads, err := session.Start(msg.Start.Command, opts...)
	if err != nil {
		return err
	}
	r.sess = sess
	r.writeStarted(&startedMessage{SessionID: uuid.NewString(), Loads: loads})
	return nil
}

func (r *sessionRunner) writeStarted(msg *startedMessage) {
	err := wsjson.Write(r.ctx, r.conn, responseMessage{Started: msg})
	if err != nil {
		r.log.Debugf("error writing started message: %s", err)
	}
}

func (r *sessionRunner) readMessages() {
	defer r.shutdown()
	defer r.wg.Done()
	defer close(r.execCh)

	for {
		var msg requestMessage
		err := wsjson.Read(r.ctx, r.conn, &msg)
		if websocket.CloseStatus(err) != -1 {
			r.log.Debug("conn closed by client, stopping session")
			return
		}
		if err != nil {
			r.log.Debugf("message reader got error: %s", err)
			return
		}
		switch {
		case msg.Exec != nil:
			select {
			case r.execCh <- *msg.Exec:
			case <-r.ctx.Done():
				return
			}
		case msg.Interrupt:
			r.sess.Interrupt()
		case msg.Stop:
			r.close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

func (r *sessionRunner) runExecs() {
	defer r.wg.Done()

	for req := range r.execCh {
		req := req
		lines, err := r.sess.ExecuteStream(req.Command, func(line string) {
			wErr := wsjson.Write(r.ctx, r.conn, responseMessage{Line: &lineMessage{ID: req.ID, Line: line}})
			if wErr != nil {
				r.log.Debugf("error streaming line: %s", wErr)
			}
		})
		done := doneMessage{ID: req.ID, Lines: lines}
		if err != nil {
			var unexpected *session.UnexpectedExitError
			if !errors.As(err, &unexpected) {
				r.log.Debugf("exec failed: %s", err)
			}
			done.UnexpectedExit = true
		}
		if wErr := wsjson.Write(r.ctx, r.conn, responseMessage{Done: &done}); wErr != nil {
			r.log.Debugf("error writing done message: %s", wErr)
			return
		}
	}
}
