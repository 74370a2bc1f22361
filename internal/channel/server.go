package channel

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/drover-ai/drover/internal/auth"
	"github.com/drover-ai/drover/internal/logging"
	"github.com/drover-ai/drover/internal/session"
)

// ChatHandler runs one user request against a session and returns the
// terminal output. The orchestrator implements it.
type ChatHandler interface {
	HandleChat(ctx context.Context, sess *session.Session, content string) (string, error)
}

// Server accepts executor connections, authenticates them, and binds
// each connection to a session as its tool transport.
type Server struct {
	guard    *auth.Guard
	sessions *session.Manager
	chat     ChatHandler
	upgrader websocket.Upgrader
	log      zerolog.Logger

	httpServer *http.Server
}

// NewServer wires a channel server.
func NewServer(guard *auth.Guard, sessions *session.Manager, chat ChatHandler) *Server {
	return &Server{
		guard:    guard,
		sessions: sessions,
		chat:     chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log: logging.For("channel.server"),
	}
}

// Handler returns the HTTP mux for the channel endpoint and the
// health probe.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/channel", s.handleChannel)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// ListenAndServe blocks serving the channel endpoint until the context
// is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	s.log.Info().Str("addr", addr).Msg("channel server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// conn is one accepted websocket with a serialized writer.
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	// subject is the authenticated client identity, set by the
	// handshake.
	subject string
}

func (c *conn) writeEnvelope(env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(env)
}

func (c *conn) writeError(code, message string) {
	env, err := NewEnvelope(KindError, ErrorMessage{Code: code, Message: message})
	if err == nil {
		c.writeEnvelope(env)
	}
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &conn{ws: ws}
	defer ws.Close()

	sess, ok := s.handshake(c)
	if !ok {
		return
	}

	dispatcher := NewDispatcher(c.writeEnvelope)
	sess.AttachTransport(dispatcher)

	s.log.Info().Str("session", sess.ID).Msg("executor connected")

	defer func() {
		// A dropped connection fails all in-flight invocations and
		// spends the client's outstanding refresh tokens; the next
		// connection starts from the API key again.
		dispatcher.Close()
		sess.DetachTransport()
		s.guard.Revoke(c.subject)
		s.sessions.Remove(sess.ID)
		s.log.Info().Str("session", sess.ID).Msg("executor disconnected")
	}()

	s.readLoop(r.Context(), c, sess, dispatcher)
}

// handshake requires an auth_request as the very first message.
func (s *Server) handshake(c *conn) (*session.Session, bool) {
	c.ws.SetReadDeadline(time.Now().Add(10 * time.Second))

	var env Envelope
	if err := c.ws.ReadJSON(&env); err != nil {
		return nil, false
	}
	if env.Kind != KindAuthRequest {
		c.writeError("auth_required", "first message must be auth_request")
		return nil, false
	}

	var req AuthRequest
	if err := env.Decode(&req); err != nil {
		c.writeError("bad_request", err.Error())
		return nil, false
	}

	pair, err := s.guard.Authenticate(req.APIKey, req.ClientID)
	if err != nil {
		s.log.Warn().Str("client", req.ClientID).Msg("authentication rejected")
		c.writeError("unauthenticated", "invalid API key")
		return nil, false
	}

	// The guard issues tokens under this subject; Revoke on disconnect
	// must use the same value.
	c.subject = req.ClientID
	if c.subject == "" {
		c.subject = "client"
	}

	sess := s.sessions.Create(req.ClientID)

	resp, err := NewEnvelope(KindAuthResponse, AuthResponse{
		SessionID:    sess.ID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
	if err != nil || c.writeEnvelope(resp) != nil {
		s.sessions.Remove(sess.ID)
		return nil, false
	}

	c.ws.SetReadDeadline(time.Time{})
	return sess, true
}

func (s *Server) readLoop(ctx context.Context, c *conn, sess *session.Session, dispatcher *Dispatcher) {
	for {
		var env Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			return
		}

		switch env.Kind {
		case KindToolResponse:
			var resp ToolResponse
			if err := env.Decode(&resp); err != nil {
				s.log.Warn().Err(err).Msg("malformed tool response")
				continue
			}
			dispatcher.HandleResponse(resp)

		case KindRefreshRequest:
			var req RefreshRequest
			if err := env.Decode(&req); err != nil {
				c.writeError("bad_request", err.Error())
				continue
			}
			pair, err := s.guard.Refresh(req.RefreshToken)
			if err != nil {
				// A bad refresh token on an authenticated channel ends
				// the connection and everything issued to the subject.
				s.guard.Revoke(c.subject)
				c.writeError("unauthenticated", "refresh rejected")
				return
			}
			resp, err := NewEnvelope(KindAuthResponse, AuthResponse{
				AccessToken:  pair.AccessToken,
				RefreshToken: pair.RefreshToken,
				ExpiresIn:    pair.ExpiresIn,
			})
			if err == nil {
				c.writeEnvelope(resp)
			}

		case KindChatRequest:
			var req ChatRequest
			if err := env.Decode(&req); err != nil {
				c.writeError("bad_request", err.Error())
				continue
			}
			identity, err := s.guard.Validate(req.AccessToken)
			if err != nil {
				// The error envelope prompts a refresh; the failed chat
				// response settles the caller waiting on this id.
				c.writeError("token_expired", "access token invalid or expired, refresh required")
				s.failChat(c, req.ID, "access token invalid or expired")
				continue
			}
			if !identity.HasScope("chat") {
				s.failChat(c, req.ID, "token lacks the chat scope")
				continue
			}
			go s.runChat(ctx, c, sess, req)

		case KindPing:
			env, err := NewEnvelope(KindPong, struct{}{})
			if err == nil {
				c.writeEnvelope(env)
			}

		default:
			s.log.Debug().Str("kind", string(env.Kind)).Msg("ignoring unexpected message")
		}
	}
}

// failChat settles one chat request with a failure outcome.
func (s *Server) failChat(c *conn, id, reason string) {
	env, err := NewEnvelope(KindChatResponse, ChatResponse{ID: id, Success: false, Error: reason})
	if err == nil {
		c.writeEnvelope(env)
	}
}

func (s *Server) runChat(ctx context.Context, c *conn, sess *session.Session, req ChatRequest) {
	if s.chat == nil {
		c.writeError("unavailable", "no chat handler configured")
		return
	}

	output, err := s.chat.HandleChat(ctx, sess, req.Content)
	resp := ChatResponse{ID: req.ID, Success: err == nil, Output: output}
	if err != nil {
		resp.Error = err.Error()
	}

	env, encErr := NewEnvelope(KindChatResponse, resp)
	if encErr == nil {
		c.writeEnvelope(env)
	}
}
