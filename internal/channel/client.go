package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/drover-ai/drover/internal/logging"
	"github.com/drover-ai/drover/internal/tools"
	"github.com/drover-ai/drover/pkg/models"
)

// Client is the executor side of the channel: it connects out to a
// drover server, authenticates with an API key, runs the local tools
// the server asks for, and can submit chat requests over the same
// socket.
type Client struct {
	ws       *websocket.Conn
	writeMu  sync.Mutex
	executor *tools.Executor
	registry *tools.Registry
	log      zerolog.Logger

	sessionID string
	apiKey    string

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	tokenExpiry  time.Time
	lastPong     time.Time

	chatMu      sync.Mutex
	chatPending map[string]chan ChatResponse

	done chan struct{}
}

// ClientConfig wires a channel client.
type ClientConfig struct {
	// URL is the websocket endpoint, e.g. ws://host:8750/channel.
	URL      string
	APIKey   string
	ClientID string
	// WorkDir roots local tool execution.
	WorkDir  string
	Registry *tools.Registry
}

// Connect dials the server and completes the auth handshake.
func Connect(ctx context.Context, cfg ClientConfig) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("channel: dialing %s: %w", cfg.URL, err)
	}

	registry := cfg.Registry
	if registry == nil {
		registry = tools.NewRegistry()
	}

	c := &Client{
		ws:          ws,
		executor:    tools.NewExecutor(cfg.WorkDir),
		registry:    registry,
		log:         logging.For("channel.client"),
		apiKey:      cfg.APIKey,
		chatPending: make(map[string]chan ChatResponse),
		lastPong:    time.Now(),
		done:        make(chan struct{}),
	}

	if err := c.handshake(cfg.APIKey, cfg.ClientID); err != nil {
		ws.Close()
		return nil, err
	}

	return c, nil
}

func (c *Client) handshake(apiKey, clientID string) error {
	env, err := NewEnvelope(KindAuthRequest, AuthRequest{APIKey: apiKey, ClientID: clientID})
	if err != nil {
		return err
	}
	if err := c.write(env); err != nil {
		return err
	}

	c.ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	var reply Envelope
	if err := c.ws.ReadJSON(&reply); err != nil {
		return fmt.Errorf("channel: reading auth reply: %w", err)
	}
	c.ws.SetReadDeadline(time.Time{})

	switch reply.Kind {
	case KindAuthResponse:
		var resp AuthResponse
		if err := reply.Decode(&resp); err != nil {
			return err
		}
		c.sessionID = resp.SessionID
		c.storeTokens(resp)
		return nil
	case KindError:
		var msg ErrorMessage
		reply.Decode(&msg)
		return fmt.Errorf("channel: authentication failed: %s", msg.Message)
	default:
		return fmt.Errorf("channel: unexpected handshake reply %q", reply.Kind)
	}
}

// SessionID returns the session the server bound this connection to.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Run processes inbound traffic until the connection drops or the
// context is canceled. It drives tool execution and token refresh.
func (c *Client) Run(ctx context.Context) error {
	go c.refreshLoop(ctx)

	defer close(c.done)
	for {
		var env Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			c.failPendingChats("connection lost")
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("channel: connection lost: %w", err)
		}

		switch env.Kind {
		case KindToolRequest:
			var req ToolRequest
			if err := env.Decode(&req); err != nil {
				c.log.Warn().Err(err).Msg("malformed tool request")
				continue
			}
			go c.runTool(ctx, req)

		case KindAuthResponse:
			var resp AuthResponse
			if err := env.Decode(&resp); err == nil {
				c.storeTokens(resp)
				c.log.Debug().Msg("tokens refreshed")
			}

		case KindChatResponse:
			var resp ChatResponse
			if err := env.Decode(&resp); err == nil {
				c.deliverChat(resp)
			}

		case KindPong:
			c.mu.Lock()
			c.lastPong = time.Now()
			c.mu.Unlock()

		case KindError:
			var msg ErrorMessage
			env.Decode(&msg)
			c.log.Warn().Str("code", msg.Code).Str("message", msg.Message).Msg("server error")
			if msg.Code == "token_expired" {
				c.sendRefresh()
			}

		default:
			c.log.Debug().Str("kind", string(env.Kind)).Msg("ignoring unexpected message")
		}
	}
}

// runTool executes one requested tool and always responds. Tools the
// catalog does not permit on this side are refused, not silently run.
func (c *Client) runTool(ctx context.Context, req ToolRequest) {
	call := models.ToolCall{ID: req.ID, Name: req.Name, Input: req.Input}

	var result models.ToolResult
	if _, known := c.registry.Lookup(req.Name); !known {
		result = models.FailedResult(req.ID, "unknown tool: "+req.Name)
	} else {
		toolCtx := ctx
		if req.DeadlineMS > 0 {
			var cancel context.CancelFunc
			toolCtx, cancel = context.WithTimeout(ctx, time.Duration(req.DeadlineMS)*time.Millisecond)
			defer cancel()
		}
		result = c.executor.Execute(toolCtx, call)
	}

	env, err := NewEnvelope(KindToolResponse, ToolResponse{
		ID:      req.ID,
		Success: result.Success,
		Output:  result.Output,
		Error:   result.Error,
	})
	if err == nil {
		if werr := c.write(env); werr != nil {
			c.log.Warn().Err(werr).Msg("failed to send tool response")
		}
	}
}

// Chat submits a request and blocks for the terminal outcome.
func (c *Client) Chat(ctx context.Context, content string) (string, error) {
	id := uuid.NewString()
	respCh := make(chan ChatResponse, 1)

	c.chatMu.Lock()
	c.chatPending[id] = respCh
	c.chatMu.Unlock()

	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()

	env, err := NewEnvelope(KindChatRequest, ChatRequest{ID: id, Content: content, AccessToken: token})
	if err == nil {
		err = c.write(env)
	}
	if err != nil {
		c.chatMu.Lock()
		delete(c.chatPending, id)
		c.chatMu.Unlock()
		return "", err
	}

	select {
	case resp := <-respCh:
		if !resp.Success {
			return resp.Output, errors.New(resp.Error)
		}
		return resp.Output, nil
	case <-c.done:
		return "", errors.New("channel: connection closed")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Ping sends a health probe.
func (c *Client) Ping() error {
	env, err := NewEnvelope(KindPing, struct{}{})
	if err != nil {
		return err
	}
	return c.write(env)
}

// Close tears the connection down.
func (c *Client) Close() error {
	return c.ws.Close()
}

func (c *Client) write(env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(env)
}

func (c *Client) storeTokens(resp AuthResponse) {
	c.mu.Lock()
	c.accessToken = resp.AccessToken
	c.refreshToken = resp.RefreshToken
	c.tokenExpiry = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	c.mu.Unlock()
}

// refreshLoop renews the token pair before the access token expires and
// probes the connection. A server that stops answering probes for two
// minutes gets the socket closed under it, which unblocks Run.
func (c *Client) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			needsRefresh := time.Until(c.tokenExpiry) < time.Minute
			silent := time.Since(c.lastPong)
			c.mu.Unlock()

			if silent > 2*time.Minute {
				c.log.Warn().Dur("silent", silent).Msg("server stopped answering probes, closing")
				c.ws.Close()
				return
			}
			if err := c.Ping(); err != nil {
				c.log.Warn().Err(err).Msg("health probe failed")
			}
			if needsRefresh {
				c.sendRefresh()
			}
		}
	}
}

func (c *Client) sendRefresh() {
	c.mu.Lock()
	token := c.refreshToken
	c.mu.Unlock()
	if token == "" {
		return
	}

	env, err := NewEnvelope(KindRefreshRequest, RefreshRequest{RefreshToken: token})
	if err == nil {
		if werr := c.write(env); werr != nil {
			c.log.Warn().Err(werr).Msg("failed to send refresh request")
		}
	}
}

func (c *Client) deliverChat(resp ChatResponse) {
	c.chatMu.Lock()
	ch, ok := c.chatPending[resp.ID]
	if ok {
		delete(c.chatPending, resp.ID)
	}
	c.chatMu.Unlock()

	if ok {
		ch <- resp
	}
}

func (c *Client) failPendingChats(reason string) {
	c.chatMu.Lock()
	pending := c.chatPending
	c.chatPending = make(map[string]chan ChatResponse)
	c.chatMu.Unlock()

	for id, ch := range pending {
		ch <- ChatResponse{ID: id, Success: false, Error: reason}
	}
}
