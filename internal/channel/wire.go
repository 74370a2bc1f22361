// Package channel implements the duplex websocket protocol between a
// drover server and a remote tool executor. The reasoning side sends
// correlated tool requests down the socket; the executor side runs
// them and sends responses back. The same socket carries the auth
// handshake, token refresh, chat traffic, and health probes.
package channel

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates envelope payloads.
type Kind string

const (
	KindAuthRequest    Kind = "auth_request"
	KindAuthResponse   Kind = "auth_response"
	KindRefreshRequest Kind = "refresh_request"
	KindChatRequest    Kind = "chat_request"
	KindChatResponse   Kind = "chat_response"
	KindToolRequest    Kind = "tool_call_request"
	KindToolResponse   Kind = "tool_call_response"
	KindPing           Kind = "health_probe"
	KindPong           Kind = "health_probe_ack"
	KindError          Kind = "error"
)

// Envelope is the framing for every message on the socket.
type Envelope struct {
	Kind Kind            `json:"kind"`
	Body json.RawMessage `json:"body,omitempty"`
}

// NewEnvelope wraps a payload.
func NewEnvelope(kind Kind, body interface{}) (Envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("channel: encoding %s: %w", kind, err)
	}
	return Envelope{Kind: kind, Body: raw}, nil
}

// Decode unmarshals the envelope body into v.
func (e Envelope) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Body, v); err != nil {
		return fmt.Errorf("channel: decoding %s: %w", e.Kind, err)
	}
	return nil
}

// AuthRequest opens a connection. It must be the first message.
type AuthRequest struct {
	APIKey   string `json:"api_key"`
	ClientID string `json:"client_id"`
}

// AuthResponse carries the issued tokens and the session bound to this
// connection. Also sent in reply to a RefreshRequest.
type AuthResponse struct {
	SessionID    string `json:"session_id,omitempty"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshRequest exchanges a refresh token for a new pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ChatRequest submits a user request to the orchestrator. It carries
// the caller's access token; the server revalidates it on every
// request rather than trusting the handshake for the connection's
// lifetime.
type ChatRequest struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	AccessToken string `json:"access_token"`
}

// ChatResponse is the terminal outcome of a chat request.
type ChatResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ToolRequest asks the executor side to run one tool. ID is a fresh
// correlation id assigned by the dispatcher, distinct from the model's
// tool call id.
type ToolRequest struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Input      json.RawMessage `json:"input"`
	DeadlineMS int64           `json:"deadline_ms,omitempty"`
}

// ToolResponse answers exactly one ToolRequest.
type ToolResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorMessage reports a protocol-level failure.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
