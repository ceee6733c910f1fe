// Package voice maintains realtime speech sessions for voice-enabled agents.
// A session is a WebSocket connection to the speech provider: the caller
// streams text turns in and receives audio events back.
package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/innervoice/guide-ai-platform/internal/agent"
	"github.com/innervoice/guide-ai-platform/pkg/logging"
)

// ErrSessionClosed indicates the session has been closed and cannot send.
var ErrSessionClosed = errors.New("voice: session closed")

// Config holds the realtime provider connection settings.
type Config struct {
	URL         string // wss endpoint of the speech provider
	APIKey      string
	DialTimeout time.Duration
}

// Client opens realtime voice sessions against the provider.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *logging.Logger
}

// NewClient builds a realtime voice client.
func NewClient(cfg Config, logger *logging.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("voice: realtime URL is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	dialer := &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	return &Client{cfg: cfg, dialer: dialer, logger: logger}, nil
}

// sessionStart is the first frame sent on a new connection.
type sessionStart struct {
	Type     string  `json:"type"` // "session.start"
	TenantID string  `json:"tenant_id"`
	AgentID  string  `json:"agent_id"`
	VoiceID  string  `json:"voice_id"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Pitch    float64 `json:"pitch,omitempty"`
}

// speakFrame carries one text turn to be spoken.
type speakFrame struct {
	Type   string `json:"type"` // "speak"
	TurnID string `json:"turn_id"`
	Text   string `json:"text"`
}

// Event is one frame received from the provider.
type Event struct {
	Type     string  `json:"type"` // "audio", "done", "error"
	TurnID   string  `json:"turn_id,omitempty"`
	Audio    string  `json:"audio,omitempty"` // base64 PCM chunk
	Message  string  `json:"message,omitempty"`
	Duration float64 `json:"duration_seconds,omitempty"`
}

// Session is one live connection bound to a single agent's voice.
type Session struct {
	conn   *websocket.Conn
	events chan Event
	logger *logging.Logger

	mu     sync.Mutex
	closed bool
}

// Open dials the provider and starts a session for the agent's voice. The
// agent must have a voice block; callers enforce that at validation time.
func (c *Client) Open(ctx context.Context, tenantID, agentID string, voice *agent.VoiceConfig) (*Session, error) {
	if voice == nil || voice.VoiceID == "" {
		return nil, errors.New("voice: agent has no voice configuration")
	}

	header := http.Header{}
	if c.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("voice: dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("voice: dial failed: %w", err)
	}

	start := sessionStart{
		Type:     "session.start",
		TenantID: tenantID,
		AgentID:  agentID,
		VoiceID:  voice.VoiceID,
		Language: voice.Language,
		Speed:    voice.Speed,
		Pitch:    voice.Pitch,
	}
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return nil, fmt.Errorf("voice: failed to start session: %w", err)
	}

	s := &Session{
		conn:   conn,
		events: make(chan Event, 16),
		logger: c.logger,
	}
	go s.readLoop()

	c.logger.Info("voice: session opened", "tenant_id", tenantID, "agent_id", agentID, "voice_id", voice.VoiceID)
	return s, nil
}

// Say streams one text turn to the provider. Audio arrives on Events.
func (s *Session) Say(turnID, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("voice: text cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if err := s.conn.WriteJSON(speakFrame{Type: "speak", TurnID: turnID, Text: text}); err != nil {
		return fmt.Errorf("voice: failed to send turn: %w", err)
	}
	return nil
}

// Events delivers provider frames in arrival order. The channel closes when
// the connection ends.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Close ends the session. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}

func (s *Session) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.logger.Debug("voice: connection closed", "error", err)
			}
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn("voice: dropping malformed frame", "error", err)
			continue
		}
		s.events <- ev
	}
}
