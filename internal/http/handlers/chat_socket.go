package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/innervoice/guide-ai-platform/internal/agent"
	"github.com/innervoice/guide-ai-platform/internal/voice"
	"github.com/innervoice/guide-ai-platform/pkg/logging"
)

// ChatSocketHandler serves realtime chat over WebSocket. One connection is
// bound to one thread; turns go through the same serialized chat path as the
// REST endpoint. When a voice client is configured and the client connects
// with an agent parameter, assistant turns for voice-enabled agents are also
// spoken through a realtime voice session.
type ChatSocketHandler struct {
	svc    *agent.Service
	voice  *voice.Client
	logger *logging.Logger

	mu    sync.RWMutex
	conns map[string]*websocket.Conn // threadID -> active connection
}

// InboundFrame is what the client sends.
type InboundFrame struct {
	Type string `json:"type"` // "message", "ping"
	Text string `json:"text,omitempty"`
}

// OutboundFrame is what we send to the client.
type OutboundFrame struct {
	Type      string `json:"type"` // "message", "typing", "audio", "error", "pong"
	Text      string `json:"text,omitempty"`
	Role      string `json:"role,omitempty"`
	Model     string `json:"model,omitempty"`
	Audio     string `json:"audio,omitempty"` // base64 PCM chunk
	Timestamp string `json:"timestamp,omitempty"`
}

// NewChatSocketHandler wires the chat socket. The voice client is optional;
// without it connections are text-only.
func NewChatSocketHandler(svc *agent.Service, voiceClient *voice.Client, logger *logging.Logger) *ChatSocketHandler {
	if svc == nil {
		panic("handlers: agent service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatSocketHandler{svc: svc, voice: voiceClient, logger: logger, conns: make(map[string]*websocket.Conn)}
}

// HandleWebSocket upgrades GET /chat/socket?thread=...&agent=...
func (h *ChatSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serve(conn, r)
	}).ServeHTTP(w, r)
}

func (h *ChatSocketHandler) serve(conn *websocket.Conn, r *http.Request) {
	threadID := strings.TrimSpace(r.URL.Query().Get("thread"))
	if threadID == "" {
		_ = websocket.JSON.Send(conn, OutboundFrame{Type: "error", Text: "missing thread parameter"})
		return
	}

	h.mu.Lock()
	h.conns[threadID] = conn
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		if h.conns[threadID] == conn {
			delete(h.conns, threadID)
		}
		h.mu.Unlock()
	}()

	h.logger.Info("chat socket opened", "thread_id", threadID)

	speech := h.openVoiceSession(conn, r)
	if speech != nil {
		defer speech.Close()
	}

	turn := 0
	for {
		var frame InboundFrame
		if err := websocket.JSON.Receive(conn, &frame); err != nil {
			h.logger.Debug("chat socket closed", "thread_id", threadID, "error", err)
			return
		}

		if frame.Type == "ping" {
			_ = websocket.JSON.Send(conn, OutboundFrame{Type: "pong"})
			continue
		}
		if frame.Type != "message" || strings.TrimSpace(frame.Text) == "" {
			continue
		}

		_ = websocket.JSON.Send(conn, OutboundFrame{Type: "typing"})

		result, err := h.svc.Chat(r.Context(), threadID, frame.Text)
		if err != nil {
			_ = websocket.JSON.Send(conn, OutboundFrame{Type: "error", Text: chatErrorText(err)})
			continue
		}
		_ = websocket.JSON.Send(conn, OutboundFrame{
			Type:      "message",
			Role:      "assistant",
			Text:      result.Reply,
			Model:     result.Model,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})

		if speech != nil {
			turn++
			if err := speech.Say(fmt.Sprintf("%s:%d", threadID, turn), result.Reply); err != nil {
				h.logger.Warn("voice turn not spoken", "thread_id", threadID, "error", err)
			}
		}
	}
}

// openVoiceSession starts the speech leg when the connection names a
// voice-enabled agent. Any failure degrades the socket to text-only.
func (h *ChatSocketHandler) openVoiceSession(conn *websocket.Conn, r *http.Request) *voice.Session {
	agentID := strings.TrimSpace(r.URL.Query().Get("agent"))
	if h.voice == nil || agentID == "" {
		return nil
	}

	contract, err := h.svc.GetAgent(r.Context(), agentID)
	if err != nil || !contract.Configuration.VoiceEnabled {
		return nil
	}

	session, err := h.voice.Open(r.Context(), contract.TenantID, contract.ID, contract.Voice)
	if err != nil {
		h.logger.Warn("voice session not opened", "agent_id", agentID, "error", err)
		return nil
	}

	go func() {
		for event := range session.Events() {
			switch event.Type {
			case "audio":
				_ = websocket.JSON.Send(conn, OutboundFrame{Type: "audio", Audio: event.Audio})
			case "error":
				h.logger.Warn("voice session error", "agent_id", agentID, "message", event.Message)
			}
		}
	}()
	return session
}

func chatErrorText(err error) string {
	switch {
	case agent.IsValidation(err):
		return err.Error()
	case isCompletionUnavailable(err):
		return "the guide is temporarily unavailable, your message was saved"
	default:
		return "something went wrong"
	}
}
