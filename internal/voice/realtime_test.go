package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/innervoice/guide-ai-platform/internal/agent"
)

var upgrader = websocket.Upgrader{}

// fakeProvider echoes one audio frame and a done frame per speak turn.
func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var start sessionStart
		if err := conn.ReadJSON(&start); err != nil {
			return
		}
		if start.Type != "session.start" || start.VoiceID == "" {
			t.Errorf("unexpected start frame: %+v", start)
		}

		for {
			var frame speakFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			_ = conn.WriteJSON(Event{Type: "audio", TurnID: frame.TurnID, Audio: "cGNtLWRhdGE="})
			_ = conn.WriteJSON(Event{Type: "done", TurnID: frame.TurnID, Duration: 1.5})
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testVoice() *agent.VoiceConfig {
	return &agent.VoiceConfig{Provider: "elevenlabs", VoiceID: "voice-1", Language: "en", Speed: 1.0}
}

func TestSessionSpeakRoundTrip(t *testing.T) {
	srv := fakeProvider(t)
	defer srv.Close()

	client, err := NewClient(Config{URL: wsURL(srv), APIKey: "test-key"}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	session, err := client.Open(context.Background(), "tenant-a", "agent-1", testVoice())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Close()

	if err := session.Say("turn-1", "I am a runner."); err != nil {
		t.Fatalf("Say: %v", err)
	}

	var got []Event
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev, ok := <-session.Events():
			if !ok {
				t.Fatalf("events closed early, got %d frames", len(got))
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d frames", len(got))
		}
	}

	if got[0].Type != "audio" || got[0].TurnID != "turn-1" || got[0].Audio == "" {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].Type != "done" || got[1].Duration != 1.5 {
		t.Errorf("second event = %+v", got[1])
	}
}

func TestSessionSayValidation(t *testing.T) {
	srv := fakeProvider(t)
	defer srv.Close()

	client, err := NewClient(Config{URL: wsURL(srv), APIKey: "test-key"}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	session, err := client.Open(context.Background(), "tenant-a", "agent-1", testVoice())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := session.Say("turn-1", "   "); err == nil {
		t.Error("expected error for blank text")
	}

	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := session.Say("turn-2", "hello"); err != ErrSessionClosed {
		t.Errorf("Say after close = %v, want ErrSessionClosed", err)
	}
	// Close is idempotent.
	if err := session.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestOpenRequiresVoice(t *testing.T) {
	client, err := NewClient(Config{URL: "ws://localhost:1"}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Open(context.Background(), "tenant-a", "agent-1", nil); err == nil {
		t.Error("expected error for missing voice config")
	}
	if _, err := client.Open(context.Background(), "tenant-a", "agent-1", &agent.VoiceConfig{}); err == nil {
		t.Error("expected error for empty voice id")
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(Config{}, nil); err == nil {
		t.Error("expected error for missing URL")
	}
}

func TestEventDecoding(t *testing.T) {
	raw := `{"type":"error","message":"voice model unavailable"}`
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != "error" || ev.Message != "voice model unavailable" {
		t.Errorf("event = %+v", ev)
	}
}
