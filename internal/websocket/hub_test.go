package websocket

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"signalpilot/internal/models"
)

func TestNewHub(t *testing.T) {
	hub := NewHub(zap.NewNop())

	if hub == nil {
		t.Fatal("NewHub returned nil")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestOriginCheckerCheck(t *testing.T) {
	checker := &originCheckerT{
		allowedOrigins: map[string]struct{}{
			"http://localhost:3000": {},
			"https://example.com":   {},
		},
	}

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true}, // не-браузерные клиенты
		{"http://localhost:3000", true},
		{"https://example.com", true},
		{"http://evil.com", false},
		{"http://localhost:8080", false},
	}

	for _, tt := range tests {
		if got := checker.Check(tt.origin); got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestOriginCheckerAllowAll(t *testing.T) {
	checker := &originCheckerT{allowAll: true}

	for _, origin := range []string{"http://localhost:3000", "https://evil.com"} {
		if !checker.Check(origin) {
			t.Errorf("allowAll=true but Check(%q) = false", origin)
		}
	}
}

func TestBroadcastDeliversToClient(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	client := &Client{hub: hub, send: make(chan []byte, clientSendBufferSize)}
	hub.register <- client

	hub.BroadcastNotification(&models.Notification{
		Type:    models.NotificationTypeFill,
		Symbol:  "AAPL",
		Message: "order filled",
	})

	select {
	case message := <-client.send:
		var decoded NotificationMessage
		if err := json.Unmarshal(message, &decoded); err != nil {
			t.Fatalf("failed to decode broadcast: %v", err)
		}
		if decoded.Type != MessageTypeNotification {
			t.Errorf("expected notification type, got %s", decoded.Type)
		}
		if decoded.Data == nil || decoded.Data.Symbol != "AAPL" {
			t.Errorf("unexpected payload: %+v", decoded.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}
}

func TestSlowClientIsRemoved(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	// Клиент с заполненным буфером отправки
	slow := &Client{hub: hub, send: make(chan []byte, 1)}
	slow.send <- []byte("stuck")
	hub.register <- slow

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	hub.BroadcastNotification(&models.Notification{Type: models.NotificationTypeFill})

	for time.Now().Before(deadline) {
		if hub.ClientCount() == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("slow client was not removed")
}
