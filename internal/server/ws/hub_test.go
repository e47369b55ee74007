package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/imperfectform/predictbot/internal/cache/memory"
	"github.com/imperfectform/predictbot/internal/domain"
)

func startHub(t *testing.T) (*memory.SignalBus, *websocket.Conn) {
	t.Helper()
	bus := memory.NewSignalBus()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "Full", Chains: []string{"base", "local"}})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return bus, conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.TextMessage {
		t.Fatalf("frame type = %d, want text", kind)
	}
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return e
}

func TestHubSendsStatusThenEvents(t *testing.T) {
	bus, conn := startHub(t)

	status := readEnvelope(t, conn)
	if status.Type != "status" {
		t.Fatalf("first frame type = %q, want status", status.Type)
	}
	var payload struct {
		Mode   string   `json:"mode"`
		Chains []string `json:"chains"`
	}
	if err := json.Unmarshal(status.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Mode != "full" || len(payload.Chains) != 2 {
		t.Fatalf("status payload = %+v", payload)
	}

	ctx := context.Background()
	bus.Publish(ctx, domain.LedgerChannel("base"), []byte(`{"chain":"base","type":"PredictionCreated","predictionId":1}`))
	got := readEnvelope(t, conn)
	if got.Type != "event" || got.Channel != "ch:ledger:base" {
		t.Fatalf("event envelope = %+v", got)
	}
	if !strings.Contains(string(got.Data), `"predictionId":1`) {
		t.Fatalf("event data = %s", got.Data)
	}

	bus.Publish(ctx, domain.ChannelBot, []byte("not json"))
	got = readEnvelope(t, conn)
	if got.Channel != domain.ChannelBot || string(got.Data) != `"not json"` {
		t.Fatalf("bot envelope = %+v", got)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	bus, conn := startHub(t)
	readEnvelope(t, conn) // status

	if err := conn.WriteJSON(map[string]any{"action": "unsubscribe", "channels": []string{domain.ChannelLedgerAll}}); err != nil {
		t.Fatal(err)
	}
	ack := readEnvelope(t, conn)
	if ack.Type != "subscriptions" || len(ack.Channels) != 1 || ack.Channels[0] != domain.ChannelBot {
		t.Fatalf("ack = %+v", ack)
	}

	ctx := context.Background()
	bus.Publish(ctx, domain.LedgerChannel("base"), []byte(`{"chain":"base"}`))
	bus.Publish(ctx, domain.ChannelBot, []byte(`{"type":"resolver_scan"}`))
	got := readEnvelope(t, conn)
	if got.Channel != domain.ChannelBot {
		t.Fatalf("received %q after unsubscribing from ledger events", got.Channel)
	}
}

func TestConcreteChannel(t *testing.T) {
	tests := []struct {
		pattern string
		data    string
		want    string
	}{
		{domain.ChannelLedgerAll, `{"chain":"local"}`, "ch:ledger:local"},
		{domain.ChannelLedgerAll, `{}`, domain.ChannelLedgerAll},
		{domain.ChannelLedgerAll, `garbage`, domain.ChannelLedgerAll},
		{domain.ChannelBot, `{"chain":"local"}`, domain.ChannelBot},
	}
	for _, tt := range tests {
		if got := concreteChannel(tt.pattern, []byte(tt.data)); got != tt.want {
			t.Errorf("concreteChannel(%q, %s) = %q, want %q", tt.pattern, tt.data, got, tt.want)
		}
	}
}
