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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sudomarket/internal/domain"
)

const alertsChannel = "alerts"

type chanBus struct {
	chans map[string]chan []byte
}

func (b *chanBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.chans[channel] <- payload
	return nil
}

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	return b.chans[channel], nil
}

type frame struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func (h *Hub) clientSubscribed(channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.subscribed(channel) {
			return true
		}
	}
	return false
}

func startHub(t *testing.T) (*Hub, *chanBus, *websocket.Conn) {
	t.Helper()
	bus := &chanBus{chans: map[string]chan []byte{
		domain.ChannelValuations: make(chan []byte),
		alertsChannel:            make(chan []byte),
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(bus, Config{
		Network:  "testnet",
		Mode:     "serve",
		Channels: []string{domain.ChannelValuations, alertsChannel},
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		srv.Close()
		cancel()
	})
	return hub, bus, conn
}

func TestHubSendsHello(t *testing.T) {
	_, _, conn := startHub(t)

	hello := readFrame(t, conn)
	assert.Equal(t, "hello", hello.Type)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(hello.Payload, &meta))
	assert.Equal(t, "testnet", meta["network"])
	assert.Equal(t, "serve", meta["mode"])
	assert.Equal(t, []any{domain.ChannelValuations, alertsChannel}, meta["channels"])
}

func TestHubRelaysBusMessages(t *testing.T) {
	_, bus, conn := startHub(t)
	readFrame(t, conn)

	require.NoError(t, bus.Publish(context.Background(), domain.ChannelValuations, []byte(`{"total":"950000"}`)))

	got := readFrame(t, conn)
	assert.Equal(t, "message", got.Type)
	assert.Equal(t, domain.ChannelValuations, got.Channel)
	assert.JSONEq(t, `{"total":"950000"}`, string(got.Payload))
}

func TestHubSubscriptionActions(t *testing.T) {
	hub, bus, conn := startHub(t)
	readFrame(t, conn)
	ctx := context.Background()

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelValuations}}))
	require.Eventually(t, func() bool {
		return !hub.clientSubscribed(domain.ChannelValuations)
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, domain.ChannelValuations, []byte(`{"n":1}`)))
	require.NoError(t, bus.Publish(ctx, alertsChannel, []byte(`{"n":2}`)))

	got := readFrame(t, conn)
	assert.Equal(t, alertsChannel, got.Channel)
	assert.JSONEq(t, `{"n":2}`, string(got.Payload))

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "subscribe", Channels: []string{domain.ChannelValuations}}))
	require.Eventually(t, func() bool {
		return hub.clientSubscribed(domain.ChannelValuations)
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, domain.ChannelValuations, []byte(`{"n":3}`)))
	got = readFrame(t, conn)
	assert.Equal(t, domain.ChannelValuations, got.Channel)
	assert.JSONEq(t, `{"n":3}`, string(got.Payload))
}
