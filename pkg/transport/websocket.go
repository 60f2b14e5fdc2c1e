package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicebridge/voicebridge/internal/log"
	"github.com/voicebridge/voicebridge/pkg/dispatch"
	"github.com/voicebridge/voicebridge/pkg/realtime"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsReadDeadline     = 120 * time.Second
	wsPingPeriod       = 30 * time.Second
	wsWriteTimeout     = 10 * time.Second
)

// WebSocket connects to the Realtime service over a plain WebSocket.
// It is the fallback channel for environments without WebRTC.
type WebSocket struct {
	secret string
	model  string
	url    string

	ws   *websocket.Conn
	wsMu sync.Mutex

	mu     sync.Mutex
	closed bool

	// OnOpen fires once the connection is established.
	OnOpen func()

	// OnMessage receives each inbound protocol event.
	OnMessage func(data []byte)

	// OnError reports a read failure that ended the connection.
	OnError func(err error)
}

// NewWebSocket creates a WebSocket transport. The secret may be either
// an ephemeral client secret or a raw API key.
func NewWebSocket(secret, model string) *WebSocket {
	return &WebSocket{
		secret: secret,
		model:  model,
		url:    realtime.WebSocketURL,
	}
}

// Connect dials the Realtime endpoint and starts the read loop.
func (t *WebSocket) Connect(ctx context.Context) error {
	url := fmt.Sprintf("%s?model=%s", t.url, t.model)

	header := make(map[string][]string)
	header["Authorization"] = []string{"Bearer " + t.secret}
	header["OpenAI-Beta"] = []string{realtime.BetaHeader}

	dialer := websocket.Dialer{
		HandshakeTimeout: wsHandshakeTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("transport: dial realtime websocket: %w", err)
	}
	t.ws = ws

	ws.SetPingHandler(func(appData string) error {
		t.wsMu.Lock()
		defer t.wsMu.Unlock()
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(wsWriteTimeout))
	})

	go t.readLoop()
	go t.keepAlive()

	log.Info("realtime websocket connected", "model", t.model)
	if t.OnOpen != nil {
		t.OnOpen()
	}
	return nil
}

func (t *WebSocket) readLoop() {
	for {
		t.ws.SetReadDeadline(time.Now().Add(wsReadDeadline))
		_, message, err := t.ws.ReadMessage()
		if err != nil {
			if !t.isClosed() && t.OnError != nil {
				t.OnError(err)
			}
			return
		}
		if t.OnMessage != nil {
			t.OnMessage(message)
		}
	}
}

// keepAlive sends periodic pings so idle conversations stay connected.
func (t *WebSocket) keepAlive() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if t.isClosed() {
			return
		}
		t.wsMu.Lock()
		err := t.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
		t.wsMu.Unlock()
		if err != nil {
			return
		}
	}
}

// Send delivers a protocol event.
func (t *WebSocket) Send(data []byte) error {
	if t.isClosed() {
		return ErrClosed
	}
	t.wsMu.Lock()
	defer t.wsMu.Unlock()
	if t.ws == nil {
		return ErrNotConnected
	}
	t.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return t.ws.WriteMessage(websocket.TextMessage, data)
}

// Close shuts the connection down.
func (t *WebSocket) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	if t.ws != nil {
		return t.ws.Close()
	}
	return nil
}

func (t *WebSocket) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

var _ dispatch.Channel = (*WebSocket)(nil)
