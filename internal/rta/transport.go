// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

package rta

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xbltracker/xbltracker/internal/logging"
	"github.com/xbltracker/xbltracker/internal/metrics"
	"github.com/xbltracker/xbltracker/internal/models"
)

// DefaultURL is the production RTA connect endpoint.
const DefaultURL = "wss://rta.xboxlive.com:443/connect"

// Subprotocol is the RTA websocket subprotocol version.
const Subprotocol = "rta.xboxlive.com.V2"

const (
	handshakeTimeout = 10 * time.Second
	readTimeout      = 60 * time.Second
	pingInterval     = 30 * time.Second
)

// State is the transport lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

// String implements fmt.Stringer for log fields.
func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Transport is a single-use websocket connection to the RTA service.
// It never reconnects on its own: on any read failure it transitions to
// Disconnected, reports the reason, and stays down until the owner
// builds a fresh Transport. Supervision lives above this type.
type Transport struct {
	url      string
	identity models.Identity

	conn   *websocket.Conn
	connMu sync.RWMutex

	state   State
	stateMu sync.RWMutex

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	onMessage     func([]byte)
	onStateChange func(connected bool, reason string)
}

// NewTransport creates a Transport that will authorize the handshake as
// identity. Callbacks may be nil. They are invoked from the transport's
// reader goroutine; per-message order is preserved.
func NewTransport(url string, identity models.Identity, onMessage func([]byte), onStateChange func(connected bool, reason string)) *Transport {
	if url == "" {
		url = DefaultURL
	}
	return &Transport{
		url:           url,
		identity:      identity,
		stopChan:      make(chan struct{}),
		onMessage:     onMessage,
		onStateChange: onStateChange,
	}
}

// Connect performs the websocket handshake and starts the reader and
// ping goroutines. It may be called once per Transport.
func (t *Transport) Connect(ctx context.Context) error {
	t.connMu.RLock()
	alreadyUp := t.conn != nil
	t.connMu.RUnlock()
	if alreadyUp {
		return nil
	}
	t.setState(Connecting, "")

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		Subprotocols:     []string{Subprotocol},
	}
	headers := map[string][]string{
		"Authorization": {"XBL3.0 x=" + t.identity.UHS + ";" + t.identity.Token.Value},
	}

	logging.Info().Str("url", t.url).Msg("connecting to rta")
	conn, resp, err := dialer.DialContext(ctx, t.url, headers)
	if err != nil {
		reason := fmt.Sprintf("dial failed: %v", err)
		if resp != nil {
			reason = fmt.Sprintf("dial failed (status %d): %v", resp.StatusCode, err)
		}
		t.setState(Disconnected, reason)
		return fmt.Errorf("rta connect: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()
	t.setState(Connected, "")
	metrics.RTAConnected.Set(1)

	t.wg.Add(2)
	go t.listen()
	go t.pingLoop()
	return nil
}

// IsConnected reports whether the websocket is up.
func (t *Transport) IsConnected() bool {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	return t.state == Connected
}

// CurrentState returns the lifecycle state.
func (t *Transport) CurrentState() State {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	return t.state
}

// Send writes a text message to the service.
func (t *Transport) Send(data []byte) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn == nil {
		return fmt.Errorf("rta send: not connected")
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close shuts the transport down and waits for its goroutines.
func (t *Transport) Close() error {
	t.stopOnce.Do(func() { close(t.stopChan) })
	t.closeConnection("closed by owner")
	t.wg.Wait()
	return nil
}

// listen reads messages until the connection dies or Close is called.
// gorilla/websocket assembles continuation fragments internally, so
// every ReadMessage result is a complete message.
func (t *Transport) listen() {
	defer t.wg.Done()

	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		t.connMu.RLock()
		conn := t.conn
		t.connMu.RUnlock()
		if conn == nil {
			return
		}

		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			logging.Warn().Err(err).Msg("rta set read deadline failed")
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-t.stopChan:
				// Owner-initiated close; already reported.
			default:
				reason := err.Error()
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					reason = "closed by server"
				}
				t.closeConnection(reason)
			}
			return
		}

		if t.onMessage != nil {
			t.onMessage(message)
		}
	}
}

// pingLoop keeps intermediaries from idling the connection out.
func (t *Transport) pingLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopChan:
			return
		case <-ticker.C:
			t.connMu.Lock()
			conn := t.conn
			if conn == nil {
				t.connMu.Unlock()
				return
			}
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			t.connMu.Unlock()
			if err != nil {
				logging.Warn().Err(err).Msg("rta ping failed")
			}
		}
	}
}

func (t *Transport) closeConnection(reason string) {
	t.connMu.Lock()
	conn := t.conn
	t.conn = nil
	t.connMu.Unlock()

	if conn == nil {
		return
	}
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	if err := conn.Close(); err != nil {
		logging.Debug().Err(err).Msg("rta connection close failed")
	}
	t.setState(Disconnected, reason)
	metrics.RTAConnected.Set(0)
}

// setState updates the lifecycle state and notifies the owner on
// transitions into and out of Connected.
func (t *Transport) setState(s State, reason string) {
	t.stateMu.Lock()
	prev := t.state
	t.state = s
	t.stateMu.Unlock()

	if prev == s {
		return
	}
	logging.Debug().Str("from", prev.String()).Str("to", s.String()).Str("reason", reason).Msg("rta state change")

	if t.onStateChange == nil {
		return
	}
	switch {
	case s == Connected:
		t.onStateChange(true, "")
	case prev == Connected || (prev == Connecting && s == Disconnected):
		t.onStateChange(false, reason)
	}
}
