package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"riftline/internal/config"
	"riftline/internal/protocol"
)

// Link-level failures surfaced through OnDisconnect.
var (
	ErrConnectFailed      = errors.New("connect_failed")
	ErrReconnectExhausted = errors.New("reconnect_exhausted")
)

// LinkCallbacks deliver inbound traffic to the application. All callbacks run
// on the link's reader goroutine; keep them fast.
type LinkCallbacks struct {
	OnGameStart   func(protocol.GameStartPayload)
	OnFullState   func(protocol.FullStateSnapshot)
	OnStateUpdate func(protocol.StateUpdate)
	OnGameEnd     func(protocol.GameEndPayload)
	OnEvent       func(protocol.EventPayload)
	OnServerError func(string)
	OnDisconnect  func(error) // nil on clean close
}

// NetworkLink is the client's connection to the server: dial, READY
// handshake, heartbeat, and automatic reconnect on abnormal close.
type NetworkLink struct {
	url        string
	cfg        config.LinkConfig
	playerID   protocol.PlayerID
	championID string
	callbacks  LinkCallbacks

	writeMu sync.Mutex
	conn    *websocket.Conn

	closed    atomic.Bool
	latencyMs atomic.Int64

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewNetworkLink creates an unconnected link.
func NewNetworkLink(url string, cfg config.LinkConfig, playerID protocol.PlayerID, championID string, callbacks LinkCallbacks) *NetworkLink {
	return &NetworkLink{
		url:        url,
		cfg:        cfg,
		playerID:   playerID,
		championID: championID,
		callbacks:  callbacks,
		stopChan:   make(chan struct{}),
	}
}

// Connect dials the server, sends READY, and starts the reader and heartbeat
// goroutines. Resolves on socket open; the join outcome arrives via
// callbacks (GAME_START or ERROR).
func (l *NetworkLink) Connect() error {
	if err := l.dial(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	l.wg.Add(2)
	go l.readLoop()
	go l.pingLoop()
	return nil
}

func (l *NetworkLink) dial() error {
	conn, _, err := websocket.DefaultDialer.Dial(l.url, nil)
	if err != nil {
		return err
	}

	ready, err := json.Marshal(protocol.ReadyPayload{
		PlayerID:   l.playerID,
		ChampionID: l.championID,
	})
	if err != nil {
		conn.Close()
		return err
	}
	if err := conn.WriteJSON(protocol.Message{Type: protocol.MsgReady, Data: ready}); err != nil {
		conn.Close()
		return err
	}

	l.writeMu.Lock()
	l.conn = conn
	l.writeMu.Unlock()
	return nil
}

// Disconnect closes the link cleanly; no reconnect is attempted.
func (l *NetworkLink) Disconnect() {
	l.closed.Store(true)
	l.stopOnce.Do(func() { close(l.stopChan) })

	l.writeMu.Lock()
	if l.conn != nil {
		l.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		l.conn.Close()
	}
	l.writeMu.Unlock()
	l.wg.Wait()
}

// SendInput transmits one input frame.
func (l *NetworkLink) SendInput(in protocol.ClientInput) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return l.write(protocol.Message{Type: protocol.MsgInput, Data: data})
}

// Latency returns the last measured round-trip time in ms.
func (l *NetworkLink) Latency() time.Duration {
	return time.Duration(l.latencyMs.Load()) * time.Millisecond
}

func (l *NetworkLink) write(msg protocol.Message) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if l.conn == nil {
		return errors.New("not connected")
	}
	return l.conn.WriteJSON(msg)
}

func (l *NetworkLink) readLoop() {
	defer l.wg.Done()

	for {
		l.writeMu.Lock()
		conn := l.conn
		l.writeMu.Unlock()
		if conn == nil {
			return
		}

		_, frame, err := conn.ReadMessage()
		if err != nil {
			if l.closed.Load() || isNormalClose(err) {
				l.notifyDisconnect(nil)
				return
			}
			if l.reconnect() {
				continue
			}
			l.notifyDisconnect(ErrReconnectExhausted)
			return
		}
		l.dispatch(frame)
	}
}

// reconnect retries the dial with a fixed delay. Returns false once the
// attempt cap is exhausted or the link is explicitly closed.
func (l *NetworkLink) reconnect() bool {
	delay := time.Duration(l.cfg.ReconnectDelayMs) * time.Millisecond
	for attempt := 1; attempt <= l.cfg.ReconnectAttempts; attempt++ {
		select {
		case <-l.stopChan:
			return false
		case <-time.After(delay):
		}

		log.Printf("🔄 reconnect attempt %d/%d", attempt, l.cfg.ReconnectAttempts)
		if err := l.dial(); err != nil {
			continue
		}
		log.Printf("✅ reconnected")
		return true
	}
	return false
}

func (l *NetworkLink) pingLoop() {
	defer l.wg.Done()

	interval := time.Duration(l.cfg.HeartbeatMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			data, err := json.Marshal(protocol.PingPayload{Timestamp: time.Now().UnixMilli()})
			if err != nil {
				continue
			}
			l.write(protocol.Message{Type: protocol.MsgPing, Data: data})
		}
	}
}

// dispatch routes one inbound frame. Malformed frames are logged and
// skipped; they never tear the connection down.
func (l *NetworkLink) dispatch(frame []byte) {
	msg, err := protocol.Decode(frame)
	if err != nil {
		log.Printf("⚠️ malformed frame: %v", err)
		return
	}

	switch msg.Type {
	case protocol.MsgGameStart:
		var p protocol.GameStartPayload
		if json.Unmarshal(msg.Data, &p) == nil && l.callbacks.OnGameStart != nil {
			l.callbacks.OnGameStart(p)
		}
	case protocol.MsgFullState:
		var p protocol.FullStateSnapshot
		if json.Unmarshal(msg.Data, &p) == nil && l.callbacks.OnFullState != nil {
			l.callbacks.OnFullState(p)
		}
	case protocol.MsgStateUpdate:
		var p protocol.StateUpdate
		if json.Unmarshal(msg.Data, &p) == nil && l.callbacks.OnStateUpdate != nil {
			l.callbacks.OnStateUpdate(p)
		}
	case protocol.MsgGameEnd:
		var p protocol.GameEndPayload
		if json.Unmarshal(msg.Data, &p) == nil && l.callbacks.OnGameEnd != nil {
			l.callbacks.OnGameEnd(p)
		}
	case protocol.MsgEvent:
		var p protocol.EventPayload
		if json.Unmarshal(msg.Data, &p) == nil && l.callbacks.OnEvent != nil {
			l.callbacks.OnEvent(p)
		}
	case protocol.MsgError:
		var p protocol.ErrorPayload
		if json.Unmarshal(msg.Data, &p) == nil && l.callbacks.OnServerError != nil {
			l.callbacks.OnServerError(p.Error)
		}
	case protocol.MsgPong:
		var p protocol.PongPayload
		if json.Unmarshal(msg.Data, &p) == nil {
			l.latencyMs.Store(time.Now().UnixMilli() - p.ClientTimestamp)
		}
	default:
		log.Printf("⚠️ unknown message type: %s", msg.Type)
	}
}

func (l *NetworkLink) notifyDisconnect(err error) {
	if l.callbacks.OnDisconnect != nil {
		l.callbacks.OnDisconnect(err)
	}
}

func isNormalClose(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code == websocket.CloseNormalClosure
	}
	return false
}
