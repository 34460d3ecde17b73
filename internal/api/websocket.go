package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"riftline/internal/config"
	"riftline/internal/game"
	"riftline/internal/protocol"
	"riftline/internal/session"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	maxFrameBytes    = 16 * 1024
)

// errHandshakeRejected covers well-formed first frames that fail the READY
// contract; the ERROR frame has already been written when it is returned.
var errHandshakeRejected = errors.New("handshake rejected")

// Hub accepts websocket connections and runs the per-connection pumps: the
// read pump feeds the input gateway, the write pump owns all socket writes
// and drains the session's send channel.
type Hub struct {
	cfg      config.ServerConfig
	registry *session.Registry
	gateway  *game.Gateway
	encoder  *session.Encoder
	world    *game.World

	upgrader  websocket.Upgrader
	wsLimiter *WebSocketRateLimiter
	active    atomic.Int32
}

// NewHub wires the websocket surface to the game core.
func NewHub(cfg config.ServerConfig, registry *session.Registry, gateway *game.Gateway, encoder *session.Encoder, world *game.World) *Hub {
	h := &Hub{
		cfg:       cfg,
		registry:  registry,
		gateway:   gateway,
		encoder:   encoder,
		world:     world,
		wsLimiter: NewWebSocketRateLimiter(cfg.MaxConnsPerIP),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if IsAllowedOrigin(origin, cfg.AllowedOrigins) {
				return true
			}
			log.Printf("⚠️ websocket rejected from origin: %s", origin)
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// ConnectionCount returns the number of open sockets.
func (h *Hub) ConnectionCount() int { return int(h.active.Load()) }

// HandleWS upgrades the connection, runs the READY handshake, and serves the
// session until the socket closes.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if int(h.active.Load()) >= h.cfg.MaxConnsTotal {
		log.Printf("⚠️ websocket rejected: total limit reached (%d)", h.cfg.MaxConnsTotal)
		RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}
	if !h.wsLimiter.Allow(ip) {
		log.Printf("⚠️ websocket rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		h.wsLimiter.Release(ip)
		return
	}

	h.active.Add(1)
	UpdateWSConnections(int(h.active.Load()))
	defer func() {
		conn.Close()
		h.wsLimiter.Release(ip)
		UpdateWSConnections(int(h.active.Add(-1)))
	}()

	conn.SetReadLimit(maxFrameBytes)

	s, err := h.handshake(conn)
	if err != nil {
		return
	}

	// Scope the disconnect to this attachment: if the client reconnects on a
	// new socket before this one unwinds, the deferred call must not detach
	// the session the new socket is using.
	gen := s.Generation()
	defer h.registry.Disconnect(s.PlayerID, gen)

	done := make(chan struct{})
	defer close(done)
	go h.writePump(conn, s, done)

	h.sendGameStart(s)
	h.encoder.SendFullState(s, h.world)

	h.readPump(conn, s)
}

// handshake expects a READY frame first. auth_failed, game_full and
// game_ended are surfaced as an ERROR frame before close.
func (h *Hub) handshake(conn *websocket.Conn) (*session.Session, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	msg, err := protocol.Decode(frame)
	if err != nil || msg.Type != protocol.MsgReady {
		h.writeError(conn, protocol.ErrAuthFailed)
		return nil, errHandshakeRejected
	}

	var ready protocol.ReadyPayload
	if err := protocol.DecodePayload(msg, &ready); err != nil || ready.PlayerID == "" {
		h.writeError(conn, protocol.ErrAuthFailed)
		return nil, errHandshakeRejected
	}

	s, reconnect, err := h.registry.Join(ready.PlayerID, ready.ChampionID)
	if err != nil {
		h.writeError(conn, err.Error())
		return nil, err
	}
	if reconnect {
		log.Printf("🔄 resuming session for %s", ready.PlayerID)
	}
	return s, nil
}

// readPump decodes inbound frames until the socket closes. INPUT feeds the
// gateway; PING answers immediately through the send channel.
func (h *Hub) readPump(conn *websocket.Conn, s *session.Session) {
	idle := time.Duration(h.cfg.IdleTimeoutSec) * time.Second
	for {
		conn.SetReadDeadline(time.Now().Add(idle))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("⚠️ read error for %s: %v", s.PlayerID, err)
			}
			return
		}

		msg, err := protocol.Decode(frame)
		if err != nil {
			continue
		}

		switch msg.Type {
		case protocol.MsgInput:
			var in protocol.ClientInput
			if json.Unmarshal(msg.Data, &in) != nil {
				continue
			}
			if ok, _ := h.gateway.Admit(s.PlayerID, in); ok {
				RecordInputAccepted()
			}
		case protocol.MsgPing:
			var ping protocol.PingPayload
			if json.Unmarshal(msg.Data, &ping) != nil {
				continue
			}
			pong, err := json.Marshal(protocol.PongPayload{
				ClientTimestamp: ping.Timestamp,
				ServerTimestamp: time.Now().UnixMilli(),
			})
			if err == nil {
				s.TrySend(protocol.Message{Type: protocol.MsgPong, Data: pong})
			}
		}
	}
}

// writePump owns the socket's write side for this connection's lifetime.
func (h *Hub) writePump(conn *websocket.Conn, s *session.Session, done <-chan struct{}) {
	send := s.Send()
	for {
		select {
		case <-done:
			return
		case msg, ok := <-send:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func (h *Hub) sendGameStart(s *session.Session) {
	payload, err := json.Marshal(protocol.GameStartPayload{
		Tick:     h.world.Tick(),
		GameTime: h.world.GameTime(),
		GameID:   h.registry.GameID(),
		YourSide: s.Side,
		Players:  h.registry.Players(),
	})
	if err != nil {
		return
	}
	s.TrySend(protocol.Message{Type: protocol.MsgGameStart, Data: payload})
}

// writeError sends an ERROR frame directly; only used before the write pump
// exists.
func (h *Hub) writeError(conn *websocket.Conn, reason string) {
	payload, err := json.Marshal(protocol.ErrorPayload{Error: reason})
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	conn.WriteJSON(protocol.Message{Type: protocol.MsgError, Data: payload})
}
