package session

import (
	"sync"
	"time"

	"riftline/internal/protocol"
)

// Session is one player's server-side connection state. It outlives the
// websocket: on disconnect the session lingers for the expiry window so a
// reconnecting client resumes the same entity and input sequence.
type Session struct {
	PlayerID   protocol.PlayerID
	ChampionID string
	Side       protocol.TeamID
	EntityID   protocol.EntityID

	mu            sync.Mutex
	send          chan protocol.Message
	connected     bool
	gen           uint64 // socket attachment generation, bumped on reattach
	lastSeen      time.Time
	lastAckedTick protocol.Tick
	dropped       uint64 // updates dropped to backpressure
}

// newSession creates a session with an attached send channel.
func newSession(playerID protocol.PlayerID, championID string, side protocol.TeamID, entityID protocol.EntityID, sendBuffer int) *Session {
	return &Session{
		PlayerID:   playerID,
		ChampionID: championID,
		Side:       side,
		EntityID:   entityID,
		send:       make(chan protocol.Message, sendBuffer),
		connected:  true,
		lastSeen:   time.Now(),
	}
}

// Send returns the channel the write pump consumes. Nil while disconnected.
func (s *Session) Send() <-chan protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send
}

// TrySend enqueues one message without blocking. A full channel or a
// disconnected session drops the message and returns false.
func (s *Session) TrySend(msg protocol.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected || s.send == nil {
		return false
	}
	select {
	case s.send <- msg:
		return true
	default:
		s.dropped++
		return false
	}
}

// Connected reports whether a socket is currently attached.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// LastAckedTick is the delta baseline: the last tick whose update was
// enqueued for this session.
func (s *Session) LastAckedTick() protocol.Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAckedTick
}

// advanceAck moves the delta baseline forward. Never moves backward except
// through resetAck on reconnect.
func (s *Session) advanceAck(tick protocol.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tick > s.lastAckedTick {
		s.lastAckedTick = tick
	}
}

// resetAck rebaselines after a full state snapshot.
func (s *Session) resetAck(tick protocol.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAckedTick = tick
}

// Generation identifies the current socket attachment. A handler captures it
// after the handshake and presents it on disconnect, so a stale handler
// cannot detach a session a newer socket has since reattached.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// detachIf marks the session disconnected and starts the expiry clock,
// provided gen still identifies the current attachment. Returns false when a
// newer socket has reattached; the send channel is left alone in that case.
func (s *Session) detachIf(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.connected = false
	s.send = nil
	s.lastSeen = time.Now()
	return true
}

// reattach binds a fresh send channel after reconnect and moves the
// generation on. The old connection's write pump drains the old channel.
func (s *Session) reattach(sendBuffer int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.send = make(chan protocol.Message, sendBuffer)
	s.connected = true
	s.lastSeen = time.Now()
}

// idleSince returns when the session disconnected; zero meaning if connected.
func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return time.Time{}, false
	}
	return s.lastSeen, true
}

// DroppedUpdates returns how many state updates backpressure discarded.
func (s *Session) DroppedUpdates() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
