package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType tags the envelope union.
type MessageType string

const (
	// Client → server.
	MsgReady MessageType = "READY"
	MsgInput MessageType = "INPUT"
	MsgPing  MessageType = "PING"

	// Server → client.
	MsgGameStart   MessageType = "GAME_START"
	MsgFullState   MessageType = "FULL_STATE"
	MsgStateUpdate MessageType = "STATE_UPDATE"
	MsgGameEnd     MessageType = "GAME_END"
	MsgEvent       MessageType = "EVENT"
	MsgError       MessageType = "ERROR"
	MsgPong        MessageType = "PONG"
)

// Message is the tagged envelope every wire frame carries.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ReadyPayload joins a player into the game.
type ReadyPayload struct {
	PlayerID   PlayerID `json:"playerId"`
	ChampionID string   `json:"championId"`
}

// PingPayload carries the client send time for RTT measurement.
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// PongPayload echoes the client timestamp alongside the server clock.
type PongPayload struct {
	ClientTimestamp int64 `json:"clientTimestamp"`
	ServerTimestamp int64 `json:"serverTimestamp"`
}

// PlayerInfo describes one participant at game start.
type PlayerInfo struct {
	PlayerID   PlayerID `json:"playerId"`
	ChampionID string   `json:"championId"`
	Side       TeamID   `json:"side"`
}

// GameStartPayload announces the match to a newly joined session.
type GameStartPayload struct {
	Tick     Tick         `json:"tick"`
	GameTime float64      `json:"gameTime"`
	GameID   string       `json:"gameId"`
	YourSide TeamID       `json:"yourSide"`
	Players  []PlayerInfo `json:"players"`
}

// GameEndPayload announces the result.
type GameEndPayload struct {
	WinningSide TeamID  `json:"winningSide"`
	Duration    float64 `json:"duration"` // seconds
}

// EventPayload is a server-side notification (queue_joined and friends).
type EventPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload surfaces a session-path failure before close.
type ErrorPayload struct {
	Error string `json:"error"`
}

// Session-path error strings carried in ErrorPayload.
const (
	ErrAuthFailed = "auth_failed"
	ErrGameFull   = "game_full"
	ErrGameEnded  = "game_ended"
)

// Encode wraps payload in a tagged envelope and marshals it.
func Encode(t MessageType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return json.Marshal(Message{Type: t, Data: data})
}

// Decode parses a wire frame into its envelope. The payload stays raw; use
// DecodePayload to extract it once the type is known.
func Decode(frame []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("decode frame: missing type tag")
	}
	return msg, nil
}

// DecodePayload unmarshals the envelope's payload into out.
func DecodePayload(msg Message, out any) error {
	if len(msg.Data) == 0 {
		return fmt.Errorf("decode %s: empty payload", msg.Type)
	}
	if err := json.Unmarshal(msg.Data, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", msg.Type, err)
	}
	return nil
}
