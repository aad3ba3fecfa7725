// Package transport defines the websocket frames spoken between the
// signaling client and the relay server. Classroom payloads (operate
// codes, channel envelopes) ride opaquely inside Payload.
package transport

import (
	"encoding/json"

	"github.com/edukit/classsync/internal/domain"
)

const (
	// client → server
	TypeLogin   = "login"
	TypeJoin    = "join"
	TypeLeave   = "leave"
	TypeLogout  = "logout"
	TypePeer    = "peer"
	TypeChannel = "channel"

	// server → client
	TypeAck         = "ack"
	TypeError       = "error"
	TypeMemberCount = "member_count"
	TypeState       = "state"
)

// Frame is the single envelope for every message in both directions.
// Unused fields are omitted.
type Frame struct {
	Type    string          `json:"type"`
	UID     domain.UID      `json:"uid,omitempty"`
	Token   string          `json:"token,omitempty"`
	Channel string          `json:"channel,omitempty"`
	To      domain.UID      `json:"to,omitempty"`
	From    domain.UID      `json:"from,omitempty"`
	Member  string          `json:"member,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Count   int             `json:"count,omitempty"`
	Of      string          `json:"of,omitempty"`
	State   string          `json:"state,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func Marshal(f Frame) ([]byte, error) { return json.Marshal(f) }

func Parse(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}
