package protocol

import (
	"encoding/json"
	"fmt"
)

// CmdType discriminates channel broadcast payloads.
type CmdType int

const (
	CmdChat   CmdType = 1
	CmdReplay CmdType = 2
	CmdUpdate CmdType = 3
	CmdCourse CmdType = 4
)

func (c CmdType) String() string {
	switch c {
	case CmdChat:
		return "chat"
	case CmdReplay:
		return "replay"
	case CmdUpdate:
		return "update"
	case CmdCourse:
		return "course"
	default:
		return "unknown"
	}
}

// ChannelEnvelope is the outer JSON frame of a channel broadcast.
type ChannelEnvelope struct {
	Cmd  CmdType         `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ChatData is the payload of CmdChat.
type ChatData struct {
	Account string `json:"account"`
	Content string `json:"content"`
}

// ReplayData is the payload of CmdReplay, announcing a finished recording.
type ReplayData struct {
	Account  string `json:"account"`
	Content  string `json:"content"`
	RecordID string `json:"recordId"`
}

// PeerEnvelope is the JSON frame of a point-to-point instruction.
type PeerEnvelope struct {
	Cmd OperateCode `json:"cmd"`
}

func MarshalChat(d ChatData) ([]byte, error)     { return marshalChannel(CmdChat, d) }
func MarshalReplay(d ReplayData) ([]byte, error) { return marshalChannel(CmdReplay, d) }

// MarshalUpdate builds the "something changed, refetch participants" signal.
// It deliberately carries no delta; receivers reconcile against the backend.
func MarshalUpdate() ([]byte, error) { return marshalChannel(CmdUpdate, nil) }

// MarshalCourse builds the room-wide invalidation signal.
func MarshalCourse() ([]byte, error) { return marshalChannel(CmdCourse, nil) }

func marshalChannel(cmd CmdType, data any) ([]byte, error) {
	env := ChannelEnvelope{Cmd: cmd}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal channel data: %w", err)
		}
		env.Data = raw
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal channel envelope: %w", err)
	}
	return b, nil
}

func ParseChannel(payload []byte) (ChannelEnvelope, error) {
	var env ChannelEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return ChannelEnvelope{}, fmt.Errorf("parse channel envelope: %w", err)
	}
	return env, nil
}

func MarshalPeer(code OperateCode) ([]byte, error) {
	b, err := json.Marshal(PeerEnvelope{Cmd: code})
	if err != nil {
		return nil, fmt.Errorf("marshal peer envelope: %w", err)
	}
	return b, nil
}

func ParsePeer(payload []byte) (PeerEnvelope, error) {
	var env PeerEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return PeerEnvelope{}, fmt.Errorf("parse peer envelope: %w", err)
	}
	return env, nil
}
