// Package store holds the reactive session envelope: a single-writer,
// single-subscriber container whose snapshot is replaced wholesale on every
// mutation and pushed to the active observer.
package store

import (
	"github.com/edukit/classsync/internal/domain"
)

// RTMState tracks the signaling transport substate.
type RTMState struct {
	Joined      bool `json:"joined"`
	MemberCount int  `json:"memberCount"`
}

// RTCState tracks the media transport substate.
type RTCState struct {
	Joined    bool                    `json:"joined"`
	Published bool                    `json:"published"`
	Shared    bool                    `json:"shared"`
	Users     map[domain.UID]struct{} `json:"-"`
}

// RoomState is the full session envelope delivered to the observer.
type RoomState struct {
	Me          domain.Me                     `json:"me"`
	Users       map[string]domain.Participant `json:"users"`
	Course      domain.Course                 `json:"course"`
	RTM         RTMState                      `json:"rtm"`
	RTC         RTCState                      `json:"rtc"`
	MediaDevice domain.MediaDevice            `json:"mediaDevice"`
	Messages    []domain.ChatMessage          `json:"messages"`
	ApplyUser   domain.UID                    `json:"applyUser"`
	Language    string                        `json:"language"`
}

func defaultState() RoomState {
	return RoomState{
		Me: domain.Me{
			Participant: domain.Participant{
				Video: domain.On,
				Audio: domain.On,
				Chat:  domain.On,
			},
		},
		Users: map[string]domain.Participant{},
		RTC: RTCState{
			Users: map[domain.UID]struct{}{},
		},
		MediaDevice: domain.MediaDevice{
			SpeakerVolume: 100,
		},
		Language: "en",
	}
}

// clone deep-copies the mutable collections so a held snapshot can never be
// changed behind the observer's back.
func (s RoomState) clone() RoomState {
	out := s
	out.Users = make(map[string]domain.Participant, len(s.Users))
	for k, v := range s.Users {
		out.Users[k] = v
	}
	out.RTC.Users = make(map[domain.UID]struct{}, len(s.RTC.Users))
	for k := range s.RTC.Users {
		out.RTC.Users[k] = struct{}{}
	}
	if s.Messages != nil {
		out.Messages = make([]domain.ChatMessage, len(s.Messages))
		copy(out.Messages, s.Messages)
	}
	if s.Course.CoVideoUIDs != nil {
		out.Course.CoVideoUIDs = make([]domain.UID, len(s.Course.CoVideoUIDs))
		copy(out.Course.CoVideoUIDs, s.Course.CoVideoUIDs)
	}
	return out
}
