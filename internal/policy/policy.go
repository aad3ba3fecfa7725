// Package policy decides, per role and target, whether a mutation may be
// applied locally and where its notification must be routed.
package policy

import (
	"github.com/edukit/classsync/internal/domain"
	"github.com/edukit/classsync/internal/protocol"
)

// Route tells the engine where an outbound change notification goes.
type Route int

const (
	RouteNone    Route = iota // local-only apply, no notification
	RoutePeer                 // point-to-point to the target uid
	RouteChannel              // broadcast to the whole channel
)

func (r Route) String() string {
	switch r {
	case RoutePeer:
		return "peer"
	case RouteChannel:
		return "channel"
	default:
		return "none"
	}
}

// Gate is the role-based permission model. Stateless.
type Gate struct{}

// CanMutateParticipant reports whether actor may change target's capability
// flags. A participant may always mutate their own; only a teacher may
// mutate another's.
func (Gate) CanMutateParticipant(actor domain.Participant, target domain.UID) bool {
	if actor.UID == target {
		return true
	}
	return actor.IsTeacher()
}

// CanMutateCourse reports whether actor may change room-wide fields.
func (Gate) CanMutateCourse(actor domain.Participant) bool {
	return actor.IsTeacher()
}

// NotifyRoute resolves the destination of an outbound change notification.
// Room-wide fields and self changes go to the channel so every console
// reflects them; a teacher's change of another participant is addressed
// point-to-point.
func (Gate) NotifyRoute(actor domain.Participant, field protocol.Field, target domain.UID, broad bool) Route {
	if !broad {
		return RouteNone
	}
	if field.RoomWide() || target == actor.UID || target == 0 {
		return RouteChannel
	}
	return RoutePeer
}

// AllowPeerCommand filters inbound point-to-point instructions by the
// sender/receiver role pair. A student applies authoritative instructions
// from the teacher; the teacher accepts only co-video requests from
// students. Every other combination is ignored.
func (Gate) AllowPeerCommand(sender, receiver domain.Participant, code protocol.OperateCode) bool {
	if sender.IsTeacher() && !receiver.IsTeacher() {
		switch code {
		case protocol.ApplyCoVideo:
			return false
		}
		return true
	}
	if !sender.IsTeacher() && receiver.IsTeacher() {
		switch code {
		case protocol.ApplyCoVideo, protocol.CancelCoVideo:
			return true
		}
	}
	return false
}
