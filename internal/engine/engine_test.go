package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/edukit/classsync/internal/domain"
	"github.com/edukit/classsync/internal/protocol"
)

func lastPeer(t *testing.T, sig *mockSignal) (domain.UID, protocol.OperateCode) {
	t.Helper()
	if len(sig.peerSends) == 0 {
		t.Fatal("expected a peer message")
	}
	send := sig.peerSends[len(sig.peerSends)-1]
	env, err := protocol.ParsePeer(send.payload)
	if err != nil {
		t.Fatal(err)
	}
	return send.uid, env.Cmd
}

func lastChannelCmd(t *testing.T, sig *mockSignal) protocol.CmdType {
	t.Helper()
	if len(sig.channelSends) == 0 {
		t.Fatal("expected a channel message")
	}
	env, err := protocol.ParseChannel(sig.channelSends[len(sig.channelSends)-1])
	if err != nil {
		t.Fatal(err)
	}
	return env.Cmd
}

func TestTeacherMutesStudent(t *testing.T) {
	rig := newRig(domain.RoleTeacher)
	if err := rig.engine.Mute(context.Background(), 5, protocol.FieldAudio); err != nil {
		t.Fatal(err)
	}

	if len(rig.backend.userUpdates) != 1 {
		t.Fatalf("want 1 backend update, got %d", len(rig.backend.userUpdates))
	}
	up := rig.backend.userUpdates[0]
	if up.UserID != "u-student" || up.EnableAudio == nil || *up.EnableAudio != 0 {
		t.Errorf("unexpected update: %+v", up)
	}
	if rig.store.State().Users["5"].Audio != domain.Off {
		t.Error("local row not updated")
	}
	uid, cmd := lastPeer(t, rig.signal)
	if uid != 5 || cmd != protocol.MuteAudio {
		t.Errorf("peer send = uid %d cmd %v", uid, cmd)
	}
	if len(rig.signal.channelSends) != 0 {
		t.Error("personal change to another uid must not broadcast")
	}
}

func TestBackendFailureLeavesStateUntouched(t *testing.T) {
	rig := newRig(domain.RoleTeacher)
	rig.backend.shouldFailUpdateUser = true

	err := rig.engine.Mute(context.Background(), 5, protocol.FieldAudio)
	if !errors.Is(err, errMock) {
		t.Fatalf("want wrapped backend error, got %v", err)
	}
	if rig.store.State().Users["5"].Audio != domain.On {
		t.Error("store must not change when persistence fails")
	}
	if len(rig.signal.peerSends)+len(rig.signal.channelSends) != 0 {
		t.Error("no notification may leave when persistence fails")
	}
}

func TestStudentCannotMuteOther(t *testing.T) {
	rig := newRig(domain.RoleStudent)
	err := rig.engine.Mute(context.Background(), 1, protocol.FieldAudio)
	if !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("want ErrNotPermitted, got %v", err)
	}
	if len(rig.backend.userUpdates) != 0 {
		t.Error("gate must run before persistence")
	}
}

func TestSelfChangeBroadcastsAndDrivesMedia(t *testing.T) {
	rig := newRig(domain.RoleStudent)
	if err := rig.engine.Mute(context.Background(), 5, protocol.FieldAudio); err != nil {
		t.Fatal(err)
	}

	st := rig.store.State()
	if st.Me.Audio != domain.Off || st.Users["5"].Audio != domain.Off {
		t.Error("me and mirror row must both flip")
	}
	if len(rig.media.audioMuted) != 1 || !rig.media.audioMuted[0] {
		t.Errorf("media mute not driven: %v", rig.media.audioMuted)
	}
	if cmd := lastChannelCmd(t, rig.signal); cmd != protocol.CmdUpdate {
		t.Errorf("self change must invalidate the channel, got %v", cmd)
	}
	if len(rig.signal.peerSends) != 0 {
		t.Error("self change must not go point-to-point")
	}
}

func TestSetParticipantFlagRejectsCourseField(t *testing.T) {
	rig := newRig(domain.RoleTeacher)
	if err := rig.engine.SetParticipantFlag(context.Background(), 1, protocol.FieldMuteChat, domain.On, true); err == nil {
		t.Error("course field on the participant path must error")
	}
}

func TestUnknownTargetRejected(t *testing.T) {
	rig := newRig(domain.RoleTeacher)
	err := rig.engine.Mute(context.Background(), 42, protocol.FieldAudio)
	if !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("want ErrUnknownUser, got %v", err)
	}
}

func TestCourseFlagTeacherOnly(t *testing.T) {
	rig := newRig(domain.RoleStudent)
	err := rig.engine.MuteAllChat(context.Background())
	if !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("want ErrNotPermitted, got %v", err)
	}

	rig = newRig(domain.RoleTeacher)
	if err := rig.engine.MuteAllChat(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(rig.backend.courseUpdates) != 1 {
		t.Fatal("course update must persist")
	}
	up := rig.backend.courseUpdates[0]
	if up.MuteAllChat == nil || *up.MuteAllChat != 1 {
		t.Errorf("unexpected course update: %+v", up)
	}
	if rig.store.State().Course.MuteChat != domain.On {
		t.Error("course flag not applied locally")
	}
	if cmd := lastChannelCmd(t, rig.signal); cmd != protocol.CmdCourse {
		t.Errorf("course change must invalidate via course cmd, got %v", cmd)
	}
}

func TestCourseBackendFailureStaysLocal(t *testing.T) {
	rig := newRig(domain.RoleTeacher)
	rig.backend.shouldFailUpdateCourse = true
	if err := rig.engine.StartCourse(context.Background()); err == nil {
		t.Fatal("want error")
	}
	if rig.store.State().Course.CourseState != domain.Off {
		t.Error("course state must not change when persistence fails")
	}
	if len(rig.signal.channelSends) != 0 {
		t.Error("no broadcast on failed persistence")
	}
}

func TestApplyCoVideoRequestsTeacher(t *testing.T) {
	rig := newRig(domain.RoleStudent)
	if err := rig.engine.ApplyCoVideo(context.Background()); err != nil {
		t.Fatal(err)
	}
	uid, cmd := lastPeer(t, rig.signal)
	if uid != 1 || cmd != protocol.ApplyCoVideo {
		t.Errorf("apply must address the teacher: uid %d cmd %v", uid, cmd)
	}
	if len(rig.backend.userUpdates) != 0 {
		t.Error("nothing persists until the teacher decides")
	}
}

func TestApplyCoVideoTeacherRefused(t *testing.T) {
	rig := newRig(domain.RoleTeacher)
	if err := rig.engine.ApplyCoVideo(context.Background()); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("want ErrNotPermitted, got %v", err)
	}
}

func TestAcceptCoVideo(t *testing.T) {
	rig := newRig(domain.RoleTeacher)
	rig.engine.Arbiter().Apply(5)
	rig.store.SetApplyUser(5)

	if err := rig.engine.AcceptCoVideo(context.Background(), 5); err != nil {
		t.Fatal(err)
	}

	up := rig.backend.userUpdates[0]
	if up.UserID != "u-student" || up.CoVideo == nil || *up.CoVideo != 1 {
		t.Errorf("unexpected update: %+v", up)
	}
	st := rig.store.State()
	if st.Users["5"].CoVideo != domain.On {
		t.Error("promotion not applied locally")
	}
	if st.ApplyUser != 0 || rig.engine.Arbiter().Pending() != 0 {
		t.Error("pending slot must clear after acceptance")
	}
	uid, cmd := lastPeer(t, rig.signal)
	if uid != 5 || cmd != protocol.AcceptCoVideo {
		t.Errorf("applicant not told: uid %d cmd %v", uid, cmd)
	}
	if cmd := lastChannelCmd(t, rig.signal); cmd != protocol.CmdUpdate {
		t.Errorf("promotion must invalidate the channel, got %v", cmd)
	}
}

func TestAcceptCoVideoWrongApplicant(t *testing.T) {
	rig := newRig(domain.RoleTeacher)
	rig.engine.Arbiter().Apply(5)

	err := rig.engine.AcceptCoVideo(context.Background(), 9)
	if !errors.Is(err, ErrNoApplicant) {
		t.Fatalf("want ErrNoApplicant, got %v", err)
	}
	if rig.engine.Arbiter().Pending() != 5 {
		t.Error("mismatched accept must not disturb the pending slot")
	}
}

func TestRejectCoVideo(t *testing.T) {
	rig := newRig(domain.RoleTeacher)
	rig.engine.Arbiter().Apply(5)
	rig.store.SetApplyUser(5)

	if err := rig.engine.RejectCoVideo(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
	if len(rig.backend.userUpdates) != 0 {
		t.Error("rejection persists nothing")
	}
	if rig.engine.Arbiter().Pending() != 0 || rig.store.State().ApplyUser != 0 {
		t.Error("pending slot must clear")
	}
	uid, cmd := lastPeer(t, rig.signal)
	if uid != 5 || cmd != protocol.RejectCoVideo {
		t.Errorf("applicant not told: uid %d cmd %v", uid, cmd)
	}
	if len(rig.signal.channelSends) != 0 {
		t.Error("rejection must not broadcast")
	}
}

func TestCancelCoVideoWhilePromoted(t *testing.T) {
	rig := newRig(domain.RoleStudent)
	rig.store.UpdateMe(domain.MeAttrs{CoVideo: domain.Ptr(domain.On)})

	if err := rig.engine.CancelCoVideo(context.Background()); err != nil {
		t.Fatal(err)
	}
	up := rig.backend.userUpdates[0]
	if up.CoVideo == nil || *up.CoVideo != 0 {
		t.Errorf("promotion must be persisted off: %+v", up)
	}
	if rig.store.State().Me.CoVideo != domain.Off {
		t.Error("local flag must flip off")
	}
	uid, cmd := lastPeer(t, rig.signal)
	if uid != 1 || cmd != protocol.CancelCoVideo {
		t.Errorf("teacher not told: uid %d cmd %v", uid, cmd)
	}
}

func TestCancelCoVideoPendingOnly(t *testing.T) {
	rig := newRig(domain.RoleStudent)
	if err := rig.engine.CancelCoVideo(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(rig.backend.userUpdates) != 0 {
		t.Error("an unpromoted cancel persists nothing")
	}
	_, cmd := lastPeer(t, rig.signal)
	if cmd != protocol.CancelCoVideo {
		t.Errorf("cmd = %v", cmd)
	}
}

func TestSendChatMessage(t *testing.T) {
	rig := newRig(domain.RoleStudent)
	if err := rig.engine.SendChatMessage(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if cmd := lastChannelCmd(t, rig.signal); cmd != protocol.CmdChat {
		t.Errorf("cmd = %v", cmd)
	}
	msgs := rig.store.State().Messages
	if len(msgs) != 1 || msgs[0].Text != "hello" || msgs[0].Account != "bob" {
		t.Errorf("local append missing: %+v", msgs)
	}
}

func TestSendChatBlockedByRoomLock(t *testing.T) {
	rig := newRig(domain.RoleStudent)
	rig.store.UpdateCourse(domain.CourseAttrs{MuteChat: domain.Ptr(domain.On)})
	if err := rig.engine.SendChatMessage(context.Background(), "hello"); !errors.Is(err, ErrChatMuted) {
		t.Fatalf("want ErrChatMuted, got %v", err)
	}

	rig = newRig(domain.RoleTeacher)
	rig.store.UpdateCourse(domain.CourseAttrs{MuteChat: domain.Ptr(domain.On)})
	if err := rig.engine.SendChatMessage(context.Background(), "hello"); err != nil {
		t.Errorf("room lock must not silence the teacher: %v", err)
	}
}

func TestSendChatBlockedByOwnFlag(t *testing.T) {
	rig := newRig(domain.RoleStudent)
	rig.store.UpdateMe(domain.MeAttrs{Chat: domain.Ptr(domain.Off)})
	if err := rig.engine.SendChatMessage(context.Background(), "hello"); !errors.Is(err, ErrChatMuted) {
		t.Fatalf("want ErrChatMuted, got %v", err)
	}
}

func TestRecordingLifecycle(t *testing.T) {
	rig := newRig(domain.RoleTeacher)
	rig.backend.recordID = "rec-1"

	if err := rig.engine.StopRecording(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("stop before start: want ErrNotRecording, got %v", err)
	}

	if err := rig.engine.StartRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	st := rig.store.State()
	if !st.Course.IsRecording || st.Course.RecordID != "rec-1" {
		t.Errorf("recording state not applied: %+v", st.Course)
	}
	if cmd := lastChannelCmd(t, rig.signal); cmd != protocol.CmdCourse {
		t.Errorf("start must invalidate course, got %v", cmd)
	}

	if err := rig.engine.StopRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	if rig.backend.stoppedRecords[0] != "rec-1" {
		t.Errorf("stopped wrong record: %v", rig.backend.stoppedRecords)
	}
	if cmd := lastChannelCmd(t, rig.signal); cmd != protocol.CmdReplay {
		t.Errorf("stop must announce replay, got %v", cmd)
	}
	msgs := rig.store.State().Messages
	if len(msgs) != 1 || msgs[0].Link != "rec-1" {
		t.Errorf("replay message missing: %+v", msgs)
	}
}

func TestRefreshTokens(t *testing.T) {
	rig := newRig(domain.RoleStudent)
	rig.backend.tokens.RTCToken = "rtc-2"
	rig.backend.tokens.RTMToken = "rtm-2"

	if err := rig.engine.RefreshTokens(context.Background()); err != nil {
		t.Fatal(err)
	}
	st := rig.store.State()
	if st.Me.RTCToken != "rtc-2" || st.Me.RTMToken != "rtm-2" {
		t.Errorf("tokens not replaced: %+v", st.Me)
	}
}
