package store

import "github.com/edukit/classsync/internal/domain"

func compositeMe(me domain.Me, attrs domain.MeAttrs) domain.Me {
	if attrs.UID != nil {
		me.UID = *attrs.UID
	}
	if attrs.UserID != nil {
		me.UserID = *attrs.UserID
	}
	if attrs.Account != nil {
		me.Account = *attrs.Account
	}
	if attrs.Role != nil {
		me.Role = *attrs.Role
	}
	if attrs.Video != nil {
		me.Video = domain.ClampFlag(int(*attrs.Video))
	}
	if attrs.Audio != nil {
		me.Audio = domain.ClampFlag(int(*attrs.Audio))
	}
	if attrs.Chat != nil {
		me.Chat = domain.ClampFlag(int(*attrs.Chat))
	}
	if attrs.GrantBoard != nil {
		me.GrantBoard = domain.ClampFlag(int(*attrs.GrantBoard))
	}
	if attrs.CoVideo != nil {
		me.CoVideo = domain.ClampFlag(int(*attrs.CoVideo))
	}
	if attrs.ScreenID != nil {
		me.ScreenID = *attrs.ScreenID
	}
	if attrs.RTCToken != nil {
		me.RTCToken = *attrs.RTCToken
	}
	if attrs.RTMToken != nil {
		me.RTMToken = *attrs.RTMToken
	}
	if attrs.ChannelName != nil {
		me.ChannelName = *attrs.ChannelName
	}
	if attrs.AppID != nil {
		me.AppID = *attrs.AppID
	}
	if attrs.Password != nil {
		me.Password = *attrs.Password
	}
	return me
}

func compositeCourse(course domain.Course, attrs domain.CourseAttrs) domain.Course {
	if attrs.RoomID != nil {
		course.RoomID = *attrs.RoomID
	}
	if attrs.RoomName != nil {
		course.RoomName = *attrs.RoomName
	}
	if attrs.BoardID != nil {
		course.BoardID = *attrs.BoardID
	}
	if attrs.BoardToken != nil {
		course.BoardToken = *attrs.BoardToken
	}
	if attrs.CourseState != nil {
		course.CourseState = domain.ClampFlag(int(*attrs.CourseState))
	}
	if attrs.MuteChat != nil {
		course.MuteChat = domain.ClampFlag(int(*attrs.MuteChat))
	}
	if attrs.LockBoard != nil {
		course.LockBoard = domain.ClampFlag(int(*attrs.LockBoard))
	}
	if attrs.IsRecording != nil {
		course.IsRecording = *attrs.IsRecording
	}
	if attrs.RecordID != nil {
		course.RecordID = *attrs.RecordID
	}
	if attrs.RecordingTime != nil {
		course.RecordingTime = *attrs.RecordingTime
	}
	return course
}
