package app

import "github.com/dkeye/listenparty/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

type Policy interface {
	OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction {
	return KickMember
}

// HostSparingPolicy drops frames for a slow host instead of kicking it.
type HostSparingPolicy struct{}

func (HostSparingPolicy) OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction {
	if member.Participant().IsHost() {
		return DropFrame
	}
	return KickMember
}
