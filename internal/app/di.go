package app

import (
	"github.com/dkeye/listenparty/internal/core"
	"github.com/samber/do/v2"
)

// RegisterDI provides the registry, room manager, backpressure policy and
// orchestrator.
func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Registry, error) {
		return NewRegistry(), nil
	})
	do.Provide(injector, func(i do.Injector) (core.RoomManager, error) {
		return NewRoomManager(), nil
	})
	do.ProvideValue[Policy](injector, HostSparingPolicy{})
	do.Provide(injector, func(i do.Injector) (*Orchestrator, error) {
		return &Orchestrator{
			Registry: do.MustInvoke[*Registry](i),
			Rooms:    do.MustInvoke[core.RoomManager](i),
			Policy:   do.MustInvoke[Policy](i),
		}, nil
	})
}
