package signal

import (
	"github.com/dkeye/listenparty/internal/app"
	"github.com/dkeye/listenparty/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*SignalWSController, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewSignalWSController(do.MustInvoke[*app.Orchestrator](i), Options{
			ReadLimit:   cfg.ReadLimit,
			PingPeriod:  cfg.PingPeriod,
			RPCLimit:    cfg.RPCLimit,
			RPCInterval: cfg.RPCInterval,
		}), nil
	})
}
