package grant

import (
	"github.com/dkeye/listenparty/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Issuer, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewIssuer(Keys{APIKey: cfg.APIKey, APISecret: cfg.APISecret}, WithTTL(cfg.GrantTTL)), nil
	})
}
