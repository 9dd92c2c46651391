package starter

import (
	"context"

	"moff.io/walletconnect/internal/config"
)

// Startable runs in the background until ctx is done.
type Startable interface {
	Start(ctx context.Context)
}

// Configurable components read their settings before they start.
type Configurable interface {
	Apply(*config.Configuration)
}

// Start configures then starts every element in order.
func Start(ctx context.Context, cfg *config.Configuration, elems ...Startable) {
	for _, ele := range elems {
		if configurable, ok := ele.(Configurable); ok && cfg != nil {
			configurable.Apply(cfg)
		}
		ele.Start(ctx)
	}
}
