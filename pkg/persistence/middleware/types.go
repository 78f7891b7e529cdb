package middleware

import "github.com/botasky11/totml/pkg/ports"

// Middleware allows wrapping an ExperimentStore to add behavior.
type Middleware func(ports.ExperimentStore) ports.ExperimentStore

// Chain wraps store with mws; the first middleware sees calls first.
func Chain(store ports.ExperimentStore, mws ...Middleware) ports.ExperimentStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
