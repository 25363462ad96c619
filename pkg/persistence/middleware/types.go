package middleware

import "github.com/aretw0/formbridge/pkg/ports"

// Middleware allows wrapping a DraftStore to add behavior.
type Middleware func(ports.DraftStore) ports.DraftStore

// Chain wraps store with mws. The first middleware is the outermost one,
// so Chain(s, pii, enc) masks before it encrypts.
func Chain(store ports.DraftStore, mws ...Middleware) ports.DraftStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
