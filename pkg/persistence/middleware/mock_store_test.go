package middleware_test

import (
	"github.com/aretw0/formbridge/pkg/adapters/memory"
)

// NewMockStore returns the in-memory draft store used underneath the middlewares.
func NewMockStore() *memory.Store {
	return memory.NewStore()
}
