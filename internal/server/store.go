package server

import (
	"context"
	"sync"

	"github.com/fablepress/fable/internal/store"
)

// storeHandle guards the store pointer: Start opens it while request
// middleware may already be probing readiness.
type storeHandle struct {
	mu sync.RWMutex
	st *store.Store
}

func (h *storeHandle) open(ctx context.Context, path string) (*store.Store, error) {
	st, err := store.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.st = st
	h.mu.Unlock()
	return st, nil
}

func (h *storeHandle) get() *store.Store {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.st
}

func (h *storeHandle) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.st == nil {
		return nil
	}
	err := h.st.Close()
	h.st = nil
	return err
}
