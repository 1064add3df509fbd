// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/fablepress/fable/internal/jobs"
	"github.com/fablepress/fable/internal/store"
)

// Services holds the services endpoint handlers read from the request
// context. Components extract what they need via the individual
// extractors.
type Services struct {
	Store  *store.Store
	Broker *jobs.Broker
	Logger *slog.Logger
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// StoreFrom extracts the book store from context.
func StoreFrom(ctx context.Context) *store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// BrokerFrom extracts the job broker from context.
func BrokerFrom(ctx context.Context) *jobs.Broker {
	if s := ServicesFrom(ctx); s != nil {
		return s.Broker
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}
