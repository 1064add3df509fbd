package endpoints

import (
	"github.com/fablepress/fable/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},

		// Book endpoints
		&CreateBookEndpoint{},
		&ListBooksEndpoint{},
		&GetBookEndpoint{},
		&DeleteBookEndpoint{},

		// Generation endpoints
		&GenerateEndpoint{},
		&StatusEndpoint{},

		// Page endpoints
		&ListPagesEndpoint{},
		&UpdatePageTextEndpoint{},
		&SetCoverEndpoint{},

		// Print endpoints
		&PrintEndpoint{},
	}
}
