package routes

import (
	"github.com/gin-gonic/gin"

	"health-companion/services/chat-gateway/internal/interfaces/httpserver/handlers"
	api "health-companion/services/chat-gateway/internal/interfaces/httpserver/routes/api"
)

// Provider coordinates all route registrations.
type Provider struct {
	API *api.Routes
}

// NewProvider constructs the route provider.
func NewProvider(handlerProvider *handlers.Provider) *Provider {
	return &Provider{
		API: api.NewRoutes(handlerProvider),
	}
}

// Register attaches all available routes to the gin engine.
func (p *Provider) Register(engine *gin.Engine) {
	p.API.Register(engine)
}
