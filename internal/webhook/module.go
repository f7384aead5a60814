// This file defines the module that encapsulates webhook setup and route
// registration.
package webhook

import (
	"nurture_backend/internal/events"
	"nurture_backend/platform/config"
	"nurture_backend/platform/httpkit"
	"nurture_backend/platform/logger"
	"nurture_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Module is the webhook bounded context module.
type Module struct {
	handler *Handler
	cfg     config.WebhookConfig
}

// NewModule creates and initializes the webhook module with all its dependencies.
func NewModule(store Store, tasks ReviewEnqueuer, bus events.Bus, cfg config.WebhookConfig, val *validator.Validator, log *logger.Logger) *Module {
	service := NewService(store, tasks, bus, log)
	handler := NewHandler(service, val)

	return &Module{
		handler: handler,
		cfg:     cfg,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router group.
// All endpoints authenticate with the shared webhook API key.
func (m *Module) RegisterRoutes(v1 *gin.RouterGroup) {
	group := v1.Group("/webhook")
	group.Use(httpkit.APIKeyRequired(m.cfg))

	group.POST("/leads", m.handler.HandleRegisterLead)
	group.POST("/inbound", m.handler.HandleInboundReply)
	group.POST("/consent/revoke", m.handler.HandleConsentRevocation)
	group.POST("/call-outcomes", m.handler.HandleCallOutcome)
	group.POST("/appointments", m.handler.HandleBookAppointment)
	group.PATCH("/appointments/:appointmentId/status", m.handler.HandleAppointmentStatus)
}
