package webhook

import (
	"net/http"
	"time"

	"nurture_backend/internal/leads/domain"
	"nurture_backend/platform/httpkit"
	"nurture_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"
)

// Handler handles webhook HTTP requests.
type Handler struct {
	service *Service
	val     *validator.Validator
}

// NewHandler creates a new webhook handler.
func NewHandler(service *Service, val *validator.Validator) *Handler {
	return &Handler{service: service, val: val}
}

// RegisterLeadRequest is a new lead posted by a capture form or provider.
type RegisterLeadRequest struct {
	FirstName    string            `json:"firstName" validate:"required,min=1,max=100"`
	LastName     string            `json:"lastName" validate:"required,min=1,max=100"`
	Phone        string            `json:"phone" validate:"required,min=6,max=20"`
	Email        *string           `json:"email" validate:"omitempty,email"`
	Region       string            `json:"region" validate:"required,oneof=US_EAST US_CENTRAL US_MOUNTAIN US_PACIFIC US_ARIZONA US_HAWAII US_ALASKA"`
	ConsentSMS   bool              `json:"consentSms"`
	ConsentEmail bool              `json:"consentEmail"`
	ConsentCall  bool              `json:"consentCall"`
	Autonomous   bool              `json:"autonomous"`
	Attributes   map[string]string `json:"attributes" validate:"max=50"`
}

// RegisterLeadResponse is returned for lead intake.
type RegisterLeadResponse struct {
	LeadID  uuid.UUID `json:"leadId"`
	Created bool      `json:"created"`
}

// HandleRegisterLead processes a lead intake payload.
// POST /api/v1/webhook/leads
func (h *Handler) HandleRegisterLead(c *gin.Context) {
	var req RegisterLeadRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	lead, created, err := h.service.RegisterLead(c.Request.Context(), LeadIntake{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		Email:        req.Email,
		Region:       req.Region,
		ConsentSMS:   req.ConsentSMS,
		ConsentEmail: req.ConsentEmail,
		ConsentCall:  req.ConsentCall,
		Autonomous:   req.Autonomous,
		Attributes:   req.Attributes,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, RegisterLeadResponse{LeadID: lead.ID, Created: created})
}

// InboundReplyRequest is a delivery report for a message the lead sent back.
type InboundReplyRequest struct {
	Phone   string `json:"phone" validate:"required,min=6,max=20"`
	Channel string `json:"channel" validate:"required,oneof=sms email"`
	Content string `json:"content" validate:"required,min=1,max=5000"`
}

// InboundReplyResponse acknowledges a recorded reply.
type InboundReplyResponse struct {
	CommunicationID uuid.UUID `json:"communicationId"`
	LeadID          uuid.UUID `json:"leadId"`
}

// HandleInboundReply records a reply from a lead.
// POST /api/v1/webhook/inbound
func (h *Handler) HandleInboundReply(c *gin.Context) {
	var req InboundReplyRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	comm, err := h.service.RecordInboundReply(c.Request.Context(), InboundReply{
		Phone:   req.Phone,
		Channel: domain.Channel(req.Channel),
		Content: req.Content,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusCreated, InboundReplyResponse{
		CommunicationID: comm.ID,
		LeadID:          comm.LeadID,
	})
}

// ConsentRevocationRequest is an opt-out report. Omitting channel revokes
// every channel.
type ConsentRevocationRequest struct {
	Phone   string `json:"phone" validate:"required,min=6,max=20"`
	Channel string `json:"channel" validate:"omitempty,oneof=sms email call"`
	Source  string `json:"source" validate:"required,min=1,max=100"`
}

// HandleConsentRevocation clears consent flags for a lead.
// POST /api/v1/webhook/consent/revoke
func (h *Handler) HandleConsentRevocation(c *gin.Context) {
	var req ConsentRevocationRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	err := h.service.RevokeConsent(c.Request.Context(), ConsentRevocation{
		Phone:   req.Phone,
		Channel: domain.Channel(req.Channel),
		Source:  req.Source,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusNoContent, nil)
}

// CallOutcomeRequest is the result of an advisor call.
type CallOutcomeRequest struct {
	Phone          string     `json:"phone" validate:"required,min=6,max=20"`
	Outcome        string     `json:"outcome" validate:"required,min=1,max=100"`
	Notes          *string    `json:"notes" validate:"omitempty,max=5000"`
	ReadyToProceed bool       `json:"readyToProceed"`
	OccurredAt     *time.Time `json:"occurredAt"`
}

// CallOutcomeResponse acknowledges a recorded call result.
type CallOutcomeResponse struct {
	CallOutcomeID uuid.UUID `json:"callOutcomeId"`
	LeadID        uuid.UUID `json:"leadId"`
}

// HandleCallOutcome records a call result and advances the lead stage.
// POST /api/v1/webhook/call-outcomes
func (h *Handler) HandleCallOutcome(c *gin.Context) {
	var req CallOutcomeRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	report := CallReport{
		Phone:          req.Phone,
		Outcome:        req.Outcome,
		Notes:          req.Notes,
		ReadyToProceed: req.ReadyToProceed,
	}
	if req.OccurredAt != nil {
		report.OccurredAt = *req.OccurredAt
	}

	call, err := h.service.RecordCallOutcome(c.Request.Context(), report)
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusCreated, CallOutcomeResponse{
		CallOutcomeID: call.ID,
		LeadID:        call.LeadID,
	})
}

// AppointmentRequest schedules a consultation.
type AppointmentRequest struct {
	Phone     string    `json:"phone" validate:"required,min=6,max=20"`
	AdvisorID uuid.UUID `json:"advisorId" validate:"required"`
	StartTime time.Time `json:"startTime" validate:"required"`
}

// AppointmentResponse acknowledges a booked appointment.
type AppointmentResponse struct {
	AppointmentID uuid.UUID `json:"appointmentId"`
	LeadID        uuid.UUID `json:"leadId"`
	Status        string    `json:"status"`
}

// HandleBookAppointment books an appointment for a lead.
// POST /api/v1/webhook/appointments
func (h *Handler) HandleBookAppointment(c *gin.Context) {
	var req AppointmentRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	appt, err := h.service.BookAppointment(c.Request.Context(), AppointmentBooking{
		Phone:     req.Phone,
		AdvisorID: req.AdvisorID,
		StartTime: req.StartTime,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusCreated, AppointmentResponse{
		AppointmentID: appt.ID,
		LeadID:        appt.LeadID,
		Status:        string(appt.Status),
	})
}

// AppointmentStatusRequest is a provider status change for an appointment.
type AppointmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=scheduled confirmed completed cancelled no_show"`
}

// HandleAppointmentStatus applies a status change to an appointment.
// PATCH /api/v1/webhook/appointments/:appointmentId/status
func (h *Handler) HandleAppointmentStatus(c *gin.Context) {
	apptID, err := uuid.Parse(c.Param("appointmentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid appointment ID")
		return
	}

	var req AppointmentStatusRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	err = h.service.UpdateAppointmentStatus(c.Request.Context(), apptID, domain.AppointmentStatus(req.Status))
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusNoContent, nil)
}

func (h *Handler) bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation)
		return false
	}
	return true
}
