// Package oracle adapts a generative model into the engine's decision step.
// The model sees a compact snapshot of the lead and the recent conversation
// and answers with a single structured action. Everything the model proposes
// still passes through the guard before anything is sent.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"nurture_backend/internal/leads/domain"
	"nurture_backend/internal/leads/health"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/logger"
)

// Request is everything the oracle is allowed to see about a lead.
type Request struct {
	Lead           domain.Lead
	Signal         health.Signal
	Communications []domain.Communication // most recent first
	LastCall       *domain.CallOutcome
	Now            time.Time
}

// decision mirrors decisionSchema.
type decision struct {
	Action     string  `json:"action"`
	Channel    string  `json:"channel"`
	Message    string  `json:"message"`
	WaitHours  float64 `json:"waitHours"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type Config interface {
	GetGeminiAPIKey() string
	GetOracleModel() string
	GetOracleTimeout() time.Duration
	GetOracleRequestsPerMinute() int
}

// Gemini proposes next actions using the Gemini API with a constrained
// JSON response schema.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	log     *logger.Logger
}

func NewGemini(ctx context.Context, cfg Config, log *logger.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GetGeminiAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "create gemini client", err)
	}

	rpm := cfg.GetOracleRequestsPerMinute()
	if rpm <= 0 {
		rpm = 30
	}

	return &Gemini{
		client:  client,
		model:   cfg.GetOracleModel(),
		timeout: cfg.GetOracleTimeout(),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm),
		log:     log,
	}, nil
}

// Propose asks the model for the next action. The call is bounded by the
// configured timeout so a slow model stalls one lead, not the batch.
func (g *Gemini) Propose(ctx context.Context, req Request) (domain.ProposedAction, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return domain.ProposedAction{}, apperr.Wrap(apperr.KindUnavailable, "oracle rate limit wait", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := buildPrompt(req)
	started := time.Now()

	resp, err := g.client.Models.GenerateContent(callCtx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   decisionSchema,
		Temperature:      genai.Ptr[float32](0.3),
	})
	if err != nil {
		return domain.ProposedAction{}, apperr.Wrap(apperr.KindUnavailable, "oracle generate", err)
	}

	raw := strings.TrimSpace(resp.Text())

	var d decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return domain.ProposedAction{}, apperr.Wrap(apperr.KindInternal, "parse oracle decision", err)
	}
	g.log.OracleCall(req.Lead.ID.String(), d.Action, float64(time.Since(started).Milliseconds()))
	return toProposal(d)
}

func toProposal(d decision) (domain.ProposedAction, error) {
	action := domain.ActionType(d.Action)
	switch action {
	case domain.ActionSendMessage, domain.ActionSendBookingLink, domain.ActionWait, domain.ActionEscalate:
	default:
		return domain.ProposedAction{}, apperr.Validation(fmt.Sprintf("oracle returned unknown action %q", d.Action))
	}

	p := domain.ProposedAction{
		Type:       action,
		Confidence: d.Confidence,
		Reason:     d.Reason,
	}
	if p.IsSend() {
		switch domain.Channel(d.Channel) {
		case domain.ChannelSMS, domain.ChannelEmail:
			p.Channel = domain.Channel(d.Channel)
		default:
			return domain.ProposedAction{}, apperr.Validation(fmt.Sprintf("oracle returned unknown channel %q", d.Channel))
		}
		p.Message = strings.TrimSpace(d.Message)
	}
	if action == domain.ActionWait && d.WaitHours > 0 {
		p.Wait = time.Duration(d.WaitHours * float64(time.Hour))
	}
	return p, nil
}

const systemPreamble = `You are a follow-up assistant for a sales team. Given a lead's
current state and recent conversation, decide the single best next step.
Rules:
- Never invent facts, prices, or availability.
- Never promise that a specific person will call at a specific time.
- Keep messages short, warm, and specific to what the lead last said.
- If the lead sounds frustrated or asks for a human, escalate.
- If there is nothing useful to say, wait.`

func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\n## Lead\n")
	fmt.Fprintf(&b, "Name: %s %s\n", req.Lead.FirstName, req.Lead.LastName)
	fmt.Fprintf(&b, "Stage: %s\n", req.Lead.Stage)
	fmt.Fprintf(&b, "Temperature: %s (trend %s)\n", req.Signal.Temperature, req.Signal.Trend)
	if req.Signal.Urgency != "" {
		fmt.Fprintf(&b, "Urgency: %s\n", req.Signal.Urgency)
	}
	fmt.Fprintf(&b, "Hours since last contact: %.1f\n", req.Lead.HoursSinceContact(req.Now))
	fmt.Fprintf(&b, "Consent: sms=%t email=%t\n", req.Lead.Consent.SMS, req.Lead.Consent.Email)

	if req.LastCall != nil {
		b.WriteString("\n## Last call\n")
		fmt.Fprintf(&b, "Outcome: %s\n", req.LastCall.Outcome)
		if req.LastCall.Notes != nil && *req.LastCall.Notes != "" {
			fmt.Fprintf(&b, "Notes: %s\n", *req.LastCall.Notes)
		}
		fmt.Fprintf(&b, "Ready to proceed: %t\n", req.LastCall.ReadyToProceed)
	}

	if len(req.Communications) > 0 {
		b.WriteString("\n## Recent conversation (newest first)\n")
		limit := len(req.Communications)
		if limit > 10 {
			limit = 10
		}
		for _, c := range req.Communications[:limit] {
			age := req.Now.Sub(c.CreatedAt).Round(time.Minute)
			fmt.Fprintf(&b, "[%s, %s, %s ago] %s\n", c.Direction, c.Channel, age, c.Content)
		}
	}

	b.WriteString("\nDecide the next step and respond as JSON.")
	return b.String()
}
