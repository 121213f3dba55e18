// Package notification composes and delivers patient-facing messages for
// scheduling events. Delivered messages land in an in-memory outbox that can
// be inspected and retried over HTTP.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Channel is the delivery mechanism for a message.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Status of a message after a delivery attempt.
type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// VisitEvent identifies which scheduling event a message is about.
type VisitEvent string

const (
	VisitBooked      VisitEvent = "booked"
	VisitRescheduled VisitEvent = "rescheduled"
	VisitCancelled   VisitEvent = "cancelled"
	VisitCompleted   VisitEvent = "completed"
	VisitReminder    VisitEvent = "reminder"
)

// VisitDetails is the payload composed into a patient message.
type VisitDetails struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	ProviderID    uuid.UUID
	ClinicID      uuid.UUID
	Start         time.Time
	Reason        string
}

// visitView is the data handed to the message templates.
type visitView struct {
	Patient  string
	Provider string
	Date     string
	Time     string
	Reason   string
}

type messageSpec struct {
	subject string
	body    *template.Template
}

func mustSpec(event, subject, body string) messageSpec {
	return messageSpec{
		subject: subject,
		body:    template.Must(template.New(event).Parse(body)),
	}
}

var visitMessages = map[VisitEvent]messageSpec{
	VisitBooked: mustSpec("booked", "Appointment confirmed",
		"Dear {{.Patient}}, your appointment on {{.Date}} at {{.Time}} with {{.Provider}} is confirmed."),
	VisitRescheduled: mustSpec("rescheduled", "Appointment rescheduled",
		"Dear {{.Patient}}, your appointment has been moved to {{.Date}} at {{.Time}} with {{.Provider}}."),
	VisitCancelled: mustSpec("cancelled", "Appointment cancelled",
		"Dear {{.Patient}}, your appointment on {{.Date}} at {{.Time}} has been cancelled.{{if .Reason}} Reason: {{.Reason}}{{end}}"),
	VisitCompleted: mustSpec("completed", "Visit summary",
		"Dear {{.Patient}}, thank you for your visit on {{.Date}} with {{.Provider}}."),
	VisitReminder: mustSpec("reminder", "Appointment reminder",
		"Dear {{.Patient}}, this is a reminder of your appointment on {{.Date}} at {{.Time}} with {{.Provider}}."),
}

// EmailSender delivers email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Message is a composed patient message and the result of its delivery.
type Message struct {
	ID        uuid.UUID  `json:"id"`
	Event     VisitEvent `json:"event"`
	Channel   Channel    `json:"channel"`
	Recipient string     `json:"recipient"`
	Subject   string     `json:"subject,omitempty"`
	Body      string     `json:"body"`
	Status    Status     `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

// Outbox composes visit messages, attempts delivery and records the outcome.
type Outbox struct {
	email EmailSender
	sms   SMSSender
	log   zerolog.Logger

	mu       sync.RWMutex
	messages map[uuid.UUID]*Message
	order    []uuid.UUID
}

func NewOutbox(email EmailSender, sms SMSSender, log zerolog.Logger) *Outbox {
	return &Outbox{
		email:    email,
		sms:      sms,
		log:      log,
		messages: make(map[uuid.UUID]*Message),
	}
}

// NotifyVisit composes the message for the event and delivers it to the
// patient over email. The message is recorded in the outbox whether delivery
// succeeded or not.
func (o *Outbox) NotifyVisit(ctx context.Context, event VisitEvent, d VisitDetails) (*Message, error) {
	spec, ok := visitMessages[event]
	if !ok {
		return nil, fmt.Errorf("no message defined for event %q", event)
	}

	view := visitView{
		Patient:  d.PatientID.String(),
		Provider: d.ProviderID.String(),
		Date:     d.Start.Format("2006-01-02"),
		Time:     d.Start.Format("15:04"),
		Reason:   d.Reason,
	}
	var buf strings.Builder
	if err := spec.body.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("compose %s message: %w", event, err)
	}

	m := &Message{
		ID:        uuid.New(),
		Event:     event,
		Channel:   ChannelEmail,
		Recipient: "patient:" + d.PatientID.String(),
		Subject:   spec.subject,
		Body:      buf.String(),
		CreatedAt: time.Now().UTC(),
	}
	err := o.deliver(ctx, m)

	o.mu.Lock()
	o.messages[m.ID] = m
	o.order = append(o.order, m.ID)
	o.mu.Unlock()

	if err != nil {
		o.log.Error().Err(err).
			Str("event", string(event)).
			Str("recipient", m.Recipient).
			Msg("message delivery failed")
	}
	return m, err
}

func (o *Outbox) deliver(ctx context.Context, m *Message) error {
	var err error
	switch m.Channel {
	case ChannelEmail:
		err = o.email.SendEmail(ctx, m.Recipient, m.Subject, m.Body)
	case ChannelSMS:
		err = o.sms.SendSMS(ctx, m.Recipient, m.Body)
	default:
		err = fmt.Errorf("unsupported channel %q", m.Channel)
	}
	if err != nil {
		m.Status = StatusFailed
		m.Error = err.Error()
		return err
	}
	m.Status = StatusSent
	m.Error = ""
	sentAt := time.Now().UTC()
	m.SentAt = &sentAt
	return nil
}

// Get returns the message with the given id.
func (o *Outbox) Get(id uuid.UUID) (*Message, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	m, ok := o.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s not found", id)
	}
	return m, nil
}

// ListByRecipient returns the recipient's messages in the order they were
// composed, up to limit.
func (o *Outbox) ListByRecipient(recipient string, limit int) []*Message {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []*Message
	for _, id := range o.order {
		m := o.messages[id]
		if m.Recipient != recipient {
			continue
		}
		out = append(out, m)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Retry re-attempts delivery of a failed message.
func (o *Outbox) Retry(ctx context.Context, id uuid.UUID) (*Message, error) {
	o.mu.RLock()
	m, ok := o.messages[id]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("message %s not found", id)
	}
	if m.Status != StatusFailed {
		return nil, fmt.Errorf("message %s is not failed (current: %s)", id, m.Status)
	}

	o.mu.Lock()
	err := o.deliver(ctx, m)
	o.mu.Unlock()
	if err != nil {
		return m, err
	}
	return m, nil
}

// -- Mock senders --

// EmailCall records a single SendEmail invocation.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender records email sends instead of delivering them.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of the recorded calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// SMSCall records a single SendSMS invocation.
type SMSCall struct {
	To   string
	Body string
}

// MockSMSSender records SMS sends instead of delivering them.
type MockSMSSender struct {
	mu         sync.Mutex
	calls      []SMSCall
	ShouldFail bool
	FailError  string
}

func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of the recorded calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// -- HTTP handler --

// Handler exposes the outbox read and retry operations.
type Handler struct {
	outbox *Outbox
}

func NewHandler(o *Outbox) *Handler {
	return &Handler{outbox: o}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.List)
	g.GET("/notifications/:id", h.Get)
	g.POST("/notifications/:id/retry", h.Retry)
}

// Get handles GET /notifications/:id.
func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid message id"})
	}
	m, err := h.outbox.Get(id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, m)
}

// List handles GET /notifications?recipient=...
func (h *Handler) List(c echo.Context) error {
	recipient := c.QueryParam("recipient")
	if recipient == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "recipient query parameter is required"})
	}
	list := h.outbox.ListByRecipient(recipient, 100)
	if list == nil {
		list = []*Message{}
	}
	return c.JSON(http.StatusOK, list)
}

// Retry handles POST /notifications/:id/retry.
func (h *Handler) Retry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid message id"})
	}
	m, err := h.outbox.Retry(c.Request().Context(), id)
	if err != nil && m == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, m)
}
