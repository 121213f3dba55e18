package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func testDetails() VisitDetails {
	return VisitDetails{
		AppointmentID: uuid.New(),
		PatientID:     uuid.New(),
		ProviderID:    uuid.New(),
		ClinicID:      uuid.New(),
		Start:         time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC),
	}
}

func newOutbox(email *MockEmailSender, sms *MockSMSSender) *Outbox {
	if email == nil {
		email = &MockEmailSender{}
	}
	if sms == nil {
		sms = &MockSMSSender{}
	}
	return NewOutbox(email, sms, zerolog.Nop())
}

func TestNotifyVisit_Delivers(t *testing.T) {
	email := &MockEmailSender{}
	o := newOutbox(email, nil)
	d := testDetails()

	m, err := o.NotifyVisit(context.Background(), VisitBooked, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Status != StatusSent {
		t.Errorf("status = %s, want sent", m.Status)
	}
	if m.SentAt == nil {
		t.Error("sent_at not set")
	}
	if want := "patient:" + d.PatientID.String(); m.Recipient != want {
		t.Errorf("recipient = %s, want %s", m.Recipient, want)
	}

	calls := email.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email, got %d", len(calls))
	}
	if calls[0].Subject != "Appointment confirmed" {
		t.Errorf("subject = %q", calls[0].Subject)
	}
	if !strings.Contains(calls[0].Body, "2026-04-01") || !strings.Contains(calls[0].Body, "09:30") {
		t.Errorf("body missing visit date/time: %q", calls[0].Body)
	}
}

func TestNotifyVisit_EveryEventComposes(t *testing.T) {
	o := newOutbox(nil, nil)
	events := []VisitEvent{VisitBooked, VisitRescheduled, VisitCancelled, VisitCompleted, VisitReminder}
	for _, ev := range events {
		m, err := o.NotifyVisit(context.Background(), ev, testDetails())
		if err != nil {
			t.Errorf("%s: unexpected error: %v", ev, err)
			continue
		}
		if m.Subject == "" || m.Body == "" {
			t.Errorf("%s: empty subject or body", ev)
		}
	}
}

func TestNotifyVisit_UnknownEvent(t *testing.T) {
	o := newOutbox(nil, nil)
	if _, err := o.NotifyVisit(context.Background(), VisitEvent("solar-eclipse"), testDetails()); err == nil {
		t.Error("expected error for unknown event")
	}
}

func TestNotifyVisit_CancellationReason(t *testing.T) {
	email := &MockEmailSender{}
	o := newOutbox(email, nil)
	d := testDetails()
	d.Reason = "provider out sick"

	if _, err := o.NotifyVisit(context.Background(), VisitCancelled, d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := email.Calls()[0].Body
	if !strings.Contains(body, "Reason: provider out sick") {
		t.Errorf("body missing reason: %q", body)
	}

	// Without a reason the clause is omitted entirely.
	if _, err := o.NotifyVisit(context.Background(), VisitCancelled, testDetails()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body := email.Calls()[1].Body; strings.Contains(body, "Reason:") {
		t.Errorf("unexpected reason clause: %q", body)
	}
}

func TestNotifyVisit_FailureRecorded(t *testing.T) {
	email := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	o := newOutbox(email, nil)

	m, err := o.NotifyVisit(context.Background(), VisitBooked, testDetails())
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if m.Status != StatusFailed {
		t.Errorf("status = %s, want failed", m.Status)
	}
	if m.Error != "smtp down" {
		t.Errorf("error = %q", m.Error)
	}

	// The failed message is still in the outbox.
	got, err := o.Get(m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFailed {
		t.Errorf("stored status = %s", got.Status)
	}
}

func TestOutbox_GetNotFound(t *testing.T) {
	o := newOutbox(nil, nil)
	if _, err := o.Get(uuid.New()); err == nil {
		t.Error("expected error for unknown message id")
	}
}

func TestOutbox_ListByRecipient(t *testing.T) {
	o := newOutbox(nil, nil)
	d := testDetails()
	other := testDetails()

	o.NotifyVisit(context.Background(), VisitBooked, d)
	o.NotifyVisit(context.Background(), VisitReminder, other)
	o.NotifyVisit(context.Background(), VisitRescheduled, d)

	list := o.ListByRecipient("patient:"+d.PatientID.String(), 10)
	if len(list) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(list))
	}
	// Composition order is preserved.
	if list[0].Event != VisitBooked || list[1].Event != VisitRescheduled {
		t.Errorf("order = %s, %s", list[0].Event, list[1].Event)
	}

	if capped := o.ListByRecipient("patient:"+d.PatientID.String(), 1); len(capped) != 1 {
		t.Errorf("limit ignored, got %d", len(capped))
	}
}

func TestOutbox_Retry(t *testing.T) {
	email := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	o := newOutbox(email, nil)

	m, _ := o.NotifyVisit(context.Background(), VisitBooked, testDetails())

	email.ShouldFail = false
	got, err := o.Retry(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got.Status != StatusSent || got.Error != "" {
		t.Errorf("status=%s error=%q after retry", got.Status, got.Error)
	}
	if len(email.Calls()) != 2 {
		t.Errorf("expected 2 delivery attempts, got %d", len(email.Calls()))
	}
}

func TestOutbox_RetryNonFailed(t *testing.T) {
	o := newOutbox(nil, nil)
	m, err := o.NotifyVisit(context.Background(), VisitBooked, testDetails())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := o.Retry(context.Background(), m.ID); err == nil {
		t.Error("expected error retrying a sent message")
	}
	if _, err := o.Retry(context.Background(), uuid.New()); err == nil {
		t.Error("expected error retrying an unknown message")
	}
}

func TestOutbox_ConcurrentNotify(t *testing.T) {
	o := newOutbox(nil, nil)
	d := testDetails()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.NotifyVisit(context.Background(), VisitReminder, d)
		}()
	}
	wg.Wait()

	if list := o.ListByRecipient("patient:"+d.PatientID.String(), 100); len(list) != 20 {
		t.Errorf("expected 20 messages, got %d", len(list))
	}
}

// -- HTTP handler --

func handlerFixture() (*Handler, *Outbox, *echo.Echo) {
	o := newOutbox(nil, nil)
	return NewHandler(o), o, echo.New()
}

func TestHandler_Get(t *testing.T) {
	h, o, e := handlerFixture()
	m, _ := o.NotifyVisit(context.Background(), VisitBooked, testDetails())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(m.ID.String())

	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got Message
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != m.ID {
		t.Errorf("id = %s, want %s", got.ID, m.ID)
	}
}

func TestHandler_GetNotFound(t *testing.T) {
	h, _, e := handlerFixture()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	h.Get(c)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandler_GetBadID(t *testing.T) {
	h, _, e := handlerFixture()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	h.Get(c)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandler_List(t *testing.T) {
	h, o, e := handlerFixture()
	d := testDetails()
	o.NotifyVisit(context.Background(), VisitBooked, d)
	o.NotifyVisit(context.Background(), VisitReminder, d)

	target := fmt.Sprintf("/?recipient=%s", "patient:"+d.PatientID.String())
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []Message
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 messages, got %d", len(got))
	}
}

func TestHandler_ListRequiresRecipient(t *testing.T) {
	h, _, e := handlerFixture()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h.List(c)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandler_ListEmptyNotNull(t *testing.T) {
	h, _, e := handlerFixture()

	req := httptest.NewRequest(http.MethodGet, "/?recipient=patient:nobody", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h.List(c)
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %q, want []", body)
	}
}

func TestHandler_Retry(t *testing.T) {
	email := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	o := NewOutbox(email, &MockSMSSender{}, zerolog.Nop())
	h := NewHandler(o)
	e := echo.New()

	m, _ := o.NotifyVisit(context.Background(), VisitBooked, testDetails())
	email.ShouldFail = false

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(m.ID.String())

	if err := h.Retry(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Message
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != StatusSent {
		t.Errorf("status = %s, want sent", got.Status)
	}
}
