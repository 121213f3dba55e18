package scheduling

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints: all clinical and front-desk roles
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse", "registrar"))
	readGroup.GET("/appointments/:id", h.GetAppointment)
	readGroup.GET("/patients/:id/appointments", h.ListPatientAppointments)
	readGroup.GET("/blocked-slots/:id", h.GetBlockedSlot)
	readGroup.GET("/clinics/:id/agenda", h.DailyAgenda)
	readGroup.GET("/clinics/:id/availability", h.AvailableSlots)

	// Write endpoints: admin, physician, registrar
	writeGroup := api.Group("", auth.RequireRole("admin", "physician", "registrar"))
	writeGroup.POST("/appointments", h.CreateAppointment)
	writeGroup.POST("/appointments/:id/checkin", h.CheckIn)
	writeGroup.POST("/appointments/:id/start", h.StartVisit)
	writeGroup.POST("/appointments/:id/complete", h.Complete)
	writeGroup.POST("/appointments/:id/no-show", h.MarkNoShow)
	writeGroup.POST("/appointments/:id/cancel", h.Cancel)
	writeGroup.POST("/appointments/:id/reschedule", h.Reschedule)
	writeGroup.POST("/appointments/:id/cancel-scope", h.CancelWithScope)
	writeGroup.POST("/blocked-slots", h.CreateBlockedSlot)
	writeGroup.POST("/blocked-slots/:id/remove", h.RemoveBlockedSlot)
	writeGroup.POST("/blocked-slots/:id/remove-scope", h.RemoveBlockedWithScope)
	writeGroup.POST("/recurring-series", h.CreateRecurringSeries)
}

// httpError maps domain errors onto HTTP statuses. Unknown errors bubble up
// to the echo error handler as 500s.
func httpError(err error) error {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		conflict   *ConflictError
		transition *InvalidTransitionError
		invariant  *InvariantViolationError
	)
	switch {
	case errors.As(err, &validation):
		return echo.NewHTTPError(http.StatusBadRequest, validation.Error())
	case errors.As(err, &notFound):
		return echo.NewHTTPError(http.StatusNotFound, notFound.Error())
	case errors.As(err, &conflict):
		return echo.NewHTTPError(http.StatusConflict, conflict.Error())
	case errors.As(err, &transition):
		return echo.NewHTTPError(http.StatusConflict, transition.Error())
	case errors.As(err, &invariant):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, invariant.Error())
	}
	return err
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func queryDate(c echo.Context) (time.Time, error) {
	raw := c.QueryParam("date")
	if raw == "" {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "date query parameter is required (YYYY-MM-DD)")
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
	}
	return date, nil
}

// -- Appointments --

func (h *Handler) CreateAppointment(c echo.Context) error {
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateAppointment(c.Request().Context(), &a); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CheckIn(c echo.Context) error {
	return h.simpleTransition(c, h.svc.CheckIn)
}

func (h *Handler) StartVisit(c echo.Context) error {
	return h.simpleTransition(c, h.svc.StartVisit)
}

func (h *Handler) Complete(c echo.Context) error {
	return h.simpleTransition(c, h.svc.Complete)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	return h.simpleTransition(c, h.svc.MarkNoShow)
}

func (h *Handler) simpleTransition(c echo.Context, op func(ctx context.Context, id uuid.UUID) (*Appointment, error)) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := op(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type cancelRequest struct {
	Reason *string `json:"reason"`
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Cancel(c.Request().Context(), id, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type rescheduleRequest struct {
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Reschedule(c.Request().Context(), id, req.StartTime, req.DurationMinutes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type scopeRequest struct {
	Scope  string  `json:"scope"`
	Reason *string `json:"reason"`
}

func (h *Handler) CancelWithScope(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req scopeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	scope, err := ParseScope(req.Scope)
	if err != nil {
		return httpError(err)
	}
	res, err := h.svc.CancelWithScope(c.Request().Context(), id, scope, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListPatientAppointments(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	from := time.Time{}
	if raw := c.QueryParam("from"); raw != "" {
		from, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from, want YYYY-MM-DD")
		}
	}
	p := pagination.FromContext(c)
	appts, total, err := h.svc.ListPatientAppointments(c.Request().Context(), patientID, from, p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(appts, total, p.Limit, p.Offset))
}

// -- Blocked time --

func (h *Handler) CreateBlockedSlot(c echo.Context) error {
	var b BlockedSlot
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateBlockedSlot(c.Request().Context(), &b); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBlockedSlot(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.GetBlockedSlot(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) RemoveBlockedSlot(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.RemoveBlockedSlot(c.Request().Context(), id, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) RemoveBlockedWithScope(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req scopeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	scope, err := ParseScope(req.Scope)
	if err != nil {
		return httpError(err)
	}
	res, err := h.svc.RemoveBlockedWithScope(c.Request().Context(), id, scope, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// -- Recurring series --

type recurringSeriesRequest struct {
	RecurrencePattern
	Policy string `json:"policy"`
}

func (h *Handler) CreateRecurringSeries(c echo.Context) error {
	var req recurringSeriesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.CreateRecurringSeries(c.Request().Context(), &req.RecurrencePattern, MaterializePolicy(req.Policy))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

// -- Day views --

func (h *Handler) DailyAgenda(c echo.Context) error {
	clinicID, err := pathID(c)
	if err != nil {
		return err
	}
	date, err := queryDate(c)
	if err != nil {
		return err
	}
	agenda, err := h.svc.DailyAgenda(c.Request().Context(), clinicID, date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, agenda)
}

func (h *Handler) AvailableSlots(c echo.Context) error {
	clinicID, err := pathID(c)
	if err != nil {
		return err
	}
	date, err := queryDate(c)
	if err != nil {
		return err
	}
	slotMinutes := 30
	if raw := c.QueryParam("slot_minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid slot_minutes")
		}
		slotMinutes = n
	}
	var providerIDs []uuid.UUID
	for _, raw := range c.QueryParams()["provider_id"] {
		pid, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid provider_id")
		}
		providerIDs = append(providerIDs, pid)
	}
	slots, err := h.svc.AvailableSlots(c.Request().Context(), clinicID, date, slotMinutes, providerIDs)
	if err != nil {
		return httpError(err)
	}
	if slots == nil {
		slots = []AvailableSlot{}
	}
	return c.JSON(http.StatusOK, slots)
}
