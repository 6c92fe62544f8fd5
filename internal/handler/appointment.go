package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/pitch-booking/internal/middleware"
	"github.com/iliyamo/pitch-booking/internal/scheduling"
)

// AppointmentHandler exposes the scheduling service over HTTP.  Every
// route expects JWTAuth to have run; the caller's identity is read from
// the echo context and never from the request body.
type AppointmentHandler struct {
	svc *scheduling.Service
	log *zap.Logger
}

// NewAppointmentHandler panics when svc is nil.
func NewAppointmentHandler(svc *scheduling.Service, log *zap.Logger) *AppointmentHandler {
	if svc == nil {
		panic("nil service passed to NewAppointmentHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AppointmentHandler{svc: svc, log: log}
}

type createRequest struct {
	Field     uint64     `json:"field" validate:"required"`
	StartTime *time.Time `json:"start_time" validate:"required"`
	EndTime   *time.Time `json:"end_time" validate:"required"`
}

type updateRequest struct {
	Field     *uint64    `json:"field" validate:"omitempty,gt=0"`
	User      *uint64    `json:"user" validate:"omitempty,gt=0"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

type checkRequest struct {
	FieldID   uint64 `json:"field_id" validate:"required"`
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type slotsQuery struct {
	FieldID  uint64  `query:"field_id" validate:"required"`
	Date     string  `query:"date" validate:"required"`
	Duration float64 `query:"duration"`
}

// Create handles POST /v1/appointments.
func (h *AppointmentHandler) Create(c echo.Context) error {
	who, err := middleware.CurrentIdentity(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body createRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": validationMessage(err)})
	}
	v, err := h.svc.Create(c.Request().Context(), who, scheduling.CreateInput{
		FieldID: body.Field,
		Start:   *body.StartTime,
		End:     *body.EndTime,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, newAppointmentResponse(v, h.svc.Location()))
}

// Update handles PUT and PATCH /v1/appointments/:id.  Both verbs merge
// the supplied members into the stored booking.
func (h *AppointmentHandler) Update(c echo.Context) error {
	who, err := middleware.CurrentIdentity(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := appointmentID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid appointment id"})
	}
	var body updateRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": validationMessage(err)})
	}
	v, err := h.svc.Update(c.Request().Context(), who, id, scheduling.UpdateInput{
		FieldID: body.Field,
		UserID:  body.User,
		Start:   body.StartTime,
		End:     body.EndTime,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, newAppointmentResponse(v, h.svc.Location()))
}

// Delete handles DELETE /v1/appointments/:id.
func (h *AppointmentHandler) Delete(c echo.Context) error {
	who, err := middleware.CurrentIdentity(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := appointmentID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid appointment id"})
	}
	if err := h.svc.Delete(c.Request().Context(), who, id); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Get handles GET /v1/appointments/:id.
func (h *AppointmentHandler) Get(c echo.Context) error {
	who, err := middleware.CurrentIdentity(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := appointmentID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid appointment id"})
	}
	v, err := h.svc.Get(c.Request().Context(), who, id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, newAppointmentResponse(v, h.svc.Location()))
}

// List handles GET /v1/appointments?field_id=&date=&upcoming=.  The date
// filter accepts DD-MM-YYYY as well as YYYY-MM-DD.
func (h *AppointmentHandler) List(c echo.Context) error {
	who, err := middleware.CurrentIdentity(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var (
		q       scheduling.ListQuery
		rawDate string
	)
	if err := echo.QueryParamsBinder(c).
		Uint64("field_id", &q.FieldID).
		String("date", &rawDate).
		Bool("upcoming", &q.Upcoming).
		BindError(); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid query parameters"})
	}
	if rawDate != "" {
		d, err := parseDate(rawDate, h.svc.Location(), dateLayoutDMY, dateLayoutISO)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date format, use DD-MM-YYYY or YYYY-MM-DD"})
		}
		q.Date = &d
	}
	views, err := h.svc.List(c.Request().Context(), who, q)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, newAppointmentList(views, h.svc.Location()))
}

// MyAppointments handles GET /v1/appointments/my-appointments?upcoming=.
func (h *AppointmentHandler) MyAppointments(c echo.Context) error {
	who, err := middleware.CurrentIdentity(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var upcoming bool
	if err := echo.QueryParamsBinder(c).Bool("upcoming", &upcoming).BindError(); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid upcoming flag"})
	}
	views, err := h.svc.ListForUser(c.Request().Context(), who, upcoming)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, newAppointmentList(views, h.svc.Location()))
}

// CheckAvailability handles POST /v1/appointments/check-availability.
// With start_time and end_time it answers whether that range is free;
// without them it lists the bookings that start on the given date.
func (h *AppointmentHandler) CheckAvailability(c echo.Context) error {
	var body checkRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": validationMessage(err)})
	}
	loc := h.svc.Location()
	day, err := parseDate(body.Date, loc, dateLayoutDMY, dateLayoutISO)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date format, use DD-MM-YYYY or YYYY-MM-DD"})
	}
	ctx := c.Request().Context()

	if body.StartTime == "" && body.EndTime == "" {
		busy, err := h.svc.BusySlots(ctx, body.FieldID, day)
		if err != nil {
			return h.fail(c, err)
		}
		return c.JSON(http.StatusOK, newBusyResponse(busy, loc))
	}
	if body.StartTime == "" || body.EndTime == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "start_time and end_time must be given together"})
	}
	from, err := scheduling.ParseClock(body.StartTime)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid start_time, use HH:MM"})
	}
	to, err := scheduling.ParseClock(body.EndTime)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid end_time, use HH:MM"})
	}
	res, err := h.svc.CheckRange(ctx, body.FieldID, day, from, to)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, rangeResponse{Available: res.Available, Conflicts: res.Conflicts})
}

// AvailableSlots handles GET /v1/appointments/available-slots.  duration
// is in hours and defaults to one.
func (h *AppointmentHandler) AvailableSlots(c echo.Context) error {
	q := slotsQuery{Duration: 1}
	if err := echo.QueryParamsBinder(c).
		Uint64("field_id", &q.FieldID).
		String("date", &q.Date).
		Float64("duration", &q.Duration).
		BindError(); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid query parameters"})
	}
	if err := c.Validate(&q); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": validationMessage(err)})
	}
	loc := h.svc.Location()
	day, err := parseDate(q.Date, loc, dateLayoutISO)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date format, use YYYY-MM-DD"})
	}
	dur := time.Duration(q.Duration * float64(time.Hour))
	res, err := h.svc.AvailableSlots(c.Request().Context(), q.FieldID, day, dur)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, newSlotsResponse(res, loc))
}

func appointmentID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}
