package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pitch-booking/internal/handler"
	"github.com/iliyamo/pitch-booking/internal/middleware"
)

// RegisterAppointments mounts the scheduling API under /v1/appointments.
// Every route needs a valid access token carrying one of the known roles.
// writeLimit, when non-nil, throttles the routes that take the field
// lock.
func RegisterAppointments(e *echo.Echo, h *handler.AppointmentHandler, jwtSecret string, writeLimit echo.MiddlewareFunc) {
	if e.Validator == nil {
		e.Validator = handler.NewRequestValidator()
	}
	g := e.Group(
		"/v1/appointments",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer, middleware.RoleOwner, middleware.RoleAdmin),
	)

	var writes []echo.MiddlewareFunc
	if writeLimit != nil {
		writes = append(writes, writeLimit)
	}

	// Static segments are matched before :id.
	g.GET("/my-appointments", h.MyAppointments)
	g.GET("/available-slots", h.AvailableSlots)
	g.POST("/check-availability", h.CheckAvailability)

	g.GET("", h.List)
	g.POST("", h.Create, writes...)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update, writes...)
	g.PATCH("/:id", h.Update, writes...)
	g.DELETE("/:id", h.Delete, writes...)
}
