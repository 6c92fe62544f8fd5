package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/pitch-booking/internal/scheduling"
)

// fail writes the HTTP rendering of a scheduling error.  Only errors
// outside the scheduling taxonomy are logged; their text never reaches
// the client.
func (h *AppointmentHandler) fail(c echo.Context, err error) error {
	var verr *scheduling.ValidationError
	switch {
	case errors.As(err, &verr):
		body := echo.Map{"error": verr.Reason}
		if verr.Conflicts > 0 {
			body["conflicts"] = verr.Conflicts
		}
		return c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, scheduling.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, scheduling.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, scheduling.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, scheduling.ErrStoreConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "the field is busy, please retry"})
	}
	h.log.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
