package middleware

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pitch-booking/internal/scheduling"
)

// ErrNoIdentity is returned when JWTAuth has not run for the request.
var ErrNoIdentity = errors.New("no authenticated identity in context")

// CurrentIdentity returns the caller stored by JWTAuth.
func CurrentIdentity(c echo.Context) (scheduling.Identity, error) {
	uid, ok := c.Get(CtxUserID).(uint64)
	if !ok || uid == 0 {
		return scheduling.Identity{}, ErrNoIdentity
	}
	admin, _ := c.Get(CtxIsAdmin).(bool)
	return scheduling.Identity{UserID: uid, IsAdmin: admin}, nil
}

// userID is the caller id as a key component, or "anon" before
// authentication.
func userID(c echo.Context) string {
	if uid, ok := c.Get(CtxUserID).(uint64); ok && uid != 0 {
		return strconv.FormatUint(uid, 10)
	}
	return "anon"
}
