package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rcfe/casesync/internal/platform/auth"
)

const panicStackSize = 4 << 10

// Recovery turns a handler panic into a 500 {error, message} body. The log
// line carries the request id and caller so the failed submission or
// lookup can be traced.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				stack := make([]byte, panicStackSize)
				stack = stack[:runtime.Stack(stack, false)]

				ev := logger.Error().
					Str("method", c.Request().Method).
					Str("route", c.Path()).
					Str("path", c.Request().URL.Path).
					Bytes("stack", stack)
				if rid, ok := c.Get("request_id").(string); ok {
					ev = ev.Str("request_id", rid)
				}
				if id, ok := auth.IdentityFromContext(c.Request().Context()); ok {
					ev = ev.Str("subject", id.Subject)
				}
				if e, ok := r.(error); ok {
					ev = ev.Err(e)
				} else {
					ev = ev.Str("panic", fmt.Sprint(r))
				}
				ev.Msg("handler panicked")

				err = errorBody(c, http.StatusInternalServerError, "internal", "internal server error")
			}()
			return next(c)
		}
	}
}
