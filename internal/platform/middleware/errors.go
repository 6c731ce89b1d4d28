package middleware

import "github.com/labstack/echo/v4"

// errorBody matches the {error, message} shape the API handlers return.
func errorBody(c echo.Context, status int, code, message string) error {
	if c.Response().Committed {
		return nil
	}
	return c.JSON(status, map[string]string{"error": code, "message": message})
}
