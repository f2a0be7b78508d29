package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders sets the browser-facing response headers for the review
// API. Responses carry chart excerpts and coding decisions, so nothing may
// be cached, framed, or loaded as a subresource.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")

			// Legacy XSS filter off; CSP below is the real control.
			h.Set("X-XSS-Protection", "0")

			// JSON-only API: no resource loading, no embedding. The review
			// UI is served from its own origin and talks to us over fetch.
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			// Session state and page-image URLs must never come from a cache.
			h.Set("Cache-Control", "no-store")

			return next(c)
		}
	}
}
