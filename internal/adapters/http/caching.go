package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control headers on GET responses based on endpoint.
// Adds sensible defaults if not already set by the handler.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		// Only set on GET requests
		if c.Method() != "GET" {
			return err
		}

		// Don't override if already set
		if existing := c.Get("Cache-Control"); existing != "" {
			return err
		}

		path := c.Path()
		var ttl string

		// Default cache times by endpoint pattern
		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "public, max-age=10" // Very short for system checks

		case path == "/metrics":
			ttl = "no-cache" // Metrics are real-time

		case path == "/graphql":
			ttl = "private, max-age=0" // GraphQL varies wildly

		case strings.HasPrefix(path, "/v1/geofences/lookup"):
			ttl = "public, max-age=60" // Point lookups change with boundaries

		case strings.Contains(path, "/events"):
			ttl = "no-cache" // Event feeds are live data

		case strings.Contains(path, "/vehicles"):
			ttl = "no-cache" // Vehicle positions are live data

		case strings.HasPrefix(path, "/v1/geofences/") && len(path) > len("/v1/geofences/"):
			ttl = "public, max-age=600" // 10 min for single geofence

		case path == "/v1/geofences":
			ttl = "public, max-age=60" // Fence list: 1 min

		case path == "/v1/status":
			ttl = "public, max-age=60" // System stats: 1 min

		case strings.HasPrefix(path, "/v1/"):
			ttl = "public, max-age=300" // 5 min default for API endpoints
		}

		if ttl != "" {
			c.Set("Cache-Control", ttl)
		}

		return err
	}
}
