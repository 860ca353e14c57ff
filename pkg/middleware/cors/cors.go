package cors

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Config describes the cross-origin policy.
type Config struct {
	AllowedOrigins []string
	AllowedHeaders []string
	ExposedHeaders []string
	MaxAge         time.Duration
}

// DefaultConfig returns the policy used by the API for the given origins.
func DefaultConfig(origins []string) Config {
	return Config{
		AllowedOrigins: origins,
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Requested-With", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-ID"},
		MaxAge:         10 * time.Minute,
	}
}

// New returns a CORS middleware for the given origins. An empty list allows any origin.
func New(allowedOrigins []string) gin.HandlerFunc {
	return NewWithConfig(DefaultConfig(allowedOrigins))
}

// NewWithConfig builds the middleware from cfg. Preflights from unknown origins are refused with 403.
func NewWithConfig(cfg Config) gin.HandlerFunc {
	allowAll := len(cfg.AllowedOrigins) == 0
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		origin = normalize(origin)
		if origin == "*" {
			allowAll = true
			continue
		}
		origins[origin] = struct{}{}
	}
	allowHeaders := strings.Join(cfg.AllowedHeaders, ", ")
	exposeHeaders := strings.Join(cfg.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(int(cfg.MaxAge / time.Second))

	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Add("Vary", "Origin")

		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		_, known := origins[normalize(origin)]
		if !allowAll && !known {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		header.Set("Access-Control-Allow-Origin", origin)
		header.Set("Access-Control-Allow-Credentials", "true")
		if exposeHeaders != "" {
			header.Set("Access-Control-Expose-Headers", exposeHeaders)
		}

		if c.Request.Method == http.MethodOptions {
			header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			if allowHeaders != "" {
				header.Set("Access-Control-Allow-Headers", allowHeaders)
			}
			header.Set("Access-Control-Max-Age", maxAge)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func normalize(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}
