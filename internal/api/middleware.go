package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	visitorCookie = "samsar_visitor"
	visitorKey    = "visitor_id"
	visitorMaxAge = 365 * 24 * 60 * 60
)

// VisitorMiddleware assigns every browser a stable visitor id kept in a cookie.
// The id keys the state a static site would keep in local storage.
func VisitorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(visitorCookie)
		if err != nil || !validVisitorID(id) {
			id = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(visitorCookie, id, visitorMaxAge, "/", "", false, true)
		}
		c.Set(visitorKey, id)
		c.Next()
	}
}

func validVisitorID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

// visitorID returns the id set by VisitorMiddleware.
func visitorID(c *gin.Context) string {
	return c.GetString(visitorKey)
}

// RequestLogger logs every request once it has been handled
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
			"visitor":   visitorID(c),
		})
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Warn("Request failed")
			return
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("Request failed")
			return
		}
		entry.Info("Request handled")
	}
}
