package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	app "photoalbum/src/app"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	ctxUserID = "userID"
	ctxClaims = "claims"
)

// requestLogger logs one line per request and counts it.
func requestLogger(log logrus.FieldLogger, requests *prometheus.CounterVec) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()

		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  status,
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request")
		case status >= http.StatusBadRequest:
			entry.Warn("request")
		default:
			entry.Debug("request")
		}
	}
}

// recovery reports panics to Sentry and answers with the error envelope.
func recovery(log logrus.FieldLogger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		log.WithField("path", c.Request.URL.Path).Errorf("panic: %v", recovered)
		hubFor(c).Recover(recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(app.KindInternal.String()))
	})
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// requireAuth rejects requests without a valid bearer token and stores the
// caller's user id in the context.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			s.respondError(c, app.Unauthorizedf("missing bearer token"))
			return
		}
		if !s.authenticate(c, token) {
			return
		}
		c.Next()
	}
}

// optionalAuth resolves the caller when a bearer token is sent. A token that
// is sent but invalid is still rejected.
func (s *Server) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok && !s.authenticate(c, token) {
			return
		}
		c.Next()
	}
}

func (s *Server) authenticate(c *gin.Context, token string) bool {
	claims, err := s.auth.Authenticate(token)
	if err != nil {
		s.respondError(c, err)
		return false
	}
	c.Set(ctxUserID, claims.Subject)
	c.Set(ctxClaims, claims)
	hubFor(c).Scope().SetUser(sentry.User{ID: claims.Subject})
	return true
}

func userID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func claimsOf(c *gin.Context) (*app.Claims, error) {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil, app.Unauthorizedf("missing bearer token")
	}
	claims, ok := v.(*app.Claims)
	if !ok {
		return nil, app.Internal("unexpected claims", fmt.Errorf("claims of type %T", v))
	}
	return claims, nil
}

// sentryHub gives every request its own hub so scope data does not leak
// between requests.
func sentryHub() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetRequest(c.Request)
		c.Request = c.Request.WithContext(sentry.SetHubOnContext(c.Request.Context(), hub))
		c.Next()
	}
}
