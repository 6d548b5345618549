package server

import (
	"errors"
	"net/http"
	"strings"

	app "photoalbum/src/app"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

func statusFor(kind app.Kind) int {
	switch kind {
	case app.KindBadRequest:
		return http.StatusBadRequest
	case app.KindNotFound:
		return http.StatusNotFound
	case app.KindConflict:
		return http.StatusConflict
	case app.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// hubFor returns the request's Sentry hub, falling back to the global one.
func hubFor(c *gin.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(c.Request.Context()); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

func errorBody(message string) gin.H {
	return gin.H{"message": "error", "error": message}
}

// respondError writes err with the status of its kind. Internal errors are
// logged and reported; their cause never reaches the client.
func (s *Server) respondError(c *gin.Context, err error) {
	status := statusFor(app.KindOf(err))
	if status >= http.StatusInternalServerError {
		s.log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).WithError(err).Error("request failed")
		hubFor(c).CaptureException(err)
	}
	c.AbortWithStatusJSON(status, errorBody(app.PublicMessage(err)))
}

func (s *Server) respondBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(bindingMessage(err)))
}

// bindingMessage turns validator failures into one readable line.
func bindingMessage(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return "malformed request body"
	}
	messages := make([]string, 0, len(fields))
	for _, f := range fields {
		name := strings.ToLower(f.Field())
		switch f.Tag() {
		case "required":
			messages = append(messages, name+" is required")
		case "email":
			messages = append(messages, name+" must be a valid email address")
		case passwordTag:
			messages = append(messages, "password must be 8-32 characters and contain letters and numbers")
		default:
			messages = append(messages, name+" is invalid")
		}
	}
	return strings.Join(messages, "; ")
}
