package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/slot-booking/internal/handler"
	apperrors "github.com/jwalitptl/slot-booking/pkg/errors"
)

// ErrorHandler logs errors attached to the context and, when a handler
// recorded an error without writing a response, renders the last one.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			event := log.Warn()
			if apperrors.KindOf(e.Err) == apperrors.KindInternal || apperrors.KindOf(e.Err) == apperrors.KindStorage {
				event = log.Error()
			}
			event.
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}
		handler.Error(c, c.Errors.Last().Err)
	}
}
