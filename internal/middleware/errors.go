package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"elearning/internal/apperr"
)

// Errors renders the last error attached with c.Error as the JSON envelope.
// The cause chain is included only when withStack is set.
func Errors(log zerolog.Logger, withStack bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := apperr.From(c.Errors.Last().Err)
		status := err.Status()

		event := log.Debug()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.Err(err.Cause).
			Str("kind", string(err.Kind)).
			Str("path", c.Request.URL.Path).
			Str("request_id", RequestIDFrom(c)).
			Msg(err.Message)

		body := gin.H{"success": false, "message": err.Message}
		if withStack {
			body["stack"] = chain(err)
		}
		c.AbortWithStatusJSON(status, body)
	}
}

func chain(err error) []string {
	var out []string
	for err != nil {
		out = append(out, err.Error())
		err = errors.Unwrap(err)
	}
	return out
}
