package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StatusError is an error the HTTP edge can render directly.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string { return e.Message }

var (
	errMethodNotAllowed = &StatusError{Code: http.StatusMethodNotAllowed, Message: "Method not allowed"}
	errNotFound         = &StatusError{Code: http.StatusNotFound, Message: "Not found"}
	errAuthRequired     = &StatusError{Code: http.StatusUnauthorized, Message: "Authentication required"}
	errInternal         = &StatusError{Code: http.StatusInternalServerError, Message: "Internal server error"}
	errEmptyBody        = &StatusError{Code: http.StatusBadRequest, Message: "Request body is required"}
)

func badRequest(detail string) *StatusError {
	return &StatusError{Code: http.StatusBadRequest, Message: "Invalid JSON body: " + detail}
}

// writeStatusError renders err as the proxy's uniform JSON error body. If
// the response has already started we can only drop the connection.
func writeStatusError(c *gin.Context, err *StatusError) {
	if c.Writer.Written() {
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(err.Code, gin.H{"error": err.Message})
}
