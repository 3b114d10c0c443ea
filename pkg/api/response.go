package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sipeed/picocrud/pkg/domain"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// respondError aborts with the status and code the domain assigns to err.
func respondError(c *gin.Context, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
		_ = c.Error(err)
	}
	respondStatus(c, domain.StatusOf(err), domain.CodeOf(err), msg)
}

func respondStatus(c *gin.Context, status int, code, msg string) {
	if status == http.StatusOK {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{Message: msg, Code: code},
	})
}
