package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/llm-gate/llm-gate/internal/logging"
	"github.com/llm-gate/llm-gate/internal/registry"
	"github.com/llm-gate/llm-gate/internal/upstream"
)

// apiError is a request failure with a fixed HTTP status and OpenAI-style
// error type.
type apiError struct {
	Status  int
	Type    string
	Message string
}

func (e *apiError) Error() string { return e.Message }

func errAuthMissing(p registry.Provider) *apiError {
	return &apiError{
		Status:  http.StatusUnauthorized,
		Type:    "authentication_error",
		Message: fmt.Sprintf("no enabled credential for provider %q; run the login command first", p),
	}
}

func errBadRequest(format string, args ...any) *apiError {
	return &apiError{
		Status:  http.StatusBadRequest,
		Type:    "invalid_request_error",
		Message: fmt.Sprintf(format, args...),
	}
}

func errUnknownModel(model string) *apiError {
	return errBadRequest("unknown model %q", model)
}

// writeError renders err as the JSON error envelope. Upstream HTTP errors
// become 502 with the provider body forwarded; the Kiro watchdog becomes 504.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	errType := "internal_error"
	message := err.Error()

	var ae *apiError
	var he *upstream.HTTPError
	switch {
	case errors.As(err, &ae):
		status = ae.Status
		errType = ae.Type
		message = ae.Message
	case errors.As(err, &he):
		status = http.StatusBadGateway
		errType = "upstream_error"
		message = string(he.Body)
		if message == "" {
			message = fmt.Sprintf("upstream returned status %d", he.Status)
		}
	case errors.Is(err, upstream.ErrFirstTokenTimeout):
		status = http.StatusGatewayTimeout
		errType = "timeout_error"
	}

	if status >= http.StatusInternalServerError {
		logging.Errorf("request failed: %v", err)
	}
	c.JSON(status, gin.H{"error": gin.H{
		"message": message,
		"type":    errType,
		"code":    status,
	}})
}
