// Package handlers contains the gin handlers for the gateway API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ytgate/internal/coordinator"
)

// identityFrom resolves the caller's opaque identity: the instance id
// header when the frontend supplies one, otherwise the client IP
func identityFrom(c *gin.Context) string {
	if id := c.GetHeader("X-Instance-ID"); id != "" {
		return id
	}
	return "ip:" + c.ClientIP()
}

// statusForKind maps a coordinator error kind onto an HTTP status
func statusForKind(kind coordinator.ErrorKind) int {
	switch kind {
	case coordinator.KindQuotaExceeded, coordinator.KindUpstreamQuotaExceeded:
		return http.StatusTooManyRequests
	case coordinator.KindChannelNotFound:
		return http.StatusNotFound
	case coordinator.KindInvalidChannel:
		return http.StatusBadRequest
	case coordinator.KindUpstreamUnavailable:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondRequestError renders a coordinator failure as a structured
// JSON error, attaching quota context when present
func respondRequestError(c *gin.Context, err error) {
	var reqErr *coordinator.RequestError
	if !errors.As(err, &reqErr) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	body := gin.H{
		"success": false,
		"error":   reqErr.Message,
		"kind":    string(reqErr.Kind),
	}
	if reqErr.Quota != nil {
		body["quota"] = reqErr.Quota
	}
	c.JSON(statusForKind(reqErr.Kind), body)
}
