package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	generationdomain "github.com/smallbiznis/pixora/internal/generation/domain"
	"github.com/smallbiznis/pixora/internal/quota"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`

	// Quota rejections carry the numbers so the client can render them.
	Required  int   `json:"required,omitempty"`
	Remaining int64 `json:"remaining,omitempty"`
	Limit     int   `json:"limit,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var exceeded *quota.ExceededError
	if errors.As(err, &exceeded) {
		return http.StatusTooManyRequests, errorPayload{
			Type:      "quota_exceeded",
			Message:   "generation quota exceeded for the current billing period",
			Required:  exceeded.Required,
			Remaining: exceeded.Remaining,
			Limit:     exceeded.Limit,
		}
	}

	switch {
	case errors.Is(err, quota.ErrQuotaExceeded):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "quota_exceeded",
			Message: "generation quota exceeded for the current billing period",
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, generationdomain.ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: err.Error(),
		}
	case errors.Is(err, generationdomain.ErrRequestNotFound),
		errors.Is(err, generationdomain.ErrArtifactNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
