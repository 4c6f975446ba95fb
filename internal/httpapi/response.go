package httpapi

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/kimmyxpow/focus-sub001/internal/apperrors"
	"github.com/kimmyxpow/focus-sub001/internal/models"
	"github.com/rs/zerolog/log"
)

// SessionView is the session payload returned by queries and commands,
// combining the canonical record with a fresh timer snapshot.
type SessionView struct {
	Session *models.Session      `json:"session"`
	Timer   models.TimerSnapshot `json:"timer"`
}

func writeError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}

	message := "internal server error"
	var de *apperrors.Error
	if errors.As(err, &de) {
		message = de.Message
	}

	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    apperrors.CodeOf(err),
			"message": message,
		},
	})
}
