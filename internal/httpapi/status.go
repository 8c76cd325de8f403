package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lexiconlabs/tokengate/internal/status"
	log "github.com/sirupsen/logrus"
)

// StatusHandler serves the balance and warning snapshot clients poll.
type StatusHandler struct {
	reporter *status.Reporter
}

// NewStatusHandler constructs a StatusHandler.
func NewStatusHandler(reporter *status.Reporter) *StatusHandler {
	return &StatusHandler{reporter: reporter}
}

// Get returns the current status report for the authenticated user.
func (h *StatusHandler) Get(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	report, errGet := h.reporter.Get(c.Request.Context(), userID)
	if errGet != nil {
		log.WithError(errGet).Error("status report failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, report)
}
