package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lexiconlabs/tokengate/internal/defense"
	"github.com/lexiconlabs/tokengate/internal/reward"
	log "github.com/sirupsen/logrus"
)

// RewardHandler handles ad-view reward crediting.
type RewardHandler struct {
	granter *reward.Granter
	limits  defense.Limits
}

// NewRewardHandler constructs a RewardHandler.
func NewRewardHandler(granter *reward.Granter, limits defense.Limits) *RewardHandler {
	return &RewardHandler{granter: granter, limits: limits}
}

// adViewRequest defines the request body for an ad-view reward claim.
type adViewRequest struct {
	Model          string `json:"model"`
	IdempotencyKey string `json:"idempotency_key"`
}

// AdView credits one completed ad view. The Idempotency-Key header takes
// precedence over the body field; a claim without either is subject to the
// rolling frequency cap instead of exact dedup.
func (h *RewardHandler) AdView(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body adViewRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if idemKey == "" {
		idemKey = strings.TrimSpace(body.IdempotencyKey)
	}

	if !defense.Enforce(c, h.limits,
		defense.Field{Name: "model", Value: body.Model},
		defense.Field{Name: "idempotency_key", Value: idemKey},
	) {
		return
	}

	if body.Model == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model is required"})
		return
	}

	newBalance, errGrant := h.granter.Grant(c.Request.Context(), userID, body.Model, idemKey)
	if errGrant != nil {
		if errors.Is(errGrant, reward.ErrTooManyRewards) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many rewards, slow down"})
			return
		}
		if errors.Is(errGrant, reward.ErrUnknownModel) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown model", "model": body.Model})
			return
		}
		log.WithError(errGrant).Error("reward grant failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"new_balance": newBalance})
}
