package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

var errInvalidSubscriptionID = errors.New("invalid_subscription_id")

func parseSubscriptionID(c *gin.Context) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id == 0 {
		return 0, errInvalidSubscriptionID
	}
	return id, nil
}

func (s *Server) GetSubscription(c *gin.Context) {
	id, err := parseSubscriptionID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.subscriptionSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ScheduleSubscriptionCancel ends an active subscription when its current period closes.
func (s *Server) ScheduleSubscriptionCancel(c *gin.Context) {
	id, err := parseSubscriptionID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.subscriptionSvc.ScheduleCancellation(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
