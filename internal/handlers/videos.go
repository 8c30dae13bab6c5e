package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"ytgate/internal/coordinator"
	"ytgate/internal/quota"
	"ytgate/internal/youtube"
)

// Resolver resolves channel references to channel ids
type Resolver interface {
	ResolveChannelID(ctx context.Context, input string) (string, error)
}

// VideoHandler serves the catalog request flow
type VideoHandler struct {
	coordinator *coordinator.Coordinator
	ledger      *quota.Ledger
	resolver    Resolver
}

// NewVideoHandler creates the handler for quota, search and videos endpoints
func NewVideoHandler(co *coordinator.Coordinator, ledger *quota.Ledger, resolver Resolver) *VideoHandler {
	return &VideoHandler{coordinator: co, ledger: ledger, resolver: resolver}
}

// GetQuota returns the caller's current quota standing
// GET /api/quota
func (h *VideoHandler) GetQuota(c *gin.Context) {
	status, err := h.ledger.CheckUser(identityFrom(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "quota lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"quota":   status,
	})
}

type searchRequest struct {
	ChannelInput string `json:"channelInput"`
}

// Search resolves a channel reference (id, URL or handle) to a channel
// id. Resolution costs one request against the caller's quota, same as
// the original relay.
// POST /api/search
func (h *VideoHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChannelInput == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "channelInput is required"})
		return
	}

	identityID := identityFrom(c)
	status, err := h.ledger.CheckUser(identityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "quota lookup failed"})
		return
	}
	if !status.CanRequest {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"success": false,
			"error":   "daily request limit reached, try again tomorrow",
			"quota":   status,
		})
		return
	}

	channelID, err := h.resolver.ResolveChannelID(c.Request.Context(), req.ChannelInput)
	if err != nil {
		respondResolveError(c, err)
		return
	}

	if err := h.ledger.IncrementUser(identityID); err != nil {
		log.Printf("⚠️ Failed to record search against quota: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "quota update failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"channelId": channelID,
	})
}

type videosRequest struct {
	ChannelID   string `json:"channelId"`
	ChannelName string `json:"channelName"`
}

// GetVideos runs the quota-gated, cache-aware fetch for a channel
// POST /api/videos
func (h *VideoHandler) GetVideos(c *gin.Context) {
	var req videosRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChannelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "channelId is required"})
		return
	}

	outcome, err := h.coordinator.GetChannelVideos(c.Request.Context(), identityFrom(c), req.ChannelID, req.ChannelName)
	if err != nil {
		respondRequestError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"videos":     outcome.Videos,
		"totalCount": len(outcome.Videos),
		"fromCache":  outcome.FromCache,
		"quota":      outcome.Quota,
	})
}

// respondResolveError maps resolver failures: malformed references are a
// client error, upstream failures keep their classification
func respondResolveError(c *gin.Context, err error) {
	var upstream *youtube.UpstreamError
	switch {
	case errors.Is(err, youtube.ErrInvalidChannel):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid channel id or URL"})
	case errors.As(err, &upstream) && upstream.Code == youtube.CodeNotFound:
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "channel not found"})
	case errors.As(err, &upstream) && upstream.Code == youtube.CodeQuotaExceeded:
		c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "YouTube API quota exhausted"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "channel lookup failed"})
	}
}
