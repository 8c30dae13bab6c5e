package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"ytgate/internal/cache"
	"ytgate/internal/config"
	"ytgate/internal/quota"
)

// AdminHandler serves the operator surface behind the admin key
type AdminHandler struct {
	settings *config.Manager
	ledger   *quota.Ledger
	cache    *cache.Cache
}

func NewAdminHandler(settings *config.Manager, ledger *quota.Ledger, cache *cache.Cache) *AdminHandler {
	return &AdminHandler{settings: settings, ledger: ledger, cache: cache}
}

// GetStats returns the operator dashboard: global quota, per-identity
// usage and cache occupancy
// GET /api/admin/stats
func (h *AdminHandler) GetStats(c *gin.Context) {
	global, err := h.ledger.GlobalStatus()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load quota state"})
		return
	}

	users, err := h.ledger.UserTable()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load user table"})
		return
	}

	stats, err := h.cache.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load cache stats"})
		return
	}

	settings := h.settings.Get()
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"globalQuota": global,
		"users":       users,
		"cache": gin.H{
			"count":            stats.Count,
			"approximateBytes": stats.ApproximateBytes,
			"order":            stats.Order,
			"priority":         settings.CachePriority,
		},
		"limits": settings.UserLimits,
	})
}

// GetConfig returns the current operator settings document
// GET /api/admin/config
func (h *AdminHandler) GetConfig(c *gin.Context) {
	raw, err := h.settings.RawJSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to read settings"})
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

// patchableFields lists the settings paths an operator may PATCH.
// Anything else in the request body is rejected rather than ignored.
var patchableFields = []string{
	"dailyQuotaTotal",
	"userLimits.default",
	"userLimits.vip",
	"alerts.email",
	"alerts.telegramChatId",
}

// PatchConfig merges the supplied fields into the live settings file.
// The merge is built with sjson against the current document so fields
// not named in the request keep their values.
// PATCH /api/admin/config
func (h *AdminHandler) PatchConfig(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<16))
	if err != nil || !gjson.ValidBytes(body) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "request body must be a JSON object"})
		return
	}
	patch := gjson.ParseBytes(body)
	if !patch.IsObject() {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "request body must be a JSON object"})
		return
	}

	current, err := h.settings.RawJSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to read settings"})
		return
	}

	merged := current
	applied := 0
	for _, path := range patchableFields {
		value := patch.Get(path)
		if !value.Exists() {
			continue
		}
		merged, err = sjson.SetBytes(merged, path, value.Value())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid value for " + path})
			return
		}
		applied++
	}
	if applied == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "no recognised settings fields in request"})
		return
	}

	if err := h.settings.ApplyJSON(merged); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	log.Printf("🔄 Admin updated %d settings field(s)", applied)
	c.JSON(http.StatusOK, gin.H{"success": true, "config": h.settings.Get()})
}

// AddPriority marks a channel as priority. Existing cached entries keep
// the priority they had at insert time, so the entry is dropped and will
// be re-cached with the new standing on its next fetch.
// PUT /api/admin/priority/:channelId
func (h *AdminHandler) AddPriority(c *gin.Context) {
	channelID := c.Param("channelId")
	if channelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "channelId is required"})
		return
	}

	if err := h.settings.AddPriorityChannel(channelID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to update priority list"})
		return
	}
	if err := h.cache.Remove(channelID); err != nil {
		log.Printf("⚠️ Failed to evict %s after priority change: %v", channelID, err)
	}

	log.Printf("✅ Channel %s marked as priority", channelID)
	c.JSON(http.StatusOK, gin.H{"success": true, "priority": h.settings.Get().CachePriority})
}

// RemovePriority removes a channel from the priority list
// DELETE /api/admin/priority/:channelId
func (h *AdminHandler) RemovePriority(c *gin.Context) {
	channelID := c.Param("channelId")
	if channelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "channelId is required"})
		return
	}

	if err := h.settings.RemovePriorityChannel(channelID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to update priority list"})
		return
	}
	if err := h.cache.Remove(channelID); err != nil {
		log.Printf("⚠️ Failed to evict %s after priority change: %v", channelID, err)
	}

	log.Printf("✅ Channel %s no longer priority", channelID)
	c.JSON(http.StatusOK, gin.H{"success": true, "priority": h.settings.Get().CachePriority})
}

// BlockUser marks an identity as blocked on the dashboard. The flag is
// bookkeeping, not enforcement: the identity is still governed by its
// daily limit, and the flag clears on day rollover.
// PUT /api/admin/users/:identityId/block
func (h *AdminHandler) BlockUser(c *gin.Context) {
	h.setBlocked(c, true)
}

// UnblockUser clears an identity's blocked flag
// DELETE /api/admin/users/:identityId/block
func (h *AdminHandler) UnblockUser(c *gin.Context) {
	h.setBlocked(c, false)
}

func (h *AdminHandler) setBlocked(c *gin.Context, blocked bool) {
	identityID := c.Param("identityId")
	if identityID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "identityId is required"})
		return
	}

	if err := h.ledger.SetUserBlocked(identityID, blocked); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to update user"})
		return
	}

	users, err := h.ledger.UserTable()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load user table"})
		return
	}

	if blocked {
		log.Printf("⚠️ Admin blocked identity %s", identityID)
	} else {
		log.Printf("✅ Admin unblocked identity %s", identityID)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "users": users})
}

// ResetQuota zeroes the global counter, alert markers and every
// identity's daily usage
// POST /api/admin/reset
func (h *AdminHandler) ResetQuota(c *gin.Context) {
	if err := h.ledger.ResetAll(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "reset failed"})
		return
	}

	log.Printf("🔄 Admin reset all quota counters")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "quota counters reset"})
}

// ClearCache drops every cached channel, priority entries included
// POST /api/admin/cache/clear
func (h *AdminHandler) ClearCache(c *gin.Context) {
	if err := h.cache.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "cache clear failed"})
		return
	}

	log.Printf("🔄 Admin cleared the channel cache")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "cache cleared"})
}

// CleanupCache sweeps expired non-priority entries
// POST /api/admin/cache/cleanup
func (h *AdminHandler) CleanupCache(c *gin.Context) {
	removed, err := h.cache.Cleanup()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "cache cleanup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "removed": removed})
}
