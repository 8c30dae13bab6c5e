package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ytgate/internal/types"
	"ytgate/internal/user"
)

// UserHandler serves per-identity history and favorites
type UserHandler struct {
	users *user.Manager
}

func NewUserHandler(users *user.Manager) *UserHandler {
	return &UserHandler{users: users}
}

// GetHistory returns the identity's recent channel lookups, newest first
// GET /api/history
func (h *UserHandler) GetHistory(c *gin.Context) {
	history, err := h.users.History(identityFrom(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "history lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "history": history})
}

// GetFavorites returns the identity's saved channels
// GET /api/favorites
func (h *UserHandler) GetFavorites(c *gin.Context) {
	favorites, err := h.users.Favorites(identityFrom(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "favorites lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "favorites": favorites})
}

type favoriteRequest struct {
	ChannelID   string `json:"channelId"`
	ChannelName string `json:"channelName"`
}

// AddFavorite saves a channel for the identity. Adding a channel that is
// already saved is a no-op.
// POST /api/favorites
func (h *UserHandler) AddFavorite(c *gin.Context) {
	var req favoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChannelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "channelId is required"})
		return
	}
	if req.ChannelName == "" {
		req.ChannelName = req.ChannelID
	}

	identityID := identityFrom(c)
	if err := h.users.AddFavorite(identityID, types.Favorite{ID: req.ChannelID, Name: req.ChannelName}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to save favorite"})
		return
	}

	favorites, err := h.users.Favorites(identityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "favorites lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "favorites": favorites})
}

// RemoveFavorite removes a saved channel. Removing an unknown channel
// succeeds without effect.
// DELETE /api/favorites/:channelId
func (h *UserHandler) RemoveFavorite(c *gin.Context) {
	channelID := c.Param("channelId")
	if channelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "channelId is required"})
		return
	}

	identityID := identityFrom(c)
	if err := h.users.RemoveFavorite(identityID, channelID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to remove favorite"})
		return
	}

	favorites, err := h.users.Favorites(identityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "favorites lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "favorites": favorites})
}
