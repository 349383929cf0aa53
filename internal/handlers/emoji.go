package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hms-sync/internal/middleware"
	"hms-sync/internal/repositories"
)

// EmojiHandler serves the caller's recently used emojis.
type EmojiHandler struct {
	repo repositories.EmojiRepository
}

// NewEmojiHandler builds an EmojiHandler.
func NewEmojiHandler(repo repositories.EmojiRepository) *EmojiHandler {
	return &EmojiHandler{repo: repo}
}

// List returns recent emojis, newest first.
func (h *EmojiHandler) List(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(repositories.RecentEmojiLimit)))
	emojis, err := h.repo.List(c.Request.Context(), id.UserID, limit)
	if err != nil {
		zap.S().Errorw("list recent emojis", "user_id", id.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load emojis"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"emojis": emojis})
}

// Touch records an emoji as just used.
func (h *EmojiHandler) Touch(c *gin.Context) {
	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, _ := middleware.IdentityFrom(c)
	if err := h.repo.Touch(c.Request.Context(), id.UserID, req.Emoji); err != nil {
		if statusFor(err) == http.StatusBadRequest {
			respondError(c, err)
			return
		}
		zap.S().Errorw("touch recent emoji", "user_id", id.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save emoji"})
		return
	}
	c.Status(http.StatusNoContent)
}
