package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"elearning/internal/apperr"
	"elearning/internal/service"
)

func (h HandlerSet) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	profile, err := h.accounts.Profile(c.Request.Context(), user.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": profile})
}

type updateInfoRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h HandlerSet) UpdateUserInfo(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req updateInfoRequest
	if !bindJSON(c, &req) {
		return
	}

	updated, err := h.accounts.UpdateInfo(c.Request.Context(), user.ID, service.UpdateInfoInput(req))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "user": updated})
}

type updatePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (h HandlerSet) UpdateUserPassword(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req updatePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.accounts.UpdatePassword(c.Request.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Password updated successfully"})
}

func (h HandlerSet) UpdateUserAvatar(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if limit := h.cfg.Storage.MaxAvatarSize; limit > 0 {
		// room for multipart framing around the file part
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+64<<10)
	}

	header, err := c.FormFile("avatar")
	if err != nil {
		_ = c.Error(apperr.Wrap(apperr.KindValidation, "Avatar file is required", err))
		return
	}
	file, err := header.Open()
	if err != nil {
		_ = c.Error(apperr.Internal(err))
		return
	}
	defer file.Close()

	updated, err := h.accounts.UpdateAvatar(c.Request.Context(), user.ID, file, header.Size)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": updated})
}
