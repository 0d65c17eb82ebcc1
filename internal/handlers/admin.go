package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"elearning/internal/models"
)

func (h HandlerSet) AdminListUsers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	users, err := h.accounts.ListUsers(c.Request.Context(), limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "users": users})
}

type updateRoleRequest struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

func (h HandlerSet) AdminUpdateUserRole(c *gin.Context) {
	var req updateRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.accounts.UpdateRole(c.Request.Context(), req.ID, models.UserRole(req.Role))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}
