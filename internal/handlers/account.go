package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"elearning/internal/middleware"
	"elearning/internal/service"
)

type registrationRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Avatar   string `json:"avatar"`
}

func (h HandlerSet) Registration(c *gin.Context) {
	var req registrationRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.accounts.Register(c.Request.Context(), service.RegisterInput(req))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":         true,
		"message":         "Please check your email: " + res.Email + " to activate your account",
		"activationToken": res.ActivationToken,
	})
}

type activationRequest struct {
	ActivationToken string `json:"activation_token"`
	ActivationCode  string `json:"activation_code"`
}

func (h HandlerSet) ActivateUser(c *gin.Context) {
	var req activationRequest
	if !bindJSON(c, &req) {
		return
	}

	if _, err := h.accounts.Activate(c.Request.Context(), req.ActivationToken, req.ActivationCode); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "User activated successfully"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	sess, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.sendSession(c, http.StatusOK, sess)
}

type socialAuthRequest struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

func (h HandlerSet) SocialAuth(c *gin.Context) {
	var req socialAuthRequest
	if !bindJSON(c, &req) {
		return
	}

	sess, err := h.accounts.SocialAuth(c.Request.Context(), service.SocialAuthInput(req))
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.sendSession(c, http.StatusOK, sess)
}

func (h HandlerSet) Logout(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	h.cookies.clearSession(c)
	if err := h.accounts.Logout(c.Request.Context(), user.ID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out successfully"})
}

func (h HandlerSet) Refresh(c *gin.Context) {
	token, _ := c.Cookie(middleware.RefreshCookie)

	sess, err := h.accounts.Refresh(c.Request.Context(), token)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.sendSession(c, http.StatusOK, sess)
}

func (h HandlerSet) sendSession(c *gin.Context, status int, sess service.Session) {
	h.cookies.setSession(c, sess.Tokens)
	c.JSON(status, gin.H{
		"success":     true,
		"user":        sess.User,
		"accessToken": sess.Tokens.AccessToken,
	})
}
