package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"faceattend/internal/auth"
	"faceattend/internal/campus"
)

type studentSignup struct {
	Name            string `json:"name" binding:"required"`
	Surname         string `json:"surname" binding:"required"`
	Email           string `json:"email" binding:"required,student_email"`
	Course          string `json:"course" binding:"required"`
	Faculty         string `json:"faculty" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=Password"`
}

type lecturerSignup struct {
	Name            string `json:"name" binding:"required"`
	Surname         string `json:"surname" binding:"required"`
	Email           string `json:"email" binding:"required,lecturer_email"`
	Faculty         string `json:"faculty" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=Password"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	UserType string `json:"user_type" binding:"required,oneof=student lecturer"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func tokenResponse(pair auth.TokenPair, id auth.Identity) gin.H {
	return gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.AccessExp.Unix(),
		"user_id":       id.UserID,
		"user_type":     id.Role,
	}
}

// RegisterStudent creates a student account.
func (h *Handler) RegisterStudent(c *gin.Context) {
	var req studentSignup
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	st, err := h.campus.RegisterStudent(c.Request.Context(), campus.StudentRegistration(req))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Student registration successful! Please login.", "student": st})
}

// RegisterLecturer creates a lecturer account.
func (h *Handler) RegisterLecturer(c *gin.Context) {
	var req lecturerSignup
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	l, err := h.campus.RegisterLecturer(c.Request.Context(), campus.LecturerRegistration(req))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Lecturer registration successful! Please login.", "lecturer": l})
}

// Login exchanges credentials for a token pair.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	id, err := h.campus.Authenticate(ctx, auth.Role(req.UserType), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	pair, err := h.sessions.Start(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse(pair, id))
}

// Refresh rotates a refresh token.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	pair, id, err := h.sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, tokenResponse(pair, id))
}

// Logout revokes a refresh token.
func (h *Handler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.sessions.End(c.Request.Context(), req.RefreshToken); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "You have been logged out successfully."})
}
