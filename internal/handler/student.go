package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"faceattend/internal/attendance"
)

// UploadFace stores or replaces the caller's reference face.
func (h *Handler) UploadFace(c *gin.Context) {
	name, data, problem, err := h.readImage(c, "face_image")
	if err != nil {
		fail(c, err)
		return
	}
	if problem != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": problem})
		return
	}
	id := identity(c)
	if _, err := h.faces.RegisterFace(c.Request.Context(), id.UserID, name, data); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Face image uploaded successfully!"})
}

// StudentDashboard lists the caller's modules with attendance counts.
func (h *Handler) StudentDashboard(c *gin.Context) {
	ctx := c.Request.Context()
	id := identity(c)
	modules, err := h.campus.StudentDashboard(ctx, id.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	hasFace, err := h.faces.HasRegisteredFace(ctx, id.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	resp := gin.H{"modules": modules, "has_face": hasFace}
	if !hasFace {
		resp["warning"] = attendance.ReasonFaceNotRegistered.Message()
	}
	c.JSON(http.StatusOK, resp)
}

// StudentModule shows per-session attendance for one enrolled module.
func (h *Handler) StudentModule(c *gin.Context) {
	view, err := h.campus.StudentModule(c.Request.Context(), identity(c).UserID, c.Param("module_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Eligibility reports whether the caller may mark attendance right now.
func (h *Handler) Eligibility(c *gin.Context) {
	elig, err := h.attendance.CheckEligibility(c.Request.Context(), attendance.EligibilityRequest{
		StudentID: identity(c).UserID,
		ModuleID:  c.Param("module_id"),
		SessionID: c.Param("session_id"),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, elig)
}

type submitForm struct {
	ModuleID  string `form:"module_id" binding:"required"`
	SessionID string `form:"session_id" binding:"required"`
}

// SubmitAttendance runs one attendance attempt. Declined attempts are
// reported with success=false and a 200, as the form expects.
func (h *Handler) SubmitAttendance(c *gin.Context) {
	var form submitForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": bindingMessage(err)})
		return
	}
	name, data, problem, err := h.readImage(c, "face_image")
	if err != nil {
		fail(c, err)
		return
	}
	if problem != "" {
		c.JSON(http.StatusOK, attendance.AttemptResult{Message: problem})
		return
	}
	res, err := h.attendance.Submit(c.Request.Context(), attendance.SubmitRequest{
		StudentID: identity(c).UserID,
		ModuleID:  form.ModuleID,
		SessionID: form.SessionID,
		Filename:  name,
		Image:     data,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
