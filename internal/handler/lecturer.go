package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"faceattend/internal/campus"
)

type moduleForm struct {
	Name    string `json:"module_name" binding:"required"`
	Code    string `json:"module_code" binding:"required"`
	Faculty string `json:"faculty" binding:"required"`
}

type enrollForm struct {
	StudentEmail string `json:"student_email" binding:"required,student_email"`
}

type sessionForm struct {
	Date  *campus.Date      `json:"session_date" binding:"required"`
	Start *campus.TimeOfDay `json:"start_time" binding:"required"`
	End   *campus.TimeOfDay `json:"end_time" binding:"required"`
}

type markForm struct {
	FinalMark *float64 `json:"final_mark" binding:"required"`
}

// LecturerModules lists the caller's modules.
func (h *Handler) LecturerModules(c *gin.Context) {
	modules, err := h.campus.LecturerModules(c.Request.Context(), identity(c).UserID)
	if err != nil {
		fail(c, err)
		return
	}
	if modules == nil {
		modules = []campus.Module{}
	}
	c.JSON(http.StatusOK, gin.H{"modules": modules})
}

// CreateModule adds a module owned by the caller.
func (h *Handler) CreateModule(c *gin.Context) {
	var req moduleForm
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.campus.CreateModule(c.Request.Context(), identity(c).UserID, campus.CreateModuleRequest(req))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Module added successfully!", "module": m})
}

// ModuleDetail shows roster and sessions of one of the caller's modules.
func (h *Handler) ModuleDetail(c *gin.Context) {
	detail, err := h.campus.ModuleDetail(c.Request.Context(), identity(c).UserID, c.Param("module_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// EnrollStudent adds a student to the module by email.
func (h *Handler) EnrollStudent(c *gin.Context) {
	var req enrollForm
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	e, err := h.campus.EnrollStudent(c.Request.Context(), identity(c).UserID, c.Param("module_id"), req.StudentEmail)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Student added to module successfully!", "enrollment": e})
}

// CreateSession timetables a session of the module.
func (h *Handler) CreateSession(c *gin.Context) {
	var req sessionForm
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := h.campus.CreateSession(c.Request.Context(), identity(c).UserID, campus.CreateSessionRequest{
		ModuleID: c.Param("module_id"),
		Date:     *req.Date,
		Start:    *req.Start,
		End:      *req.End,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Session created successfully!", "session": sess})
}

// UpdateFinalMark sets an enrolled student's final mark.
func (h *Handler) UpdateFinalMark(c *gin.Context) {
	var req markForm
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a valid number for the final mark"})
		return
	}
	err := h.campus.UpdateFinalMark(c.Request.Context(), identity(c).UserID, c.Param("module_id"), c.Param("student_id"), *req.FinalMark)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Final mark updated successfully!"})
}
