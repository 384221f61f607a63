package handler

import (
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/campus"
	"faceattend/internal/faces"
)

// Deps are the services the HTTP layer calls into.
type Deps struct {
	Campus     *campus.Service
	Attendance *attendance.Service
	Faces      *faces.Registry
	Sessions   *auth.Sessions
	// MaxUploadBytes caps image uploads; 0 means 8 MiB.
	MaxUploadBytes int64
}

// Handler serves the JSON API.
type Handler struct {
	campus     *campus.Service
	attendance *attendance.Service
	faces      *faces.Registry
	sessions   *auth.Sessions
	maxUpload  int64
}

// New creates a handler.
func New(d Deps) *Handler {
	limit := d.MaxUploadBytes
	if limit <= 0 {
		limit = 8 << 20
	}
	return &Handler{
		campus:     d.Campus,
		attendance: d.Attendance,
		faces:      d.Faces,
		sessions:   d.Sessions,
		maxUpload:  limit,
	}
}

// Register mounts every route under /v1 on r. extra runs before the
// authenticated handlers, after the identity is known.
func (h *Handler) Register(r gin.IRouter, extra ...gin.HandlerFunc) {
	v1 := r.Group("/v1")

	a := v1.Group("/auth")
	a.POST("/students/register", h.RegisterStudent)
	a.POST("/lecturers/register", h.RegisterLecturer)
	a.POST("/login", h.Login)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)

	issuer := h.sessions.Issuer
	st := v1.Group("/student", append([]gin.HandlerFunc{auth.Require(issuer, auth.RoleStudent)}, extra...)...)
	st.POST("/face", h.UploadFace)
	st.GET("/dashboard", h.StudentDashboard)
	st.GET("/modules/:module_id", h.StudentModule)
	st.GET("/modules/:module_id/sessions/:session_id/eligibility", h.Eligibility)
	st.POST("/attendance", h.SubmitAttendance)

	lc := v1.Group("/lecturer", append([]gin.HandlerFunc{auth.Require(issuer, auth.RoleLecturer)}, extra...)...)
	lc.GET("/modules", h.LecturerModules)
	lc.POST("/modules", h.CreateModule)
	lc.GET("/modules/:module_id", h.ModuleDetail)
	lc.POST("/modules/:module_id/enrollments", h.EnrollStudent)
	lc.POST("/modules/:module_id/sessions", h.CreateSession)
	lc.PUT("/modules/:module_id/students/:student_id/mark", h.UpdateFinalMark)
}

// identity is only called behind auth.Require.
func identity(c *gin.Context) auth.Identity {
	id, _ := auth.Current(c)
	return id
}

const (
	msgNoImage       = "No image uploaded"
	msgNoSelection   = "No image selected"
	msgImageTooLarge = "Image is too large"
)

// readImage reads the named multipart file, bounded by the upload limit.
// A non-empty problem is a message for the caller; err is a server fault.
func (h *Handler) readImage(c *gin.Context, field string) (name string, data []byte, problem string, err error) {
	fh, ferr := c.FormFile(field)
	if ferr != nil {
		return "", nil, msgNoImage, nil
	}
	if fh.Filename == "" {
		return "", nil, msgNoSelection, nil
	}
	if fh.Size > h.maxUpload {
		return "", nil, msgImageTooLarge, nil
	}
	data, err = readAll(fh, h.maxUpload)
	if err != nil {
		return "", nil, "", err
	}
	return fh.Filename, data, "", nil
}

func readAll(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit))
}

// fail maps service errors onto HTTP statuses. Unknown errors are logged and
// hidden behind a 500.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, campus.ErrInvalidEmail),
		errors.Is(err, campus.ErrPasswordMismatch),
		errors.Is(err, campus.ErrMissingField),
		errors.Is(err, campus.ErrInvalidWindow),
		errors.Is(err, campus.ErrMarkOutOfRange),
		errors.Is(err, faces.ErrUnsupportedFormat),
		errors.Is(err, faces.ErrInvalidImage):
		status = http.StatusBadRequest
	case errors.Is(err, campus.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenRevoked):
		status = http.StatusUnauthorized
	case errors.Is(err, campus.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, campus.ErrModuleNotFound),
		errors.Is(err, campus.ErrStudentNotFound),
		errors.Is(err, campus.ErrNotEnrolled):
		status = http.StatusNotFound
	case errors.Is(err, campus.ErrEmailTaken),
		errors.Is(err, campus.ErrModuleCodeTaken),
		errors.Is(err, campus.ErrAlreadyEnrolled),
		errors.Is(err, faces.ErrReferenceContended):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Printf("handler: %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
}
