package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"otpattend/internal/attendance"
	"otpattend/internal/auth"
	"otpattend/internal/httpmiddleware"
	"otpattend/internal/queue"
)

const publishTimeout = 500 * time.Millisecond

// Handler serves the login, admin, teacher and student routes.
type Handler struct {
	svc      *attendance.Service
	sessions *auth.Manager
	events   queue.Queue
	limiter  httpmiddleware.Limiter
	log      *zap.Logger
}

// Config lists what the handlers depend on. A nil Events disables attendance
// events and a nil OTPLimiter disables guess limiting on /submit_otp.
type Config struct {
	Service    *attendance.Service
	Sessions   *auth.Manager
	Events     queue.Queue
	OTPLimiter httpmiddleware.Limiter
	Logger     *zap.Logger
}

// New builds a Handler. A nil Logger discards log output.
func New(cfg Config) *Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		svc:      cfg.Service,
		sessions: cfg.Sessions,
		events:   cfg.Events,
		limiter:  cfg.OTPLimiter,
		log:      log,
	}
}

// Routes mounts every page and action. The session middleware must already
// be installed on r.
func (h *Handler) Routes(r gin.IRouter) {
	r.GET("/login", h.LoginPage)
	r.POST("/login", h.Login)
	r.POST("/register", h.Register)
	r.GET("/logout", h.Logout)

	admin := r.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	{
		admin.GET("", h.AdminDashboard)
		admin.GET("/classes", h.ListClasses)
		admin.POST("/classes", h.CreateClass)
		admin.GET("/schedule/:classId", h.ListSchedule)
		admin.POST("/schedule/:classId", h.AddSchedule)
		admin.GET("/teachers", h.ListTeachers)
		admin.POST("/teachers", h.AssignTeacher)
	}

	teacher := r.Group("/teacher", auth.RequireRole(auth.RoleTeacher))
	{
		teacher.GET("", h.TeacherDashboard)
		teacher.GET("/profile", h.TeacherProfile)
		teacher.GET("/classes", h.TeacherClasses)
	}
	r.POST("/generate_otp", auth.RequireRole(auth.RoleTeacher), h.GenerateOTP)

	student := r.Group("/student", auth.RequireRole(auth.RoleStudent))
	{
		student.GET("", h.StudentDashboard)
		student.GET("/profile", h.StudentProfile)
		student.GET("/schedule", h.StudentSchedule)
		student.GET("/attendance", h.StudentAttendance)
	}
	submit := []gin.HandlerFunc{auth.RequireRole(auth.RoleStudent)}
	if h.limiter != nil {
		submit = append(submit, httpmiddleware.Limit(h.limiter, httpmiddleware.ByPrincipal, h.log))
	}
	r.POST("/submit_otp", append(submit, h.SubmitOTP)...)
}

// principal is only called behind RequireRole, so the lookup cannot miss.
func principal(c *gin.Context) auth.Principal {
	p, _ := auth.CurrentPrincipal(c)
	return p
}

// writeError turns a service error into a response. Anything unexpected is
// logged and hidden behind a generic message.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, attendance.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, attendance.ErrNotAssigned),
		errors.Is(err, attendance.ErrNotEnrolled):
		status = http.StatusForbidden
	case errors.Is(err, attendance.ErrUserExists),
		errors.Is(err, attendance.ErrClassCodeExists):
		status = http.StatusConflict
	case errors.Is(err, attendance.ErrTeacherNotFound),
		errors.Is(err, attendance.ErrClassNotFound):
		status = http.StatusNotFound
	case errors.Is(err, attendance.ErrInvalidOrExpiredOTP),
		errors.Is(err, attendance.ErrClassCodeRequired),
		errors.Is(err, attendance.ErrInvalidClassCode),
		errors.Is(err, attendance.ErrDeptRequired),
		errors.Is(err, attendance.ErrInvalidRole),
		errors.Is(err, attendance.ErrMissingFields),
		errors.Is(err, attendance.ErrInvalidSchedule):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", httpmiddleware.GetRequestID(c)),
			zap.Error(err))
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// publishMarked emits an attendance event. Failures are logged only.
func (h *Handler) publishMarked(ctx context.Context, rec attendance.Record) {
	if h.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err := queue.PublishMarked(ctx, h.events, queue.AttendanceMarked{
		Email:     rec.Email,
		ClassID:   rec.ClassID,
		Timestamp: rec.Timestamp,
	})
	if err != nil {
		h.log.Warn("publish attendance event failed", zap.String("email", rec.Email), zap.Error(err))
	}
}
