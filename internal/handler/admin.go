package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"otpattend/internal/attendance"
)

// ---------- Admin ----------

// AdminDashboard lists the most recent attendance marks.
func (h *Handler) AdminDashboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	records, err := h.svc.RecentAttendance(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": nonNil(records)})
}

func (h *Handler) ListClasses(c *gin.Context) {
	classes, err := h.svc.ListClasses(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": nonNil(classes)})
}

type createClassRequest struct {
	Name      string `form:"name" json:"name"`
	Dept      string `form:"dept" json:"dept"`
	ClassCode string `form:"class_code" json:"class_code"`
}

func (h *Handler) CreateClass(c *gin.Context) {
	var req createClassRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	class, err := h.svc.CreateClass(c.Request.Context(), req.Name, req.Dept, req.ClassCode)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, class)
}

// classIDParam reads :classId. Ids that cannot exist are reported as a missing class.
func classIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("classId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": attendance.ErrClassNotFound.Error()})
		return 0, false
	}
	return id, true
}

func (h *Handler) ListSchedule(c *gin.Context) {
	id, ok := classIDParam(c)
	if !ok {
		return
	}
	sched, err := h.svc.ListSchedule(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	sched.Entries = nonNil(sched.Entries)
	c.JSON(http.StatusOK, sched)
}

type scheduleRequest struct {
	Day       string `form:"day" json:"day"`
	StartTime string `form:"start_time" json:"start_time"`
	EndTime   string `form:"end_time" json:"end_time"`
}

func (h *Handler) AddSchedule(c *gin.Context) {
	id, ok := classIDParam(c)
	if !ok {
		return
	}
	var req scheduleRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	entry, err := h.svc.AddSchedule(c.Request.Context(), id, req.Day, req.StartTime, req.EndTime)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) ListTeachers(c *gin.Context) {
	teachers, err := h.svc.ListTeachers(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teachers": nonNil(teachers)})
}

type assignRequest struct {
	Email   string `form:"email" json:"email"`
	ClassID int64  `form:"class_id" json:"class_id"`
}

func (h *Handler) AssignTeacher(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := h.svc.AssignTeacher(c.Request.Context(), req.Email, req.ClassID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "assigned", "email": req.Email, "class_id": req.ClassID})
}

// nonNil keeps empty listings as [] rather than null in JSON.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
