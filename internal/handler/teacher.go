package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ---------- Teacher ----------

func (h *Handler) TeacherDashboard(c *gin.Context) {
	p := principal(c)
	t, err := h.svc.TeacherProfile(c.Request.Context(), p.Email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	t.Classes = nonNil(t.Classes)
	c.JSON(http.StatusOK, gin.H{
		"teacher":      t,
		"otp_validity": int64(h.svc.Window().Seconds()),
	})
}

func (h *Handler) TeacherProfile(c *gin.Context) {
	t, err := h.svc.TeacherProfile(c.Request.Context(), principal(c).Email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	t.Classes = nonNil(t.Classes)
	c.JSON(http.StatusOK, t)
}

// TeacherClasses lists the teacher's classes, or the roster of one of them
// when classId is given.
func (h *Handler) TeacherClasses(c *gin.Context) {
	ctx := c.Request.Context()
	p := principal(c)
	raw := c.Query("classId")
	if raw == "" {
		classes, err := h.svc.TeacherClasses(ctx, p.Email)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"classes": nonNil(classes)})
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(c, "invalid classId")
		return
	}
	roster, err := h.svc.ClassRoster(ctx, p.Email, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	roster.Students = nonNil(roster.Students)
	c.JSON(http.StatusOK, roster)
}

type generateOTPRequest struct {
	ClassID int64 `form:"classId" json:"classId"`
}

func (h *Handler) GenerateOTP(c *gin.Context) {
	var req generateOTPRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	issued, err := h.svc.IssueOTP(c.Request.Context(), principal(c).Email, req.ClassID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, issued)
}
