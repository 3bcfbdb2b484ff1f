package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ---------- Student ----------

func (h *Handler) StudentDashboard(c *gin.Context) {
	ctx := c.Request.Context()
	email := principal(c).Email
	profile, err := h.svc.StudentProfile(ctx, email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	sched, err := h.svc.StudentSchedule(ctx, email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	sched.Entries = nonNil(sched.Entries)
	c.JSON(http.StatusOK, gin.H{"profile": profile, "schedule": sched})
}

func (h *Handler) StudentProfile(c *gin.Context) {
	profile, err := h.svc.StudentProfile(c.Request.Context(), principal(c).Email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) StudentSchedule(c *gin.Context) {
	sched, err := h.svc.StudentSchedule(c.Request.Context(), principal(c).Email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	sched.Entries = nonNil(sched.Entries)
	c.JSON(http.StatusOK, sched)
}

func (h *Handler) StudentAttendance(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	records, err := h.svc.StudentAttendance(c.Request.Context(), principal(c).Email, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": nonNil(records)})
}

type submitOTPRequest struct {
	OTP string `form:"otp" json:"otp"`
}

// SubmitOTP marks the student present when the code is current.
func (h *Handler) SubmitOTP(c *gin.Context) {
	var req submitOTPRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	rec, err := h.svc.RedeemOTP(c.Request.Context(), principal(c).Email, req.OTP)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.publishMarked(c.Request.Context(), rec)
	c.JSON(http.StatusOK, gin.H{"status": "marked", "record": rec})
}
