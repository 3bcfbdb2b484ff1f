package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"otpattend/internal/attendance"
	"otpattend/internal/auth"
)

// ---------- Login / Register / Logout ----------

type loginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
	Role     string `form:"role" json:"role"`
}

// LoginPage is the entry point unauthenticated users are redirected to.
// Signed in users are sent on to their dashboard.
func (h *Handler) LoginPage(c *gin.Context) {
	if p, ok := auth.CurrentPrincipal(c); ok {
		c.Redirect(http.StatusSeeOther, p.Role.DashboardPath())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "sign in with email, password and role",
		"roles":   []auth.Role{auth.RoleAdmin, auth.RoleTeacher, auth.RoleStudent},
	})
}

// Login checks email, password and role, starts a session and redirects to
// the role's dashboard.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	p, err := h.svc.Authenticate(c.Request.Context(), req.Email, req.Password, req.Role)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if _, err := h.sessions.Start(c, p); err != nil {
		h.writeError(c, err)
		return
	}
	h.log.Info("user logged in", zap.String("email", p.Email), zap.String("role", string(p.Role)))
	c.Redirect(http.StatusSeeOther, p.Role.DashboardPath())
}

type registerRequest struct {
	Email      string `form:"email" json:"email"`
	Password   string `form:"password" json:"password"`
	Name       string `form:"name" json:"name"`
	Role       string `form:"role" json:"role"`
	ClassCode  string `form:"class_code" json:"class_code"`
	Department string `form:"dept" json:"dept"`
}

// Register creates a teacher or student account.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		h.writeError(c, attendance.ErrInvalidRole)
		return
	}
	u, err := h.svc.Register(c.Request.Context(), attendance.Registration{
		Email:      req.Email,
		Password:   req.Password,
		Name:       req.Name,
		Role:       role,
		ClassCode:  req.ClassCode,
		Department: req.Department,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

// Logout ends the session and sends the user back to the login page.
func (h *Handler) Logout(c *gin.Context) {
	h.sessions.End(c)
	c.Redirect(http.StatusFound, auth.LoginPath)
}
