package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// LoginPath is the login entry point unauthenticated requests are sent to.
	LoginPath = "/login"
	// CookieName holds the session token.
	CookieName = "session"

	principalCtxKey = "principal"
	claimsCtxKey    = "claims"
)

// Revoker remembers logged out session ids until their tokens expire.
type Revoker interface {
	Revoke(ctx context.Context, id string, ttl time.Duration) error
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// Manager issues session cookies and resolves them back into principals.
type Manager struct {
	Issuer       string
	SigningKey   string
	TTL          time.Duration
	SecureCookie bool
	// Revoker is optional; without it logout only clears the cookie.
	Revoker Revoker
	Logger  *zap.Logger
}

// Start signs a session for p and sets it as an HTTP-only cookie.
func (m *Manager) Start(c *gin.Context, p Principal) (Session, error) {
	s, err := Issue(p, m.Issuer, m.SigningKey, m.TTL)
	if err != nil {
		return Session{}, err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, s.Token, int(m.TTL.Seconds()), "/", "", m.SecureCookie, true)
	return s, nil
}

// End clears the session cookie and revokes the token when possible.
func (m *Manager) End(c *gin.Context) {
	if claims, ok := c.Get(claimsCtxKey); ok && m.Revoker != nil {
		cl := claims.(Claims)
		if cl.ExpiresAt != nil {
			ttl := time.Until(cl.ExpiresAt.Time)
			if err := m.Revoker.Revoke(c.Request.Context(), cl.ID, ttl); err != nil {
				m.logger().Warn("session revoke failed", zap.Error(err))
			}
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", m.SecureCookie, true)
}

// Middleware resolves the session token, if any, into a principal on both
// the gin context and the request context. It never rejects a request;
// RequireRole does that.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := tokenFromRequest(c)
		if tokenStr == "" {
			c.Next()
			return
		}
		claims, err := Parse(tokenStr, m.SigningKey, m.Issuer)
		if err != nil {
			c.Next()
			return
		}
		p, err := claims.Principal()
		if err != nil {
			c.Next()
			return
		}
		if m.Revoker != nil && claims.ID != "" {
			revoked, err := m.Revoker.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				// a session that cannot be checked is treated as signed out
				m.logger().Warn("session revocation check failed", zap.Error(err))
			}
			if revoked || err != nil {
				c.Next()
				return
			}
		}
		c.Set(claimsCtxKey, claims)
		c.Set(principalCtxKey, p)
		c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

func (m *Manager) logger() *zap.Logger {
	if m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}

// RequireRole lets the request through only when the session principal has
// the given role. Everyone else is redirected to the login page.
func RequireRole(role Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok || p.Role != role {
			c.Redirect(http.StatusFound, LoginPath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentPrincipal returns the principal resolved by Middleware.
func CurrentPrincipal(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalCtxKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

func tokenFromRequest(c *gin.Context) string {
	if authz := c.GetHeader("Authorization"); strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	if cookie, err := c.Cookie(CookieName); err == nil {
		return cookie
	}
	return ""
}
