package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/blogauth"
	"github.com/MrEthical07/blogauth/domain"
	"github.com/MrEthical07/blogauth/jwt"
	"github.com/MrEthical07/blogauth/middleware"
	"github.com/MrEthical07/blogauth/permission"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Options wires the router. Engine and Tokens are required.
type Options struct {
	Engine *blogauth.Engine
	Tokens *jwt.Manager
	Logger *zap.Logger
	// Metrics, when set, is served on GET /metrics.
	Metrics http.Handler
	// FederationKey guards POST /auth/federated. The route is not mounted
	// when it is empty, because the endpoint trusts the identity it is given.
	FederationKey string
	// TrustedProxies feeds gin's client IP resolution; nil trusts none.
	TrustedProxies []string
	// Roles gates /admin routes; defaults to permission.DefaultRoles.
	Roles *permission.RoleManager
	// Now is used for Retry-After; defaults to time.Now.
	Now func() time.Time
}

type handlers struct {
	engine        *blogauth.Engine
	tokens        *jwt.Manager
	log           *zap.Logger
	federationKey string
	now           func() time.Time
}

// NewRouter builds the gin engine serving the auth API.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Engine == nil || opts.Tokens == nil {
		return nil, errMissingDependency
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	roles := opts.Roles
	if roles == nil {
		roles = permission.DefaultRoles()
	}

	h := &handlers{
		engine:        opts.Engine,
		tokens:        opts.Tokens,
		log:           log.Named("http"),
		federationKey: opts.FederationKey,
		now:           now,
	}

	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}
	r.Use(gin.Recovery(), h.accessLog())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	auth := r.Group("/auth")
	auth.POST("/login", h.login)
	if h.federationKey != "" {
		auth.POST("/federated", h.requireFederationKey, h.loginFederated)
	}
	auth.POST("/register", h.register)
	auth.POST("/verify-email", h.verifyEmail)
	auth.POST("/verify-email/resend", h.resendVerification)
	auth.POST("/forgot-password", h.forgotPassword)
	auth.POST("/reset-password", h.resetPassword)

	authed := auth.Group("", middleware.RequireIdentity(opts.Tokens))
	authed.GET("/me", h.me)
	authed.GET("/export", h.export)
	authed.POST("/consent", h.recordConsent)
	authed.GET("/consent", h.consentHistory)
	authed.POST("/deletion-request", h.requestDeletion)

	twoFactor := authed.Group("/2fa", middleware.RequireConsent())
	twoFactor.POST("/setup", h.beginTwoFactor)
	twoFactor.POST("/confirm", h.confirmTwoFactor)
	twoFactor.POST("/disable", h.disableTwoFactor)
	twoFactor.POST("/backup-codes", h.regenerateBackupCodes)

	admin := r.Group("/admin",
		middleware.RequireIdentity(opts.Tokens),
		middleware.RequireRole(domain.RoleAdmin, domain.RoleModerator),
	)
	admin.GET("/accounts/:id", middleware.RequirePermission(roles, permission.AccountsRead), h.adminAccount)
	admin.POST("/accounts/:id/unlock", middleware.RequirePermission(roles, permission.AccountsUnlock), h.adminUnlock)
	admin.GET("/security-report", middleware.RequirePermission(roles, permission.SecurityReport), h.securityReport)

	return r, nil
}

func (h *handlers) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func zapPath(c *gin.Context) zap.Field {
	return zap.String("route", c.FullPath())
}

func zapErr(err error) zap.Field {
	return zap.Error(err)
}
