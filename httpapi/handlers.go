package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/blogauth"
	"github.com/MrEthical07/blogauth/domain"
	"github.com/MrEthical07/blogauth/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errMissingDependency = errors.New("httpapi: engine and token manager are required")

const federationKeyHeader = "X-Federation-Key"

type loginRequest struct {
	Email         string `json:"email" binding:"required"`
	Password      string `json:"password" binding:"required"`
	TwoFactorCode string `json:"two_factor_code"`
}

type federatedRequest struct {
	Provider      string `json:"provider" binding:"required"`
	Subject       string `json:"subject" binding:"required"`
	Email         string `json:"email" binding:"required"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

type registerRequest struct {
	Email            string `json:"email" binding:"required"`
	Password         string `json:"password" binding:"required"`
	Name             string `json:"name"`
	GDPRConsent      bool   `json:"gdpr_consent"`
	MarketingConsent bool   `json:"marketing_consent"`
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required"`
}

type resetRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type codeRequest struct {
	Code string `json:"code" binding:"required"`
}

type consentRequest struct {
	Type    domain.ConsentType `json:"type" binding:"required"`
	Granted *bool              `json:"granted" binding:"required"`
}

type sessionResponse struct {
	Token          string                     `json:"token"`
	TokenType      string                     `json:"token_type"`
	ExpiresAt      time.Time                  `json:"expires_at"`
	Identity       blogauth.IdentityAssertion `json:"identity"`
	UsedBackupCode bool                       `json:"used_backup_code,omitempty"`
	Provisioned    bool                       `json:"provisioned,omitempty"`
}

type twoFactorSetupResponse struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// requestContext carries the caller's IP and User-Agent into the engine.
func requestContext(c *gin.Context) context.Context {
	ctx := blogauth.WithClientIP(c.Request.Context(), c.ClientIP())
	return blogauth.WithUserAgent(ctx, c.Request.UserAgent())
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: codeInvalidRequest})
		return false
	}
	return true
}

func (h *handlers) identity(c *gin.Context) (blogauth.IdentityAssertion, bool) {
	id, ok := middleware.Identity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "unauthorized"})
	}
	return id, ok
}

func (h *handlers) writeOutcome(c *gin.Context, out blogauth.LoginOutcome) {
	switch o := out.(type) {
	case blogauth.LoginSuccess:
		token, expires, err := h.tokens.Issue(o.Assertion)
		if err != nil {
			h.log.Error("session token issue failed", zap.String("account_id", o.Assertion.AccountID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, errorBody{Error: codeInternal})
			return
		}
		c.JSON(http.StatusOK, sessionResponse{
			Token:          token,
			TokenType:      "Bearer",
			ExpiresAt:      expires.UTC(),
			Identity:       o.Assertion,
			UsedBackupCode: o.UsedBackupCode,
			Provisioned:    o.Provisioned,
		})
	case blogauth.LoginRejected:
		writeRejection(c, h.now(), o)
	default:
		c.JSON(http.StatusInternalServerError, errorBody{Error: codeInternal})
	}
}

func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.engine.Login(requestContext(c), blogauth.LoginRequest{
		Email:         req.Email,
		Password:      req.Password,
		TwoFactorCode: req.TwoFactorCode,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOutcome(c, out)
}

func (h *handlers) requireFederationKey(c *gin.Context) {
	got := c.GetHeader(federationKeyHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.federationKey)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}
	c.Next()
}

func (h *handlers) loginFederated(c *gin.Context) {
	var req federatedRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.engine.LoginFederated(requestContext(c), blogauth.FederatedIdentity{
		Provider:      req.Provider,
		Subject:       req.Subject,
		Email:         req.Email,
		EmailVerified: req.EmailVerified,
		Name:          req.Name,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOutcome(c, out)
}

func (h *handlers) register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.engine.Register(requestContext(c), blogauth.RegisterRequest{
		Email:            req.Email,
		Password:         req.Password,
		Name:             req.Name,
		GDPRConsent:      req.GDPRConsent,
		MarketingConsent: req.MarketingConsent,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *handlers) verifyEmail(c *gin.Context) {
	var req tokenRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.engine.VerifyEmail(requestContext(c), req.Token)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// resendVerification and forgotPassword answer 202 whether or not the
// address exists.
func (h *handlers) resendVerification(c *gin.Context) {
	var req emailRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.engine.RequestEmailVerification(requestContext(c), req.Email); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *handlers) forgotPassword(c *gin.Context) {
	var req emailRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.engine.RequestPasswordReset(requestContext(c), req.Email); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *handlers) resetPassword(c *gin.Context) {
	var req resetRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.engine.ResetPassword(requestContext(c), req.Token, req.Password); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) me(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	view, err := h.engine.Account(requestContext(c), id.AccountID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handlers) export(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	data, err := h.engine.ExportAccountData(requestContext(c), id.AccountID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="account-export.json"`)
	c.JSON(http.StatusOK, data)
}

func (h *handlers) recordConsent(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	var req consentRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.engine.RecordConsent(requestContext(c), id.AccountID, req.Type, *req.Granted); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) consentHistory(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	history, err := h.engine.ConsentHistory(requestContext(c), id.AccountID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"consents": history})
}

func (h *handlers) requestDeletion(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	if err := h.engine.RequestDeletion(requestContext(c), id.AccountID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *handlers) beginTwoFactor(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	setup, err := h.engine.BeginTwoFactorSetup(requestContext(c), id.AccountID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, twoFactorSetupResponse{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
		BackupCodes:     setup.BackupCodes,
	})
}

func (h *handlers) confirmTwoFactor(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	var req codeRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.engine.ConfirmTwoFactorSetup(requestContext(c), id.AccountID, req.Code); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) disableTwoFactor(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	var req codeRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.engine.DisableTwoFactor(requestContext(c), id.AccountID, req.Code); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) regenerateBackupCodes(c *gin.Context) {
	id, ok := h.identity(c)
	if !ok {
		return
	}
	var req codeRequest
	if !bindJSON(c, &req) {
		return
	}
	codes, err := h.engine.RegenerateBackupCodes(requestContext(c), id.AccountID, req.Code)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"backup_codes": codes})
}

func (h *handlers) adminAccount(c *gin.Context) {
	view, err := h.engine.Account(requestContext(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handlers) adminUnlock(c *gin.Context) {
	admin, _ := middleware.Identity(c)
	accountID := c.Param("id")
	if err := h.engine.UnlockAccount(requestContext(c), accountID); err != nil {
		h.writeError(c, err)
		return
	}
	h.log.Info("account unlocked", zap.String("account_id", accountID), zap.String("admin_id", admin.AccountID))
	c.Status(http.StatusNoContent)
}

func (h *handlers) securityReport(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.SecurityReport())
}
