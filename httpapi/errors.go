package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/blogauth"
	"github.com/gin-gonic/gin"
)

// Error codes returned in the "error" field for non-login failures. Login
// rejections use the engine's reason strings instead.
const (
	codeInvalidRequest     = "INVALID_REQUEST"
	codeRateLimited        = "RATE_LIMITED"
	codeInvalidToken       = "INVALID_TOKEN"
	codeAccountExists      = "ACCOUNT_EXISTS"
	codeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	codeDeletionRequested  = "ACCOUNT_DELETION_REQUESTED"
	codeWeakPassword       = "WEAK_PASSWORD"
	codeConsentRequired    = "GDPR_CONSENT_REQUIRED"
	codeTwoFactorInvalid   = "INVALID_TWO_FACTOR"
	codeTwoFactorState     = "TWO_FACTOR_STATE"
	codeServiceUnavailable = "SERVICE_UNAVAILABLE"
	codeInternal           = "INTERNAL_ERROR"
)

type errorBody struct {
	Error      string     `json:"error"`
	RetryAt    *time.Time `json:"retry_at,omitempty"`
	Violations []string   `json:"violations,omitempty"`
}

// rejectionStatus maps login rejection reasons to HTTP status codes.
func rejectionStatus(reason string) int {
	switch reason {
	case blogauth.ReasonRateLimited:
		return http.StatusTooManyRequests
	case blogauth.ReasonAccountLocked:
		return http.StatusLocked
	case blogauth.ReasonAccountDeletionRequested,
		blogauth.ReasonEmailNotVerified,
		blogauth.ReasonGDPRConsentRequired:
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}

func writeRejection(c *gin.Context, now time.Time, r blogauth.LoginRejected) {
	body := errorBody{Error: r.Reason}
	if !r.RetryAt.IsZero() {
		retryAt := r.RetryAt.UTC()
		body.RetryAt = &retryAt
		setRetryAfter(c, now, retryAt)
	}
	c.JSON(rejectionStatus(r.Reason), body)
}

func setRetryAfter(c *gin.Context, now, retryAt time.Time) {
	secs := int(retryAt.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
}

// writeError maps engine errors to a status and code. Store failures answer
// 503 so that callers never read an outage as a credential problem.
func (h *handlers) writeError(c *gin.Context, err error) {
	var (
		rateErr   *blogauth.RateLimitError
		policyErr *blogauth.PasswordPolicyError
	)

	switch {
	case errors.As(err, &rateErr):
		body := errorBody{Error: codeRateLimited}
		if !rateErr.RetryAt.IsZero() {
			retryAt := rateErr.RetryAt.UTC()
			body.RetryAt = &retryAt
			setRetryAfter(c, h.now(), retryAt)
		}
		c.JSON(http.StatusTooManyRequests, body)
	case errors.As(err, &policyErr):
		c.JSON(http.StatusUnprocessableEntity, errorBody{Error: codeWeakPassword, Violations: policyErr.Violations})
	case errors.Is(err, blogauth.ErrInvalidRequest),
		errors.Is(err, blogauth.ErrInvalidLoginRequest),
		errors.Is(err, blogauth.ErrInvalidConsentType):
		c.JSON(http.StatusBadRequest, errorBody{Error: codeInvalidRequest})
	case errors.Is(err, blogauth.ErrTokenInvalid):
		c.JSON(http.StatusBadRequest, errorBody{Error: codeInvalidToken})
	case errors.Is(err, blogauth.ErrAccountExists):
		c.JSON(http.StatusConflict, errorBody{Error: codeAccountExists})
	case errors.Is(err, blogauth.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, errorBody{Error: codeAccountNotFound})
	case errors.Is(err, blogauth.ErrAccountDeletionRequested):
		c.JSON(http.StatusConflict, errorBody{Error: codeDeletionRequested})
	case errors.Is(err, blogauth.ErrConsentRequired):
		c.JSON(http.StatusBadRequest, errorBody{Error: codeConsentRequired})
	case errors.Is(err, blogauth.ErrTwoFactorCodeInvalid):
		c.JSON(http.StatusUnauthorized, errorBody{Error: codeTwoFactorInvalid})
	case errors.Is(err, blogauth.ErrTwoFactorAlreadyEnabled),
		errors.Is(err, blogauth.ErrTwoFactorNotPending),
		errors.Is(err, blogauth.ErrTwoFactorNotEnabled):
		c.JSON(http.StatusConflict, errorBody{Error: codeTwoFactorState})
	case errors.Is(err, blogauth.ErrStoreUnavailable),
		errors.Is(err, blogauth.ErrEngineNotReady):
		h.log.Error("auth backend unavailable", zapPath(c), zapErr(err))
		c.JSON(http.StatusServiceUnavailable, errorBody{Error: codeServiceUnavailable})
	default:
		h.log.Error("unhandled auth error", zapPath(c), zapErr(err))
		c.JSON(http.StatusInternalServerError, errorBody{Error: codeInternal})
	}
}
