package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/duesledger/internal/observability/logger"
	"go.uber.org/zap"
)

// maxClaimBodyBytes caps the claim body buffered before the handler runs.
const maxClaimBodyBytes = 64 << 10

const (
	rateLimitReasonResidentRate    = "resident-rate"
	rateLimitReasonInvoiceInFlight = "invoice-in-flight"
)

type claimSubmitRateLimitKey struct {
	InvoiceID string `json:"invoice_id"`
}

// ClaimSubmitRateLimit throttles claim submissions per resident and holds a
// short lock per invoice so double submits cannot race.
func (s *Server) ClaimSubmitRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.claimLimiter.Enabled() {
			c.Next()
			return
		}

		principal, err := principalFrom(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		ctx := c.Request.Context()

		result, err := s.claimLimiter.AllowResident(ctx, principal.ID.String())
		if err != nil {
			logger.FromContext(ctx).Warn("claim submit rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			s.denyClaimSubmit(c, endpoint, rateLimitReasonResidentRate, result.RetryAfter)
			return
		}

		invoiceID, err := readClaimSubmitKey(c)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			AbortWithError(c, newValidationError("body", "body_too_large", "request body is too large"))
			return
		}
		if err != nil {
			logger.FromContext(ctx).Warn("claim submit rate limit read body failed", zap.Error(err))
			AbortWithError(c, invalidRequestError())
			return
		}
		if invoiceID == "" {
			c.Next()
			return
		}

		lease, err := s.claimLimiter.LockInvoice(ctx, invoiceID)
		if err != nil {
			logger.FromContext(ctx).Warn("claim submit lock failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if lease == nil {
			s.denyClaimSubmit(c, endpoint, rateLimitReasonInvoiceInFlight, time.Second)
			return
		}
		defer func() {
			if err := lease.Release(ctx); err != nil {
				logger.FromContext(ctx).Warn("claim submit unlock failed",
					zap.String("invoice_id", invoiceID),
					zap.Error(err),
				)
			}
		}()

		c.Next()
	}
}

func (s *Server) denyClaimSubmit(c *gin.Context, endpoint, reason string, retryAfter time.Duration) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("claim submit rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, reason)

	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
	c.Header("X-Rate-Limited-Reason", reason)
	if reason == rateLimitReasonInvoiceInFlight {
		AbortWithError(c, ErrSubmitInProgress)
		return
	}
	AbortWithError(c, ErrRateLimited)
}

func readClaimSubmitKey(c *gin.Context) (string, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxClaimBodyBytes))
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return "", nil
	}

	var payload claimSubmitRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}
	return strings.TrimSpace(payload.InvoiceID), nil
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
