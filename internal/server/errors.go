package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	"github.com/smallbiznis/duesledger/internal/auth/token"
	"github.com/smallbiznis/duesledger/internal/authorization"
	expensedomain "github.com/smallbiznis/duesledger/internal/expense/domain"
	fundraiserdomain "github.com/smallbiznis/duesledger/internal/fundraiser/domain"
	invoicedomain "github.com/smallbiznis/duesledger/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/duesledger/internal/ledger/domain"
	"github.com/smallbiznis/duesledger/internal/money"
	onlinepaymentdomain "github.com/smallbiznis/duesledger/internal/onlinepayment/domain"
	overduedomain "github.com/smallbiznis/duesledger/internal/overdue/domain"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	settlementdomain "github.com/smallbiznis/duesledger/internal/settlement/domain"
	userdomain "github.com/smallbiznis/duesledger/internal/user/domain"
	"github.com/smallbiznis/duesledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrSubmitInProgress   = errors.New("claim_submission_in_progress")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// stateMessages describe why a well-formed request was refused in the
// current state.
var stateMessages = map[error]string{
	invoicedomain.ErrDuplicateInvoice:           "an invoice already exists for this resident and month",
	invoicedomain.ErrAlreadyPaid:                "invoice is already paid",
	invoicedomain.ErrAwaitingOnlineConfirmation: "invoice is awaiting online payment confirmation",
	invoicedomain.ErrAmountExceedsRemaining:     "amount exceeds the remaining balance of the invoice",
	invoicedomain.ErrInvalidState:               "invoice cannot change from its current status",
	invoicedomain.ErrPaymentsSettled:            "payments on this invoice are already settled to the treasury",
	onlinepaymentdomain.ErrDuplicateClaim:       "a pending claim already exists for this invoice",
	onlinepaymentdomain.ErrNotPending:           "claim has already been reviewed",
	settlementdomain.ErrExceedsOutstanding:      "amount exceeds the collector's outstanding balance",
	userdomain.ErrDuplicateUsername:             "username is already taken",
	userdomain.ErrNotCollector:                  "user is not a collector",
	fundraiserdomain.ErrDuplicateFundraiser:     "a fundraiser with this name exists for the period",
	ledgerdomain.ErrLedgerConflict:              "ledger tail moved, retry the request",
	ErrSubmitInProgress:                         "another claim for this invoice is being submitted",
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	if msg, ok := stateConflictMessage(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "state_conflict",
			Message: msg,
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrUnauthenticated),
		errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, token.ErrExpiredToken),
		errors.Is(err, token.ErrInvalidClaims):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, authorization.ErrOutOfScope),
		errors.Is(err, overduedomain.ErrOutOfScope):
		return http.StatusForbidden, errorPayload{
			Type:    "scope_violation",
			Message: "building is outside your assignment",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same taxonomy clients see.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if payload.Type == "state_conflict" || payload.Type == "not_found" {
		code = err.Error()
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, pagination.ErrInvalidPageToken):
		return true
	case isInvoiceValidationError(err),
		isPaymentValidationError(err),
		isClaimValidationError(err),
		isUserValidationError(err),
		isLedgerValidationError(err),
		isTreasuryValidationError(err),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isInvoiceValidationError(err error) bool {
	return errors.Is(err, invoicedomain.ErrInvalidStatus) ||
		errors.Is(err, invoicedomain.ErrInvalidSource) ||
		errors.Is(err, invoicedomain.ErrInvalidYear) ||
		errors.Is(err, invoicedomain.ErrInvalidMonth) ||
		errors.Is(err, invoicedomain.ErrInvalidUser) ||
		errors.Is(err, invoicedomain.ErrInvalidBuilding)
}

func isPaymentValidationError(err error) bool {
	return errors.Is(err, paymentdomain.ErrInvalidMethod)
}

func isClaimValidationError(err error) bool {
	return errors.Is(err, onlinepaymentdomain.ErrInvalidStatus) ||
		errors.Is(err, onlinepaymentdomain.ErrInvalidReference) ||
		errors.Is(err, onlinepaymentdomain.ErrInvalidReviewer)
}

func isUserValidationError(err error) bool {
	return errors.Is(err, userdomain.ErrInvalidUsername) ||
		errors.Is(err, userdomain.ErrInvalidName) ||
		errors.Is(err, userdomain.ErrInvalidRole) ||
		errors.Is(err, userdomain.ErrInvalidBuilding)
}

func isLedgerValidationError(err error) bool {
	return errors.Is(err, ledgerdomain.ErrInvalidEntryType) ||
		errors.Is(err, ledgerdomain.ErrInvalidEntryAmounts) ||
		errors.Is(err, ledgerdomain.ErrInvalidSource) ||
		errors.Is(err, ledgerdomain.ErrInvalidAuthor) ||
		errors.Is(err, ledgerdomain.ErrInvalidDescription) ||
		errors.Is(err, ledgerdomain.ErrInvalidPageToken)
}

func isTreasuryValidationError(err error) bool {
	return errors.Is(err, settlementdomain.ErrInvalidTreasurer) ||
		errors.Is(err, expensedomain.ErrInvalidTitle) ||
		errors.Is(err, expensedomain.ErrInvalidAuthor) ||
		errors.Is(err, expensedomain.ErrInvalidPeriod) ||
		errors.Is(err, fundraiserdomain.ErrInvalidName) ||
		errors.Is(err, fundraiserdomain.ErrInvalidPeriod) ||
		errors.Is(err, fundraiserdomain.ErrInvalidAuthor)
}

func stateConflictMessage(err error) (string, bool) {
	for target, msg := range stateMessages {
		if errors.Is(err, target) {
			return msg, true
		}
	}
	return "", false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, onlinepaymentdomain.ErrClaimNotFound),
		errors.Is(err, userdomain.ErrUserNotFound),
		errors.Is(err, userdomain.ErrResidentNotFound),
		errors.Is(err, settlementdomain.ErrCollectorNotFound),
		errors.Is(err, fundraiserdomain.ErrFundraiserNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func notFoundMessage(err error) string {
	code := err.Error()
	if strings.HasSuffix(code, "_not_found") {
		return strings.ReplaceAll(code, "_", " ")
	}
	return "not found"
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
