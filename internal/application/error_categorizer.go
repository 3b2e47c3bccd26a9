package application

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/servilink/payhold/internal/domain"
)

// ErrorCategory represents the nature of an error for retry and logging
type ErrorCategory string

const (
	CategoryTransient      ErrorCategory = "TRANSIENT"
	CategoryPermanent      ErrorCategory = "PERMANENT"
	CategoryBusinessRule   ErrorCategory = "BUSINESS_RULE"
	CategoryClientError    ErrorCategory = "CLIENT_ERROR"
	CategoryInfrastructure ErrorCategory = "INFRASTRUCTURE"
)

// CategorizeError determines error category for retry and logging purposes
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryTransient
	}

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Code {
		case domain.ErrCodeHoldNotFound, domain.ErrCodeMissingRequiredField:
			return CategoryClientError
		case domain.ErrCodeVersionConflict:
			return CategoryTransient
		default:
			return CategoryBusinessRule
		}
	}

	if svcErr, ok := IsServiceError(err); ok {
		switch svcErr.Code {
		case ErrCodeInvalidInput, ErrCodeBadSignature:
			return CategoryClientError
		case ErrCodeTransient:
			return CategoryTransient
		case ErrCodeInternal:
			return CategoryInfrastructure
		}
	}

	if procErr, ok := IsProcessorError(err); ok {
		switch procErr.Kind() {
		case KindTransient:
			return CategoryTransient
		case KindInvalidState:
			return CategoryBusinessRule
		default:
			return CategoryPermanent
		}
	}

	// Default: Transient (safe fallback)
	return CategoryTransient
}

// IsRetryable returns true if the error category suggests retry
func IsRetryable(err error) bool {
	category := CategorizeError(err)
	return category == CategoryTransient || category == CategoryInfrastructure
}

// ToHTTPStatus maps error to appropriate HTTP status code
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if svcErr, ok := IsServiceError(err); ok {
		return svcErr.HTTPStatus
	}

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Code {
		case domain.ErrCodeInvalidAmount, domain.ErrCodeMissingRequiredField:
			return http.StatusBadRequest
		case domain.ErrCodeHoldNotFound:
			return http.StatusNotFound
		case domain.ErrCodeDeclined:
			return http.StatusPaymentRequired
		case domain.ErrCodeDuplicateActiveHold, domain.ErrCodeAlreadyTerminal,
			domain.ErrCodeVersionConflict, domain.ErrCodeHoldExpired,
			domain.ErrCodeInvalidTransition, domain.ErrCodeStaleEvent:
			return http.StatusConflict
		}
	}

	if procErr, ok := IsProcessorError(err); ok {
		switch procErr.Kind() {
		case KindTransient:
			return http.StatusServiceUnavailable
		case KindInvalidState:
			return http.StatusConflict
		default:
			return http.StatusPaymentRequired
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusRequestTimeout
	}

	return http.StatusInternalServerError
}

// ToErrorCode returns a stable error code for API responses
func ToErrorCode(err error) string {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}

	if svcErr, ok := IsServiceError(err); ok {
		return svcErr.Code
	}

	if procErr, ok := IsProcessorError(err); ok {
		return strings.ToUpper(procErr.Code)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "TIMEOUT"
	}

	return ErrCodeInternal
}
