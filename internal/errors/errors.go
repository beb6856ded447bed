// Package errors provides the categorized error taxonomy of the migration
// engine: fatal run-level failures, policy rejections, and record-level
// errors that are absorbed into results rather than propagated.
package errors

import (
	"fmt"
	"net/http"

	"github.com/ledger-migrator/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryRecordStore represents record store errors
	CategoryRecordStore ErrorCategory = "record_store"
	// CategoryDatabase represents backup database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryPolicy represents policy rejections (refused before side effects)
	CategoryPolicy ErrorCategory = "policy"
	// CategoryAuthorization represents authorization errors
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Policy rejections (refused before any side effect)

// NewBackupNotFoundError creates a backup not found error
func NewBackupNotFoundError(backupID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "BACKUP_NOT_FOUND",
		Message:    fmt.Sprintf("backup not found: %s", backupID),
		Details: map[string]interface{}{
			"backupId": backupID,
		},
	}
}

// NewAlreadyRolledBackError creates an error for a second rollback attempt.
// Rollback is not idempotent: re-applying snapshots after unrelated writes
// would corrupt state, so the attempt is refused outright.
func NewAlreadyRolledBackError(backupID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPolicy,
		StatusCode: http.StatusConflict,
		Code:       "BACKUP_ALREADY_ROLLED_BACK",
		Message:    fmt.Sprintf("backup already rolled back: %s", backupID),
		Details: map[string]interface{}{
			"backupId": backupID,
		},
	}
}

// NewInvalidTransitionError creates an error for a refused status transition
func NewInvalidTransitionError(backupID string, from types.BackupStatus, to types.BackupStatus) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPolicy,
		StatusCode: http.StatusConflict,
		Code:       "INVALID_STATUS_TRANSITION",
		Message:    fmt.Sprintf("backup %s cannot transition from %s to %s", backupID, from, to),
		Details: map[string]interface{}{
			"backupId": backupID,
			"from":     string(from),
			"to":       string(to),
		},
	}
}

// NewUnknownMigrationError creates an error for an unregistered migration type
func NewUnknownMigrationError(migrationType string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusNotFound,
		Code:       "UNKNOWN_MIGRATION_TYPE",
		Message:    fmt.Sprintf("unknown migration type: %s", migrationType),
		Details: map[string]interface{}{
			"migrationType": migrationType,
		},
	}
}

// User input errors (4xx)

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(operator string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"operator": operator,
		},
	}
}

// System errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a backup database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewRecordStoreError creates a record store error. At the run level this is
// fatal (candidate scan, backup creation); at the record level the runner
// absorbs it into the migration log instead.
func NewRecordStoreError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRecordStore,
		StatusCode: http.StatusBadGateway,
		Code:       "RECORD_STORE_ERROR",
		Message:    fmt.Sprintf("record store error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	// If already categorized, return as-is
	if catErr, ok := err.(*CategorizedError); ok {
		return catErr
	}

	// If it's a ServiceError, convert it
	if svcErr, ok := err.(*types.ServiceError); ok {
		return categorizeServiceError(svcErr)
	}

	// Default to internal error
	return NewInternalError("unexpected error", err)
}

// categorizeServiceError categorizes a ServiceError
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	switch err.Code {
	case "BACKUP_NOT_FOUND", "USER_NOT_FOUND", "UNKNOWN_MIGRATION_TYPE":
		return &CategorizedError{
			Category:   CategoryNotFound,
			StatusCode: http.StatusNotFound,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	case "BACKUP_ALREADY_ROLLED_BACK", "INVALID_STATUS_TRANSITION":
		return &CategorizedError{
			Category:   CategoryPolicy,
			StatusCode: http.StatusConflict,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	case "INVALID_PARAMETER":
		return &CategorizedError{
			Category:   CategoryUserInput,
			StatusCode: http.StatusBadRequest,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	case "UNAUTHORIZED":
		return &CategorizedError{
			Category:   CategoryAuthorization,
			StatusCode: http.StatusUnauthorized,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	default:
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryRecordStore, CategoryDatabase, CategoryCache:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsPolicyRejection determines if an error is a policy rejection (the call
// was refused before any side effect)
func IsPolicyRejection(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.Category == CategoryPolicy || catErr.Category == CategoryNotFound
}
