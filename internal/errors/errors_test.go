package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/ledger-migrator/internal/types"
)

func TestCategorize_PassThrough(t *testing.T) {
	original := NewAlreadyRolledBackError("b-1")

	categorized := Categorize(original)
	if categorized != original {
		t.Error("an already categorized error should be returned as-is")
	}
}

func TestCategorize_ServiceError(t *testing.T) {
	svcErr := &types.ServiceError{
		Code:    "BACKUP_NOT_FOUND",
		Message: "backup not found: b-1",
	}

	categorized := Categorize(svcErr)
	if categorized.Category != CategoryNotFound || categorized.StatusCode != http.StatusNotFound {
		t.Errorf("categorized = %+v, want not found / 404", categorized)
	}
}

func TestCategorize_UnknownError(t *testing.T) {
	categorized := Categorize(errors.New("something broke"))
	if categorized.Category != CategorySystem || categorized.StatusCode != http.StatusInternalServerError {
		t.Errorf("categorized = %+v, want system / 500", categorized)
	}
	if categorized.Cause == nil {
		t.Error("the original error should be kept as cause")
	}
}

func TestGetHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil-safe fallback", errors.New("x"), http.StatusInternalServerError},
		{"not found", NewBackupNotFoundError("b-1"), http.StatusNotFound},
		{"already rolled back", NewAlreadyRolledBackError("b-1"), http.StatusConflict},
		{"unknown migration", NewUnknownMigrationError("x"), http.StatusNotFound},
		{"invalid parameter", NewInvalidParameterError("amount", "must be positive"), http.StatusBadRequest},
		{"unauthorized", NewUnauthorizedError("no token"), http.StatusUnauthorized},
		{"rate limited", NewRateLimitError("op-1"), http.StatusTooManyRequests},
		{"record store", NewRecordStoreError("scan", errors.New("down")), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetHTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("GetHTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewDatabaseError("insert", errors.New("conn reset"))) {
		t.Error("database errors should be retryable")
	}
	if !IsRetryable(NewRecordStoreError("scan", errors.New("timeout"))) {
		t.Error("record store errors should be retryable")
	}
	if IsRetryable(NewAlreadyRolledBackError("b-1")) {
		t.Error("policy rejections are never retryable")
	}
	if IsRetryable(NewInvalidParameterError("amount", "bad")) {
		t.Error("user input errors are never retryable")
	}
}

func TestIsPolicyRejection(t *testing.T) {
	if !IsPolicyRejection(NewAlreadyRolledBackError("b-1")) {
		t.Error("already rolled back is a policy rejection")
	}
	if !IsPolicyRejection(NewBackupNotFoundError("b-1")) {
		t.Error("not found is refused before side effects")
	}
	if IsPolicyRejection(NewDatabaseError("insert", errors.New("down"))) {
		t.Error("database errors are not policy rejections")
	}
}
