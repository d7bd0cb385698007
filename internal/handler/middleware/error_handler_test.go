package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/makkenzo/device-license-service/internal/ierr"
	"github.com/stretchr/testify/assert"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: key not found", ierr.ErrInvalidKey), http.StatusNotFound, "INVALID_KEY"},
		{ierr.ErrLicenseRevoked, http.StatusForbidden, "LICENSE_REVOKED"},
		{fmt.Errorf("%w: past grace", ierr.ErrLicenseExpired), http.StatusForbidden, "LICENSE_EXPIRED"},
		{fmt.Errorf("%w: 2 of 2", ierr.ErrDeviceLimitExceeded), http.StatusConflict, "DEVICE_LIMIT_EXCEEDED"},
		{fmt.Errorf("%w: activate: timeout", ierr.ErrTransientStore), http.StatusServiceUnavailable, "TRANSIENT_STORE_FAILURE"},
		{fmt.Errorf("%w: license", ierr.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{ierr.ErrInvalidCredentials, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{fmt.Errorf("%w: bad id", ierr.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{errors.New("something else"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, body := ErrorResponse(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Code)
		})
	}
}
