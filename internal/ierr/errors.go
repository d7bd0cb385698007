package ierr

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource conflict")
	ErrInternalServer = errors.New("internal server error")

	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrTokenParsingFailed = errors.New("failed to parse token")
	ErrTokenInvalidClaims = errors.New("token contains invalid claims type")

	ErrInvalidKey          = errors.New("invalid license key")
	ErrLicenseRevoked      = errors.New("license has been revoked")
	ErrLicenseExpired      = errors.New("license has expired")
	ErrDeviceLimitExceeded = errors.New("device limit exceeded")
	ErrTransientStore      = errors.New("license store temporarily unavailable")
)
