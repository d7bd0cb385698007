package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/makkenzo/device-license-service/internal/handler/dto"
	"github.com/makkenzo/device-license-service/internal/ierr"
	"go.uber.org/zap"
)

func ErrorHandlerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("ErrorHandler")
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status, errResponse := ErrorResponse(err)
		if status >= http.StatusInternalServerError {
			log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		} else {
			log.Debug("Request rejected", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
		}

		c.AbortWithStatusJSON(status, errResponse)
	}
}

// ErrorResponse maps an error chain to an HTTP status and a structured body.
func ErrorResponse(err error) (int, dto.APIErrorResponse) {
	status := http.StatusInternalServerError
	errResponse := dto.APIErrorResponse{
		Code:    "INTERNAL_ERROR",
		Message: "An unexpected error occurred.",
	}

	var ve validator.ValidationErrors

	if errors.As(err, &ve) {
		status = http.StatusBadRequest
		errResponse.Code = "VALIDATION_ERROR"
		errResponse.Message = "Input validation failed."
		errResponse.Details = buildValidationErrors(ve)
		return status, errResponse
	}

	switch {
	case errors.Is(err, ierr.ErrInvalidKey):
		status = http.StatusNotFound
		errResponse.Code = "INVALID_KEY"
		errResponse.Message = "License key is not valid."
	case errors.Is(err, ierr.ErrLicenseRevoked):
		status = http.StatusForbidden
		errResponse.Code = "LICENSE_REVOKED"
		errResponse.Message = "License has been revoked."
	case errors.Is(err, ierr.ErrLicenseExpired):
		status = http.StatusForbidden
		errResponse.Code = "LICENSE_EXPIRED"
		errResponse.Message = "License has expired and its grace period is over."
	case errors.Is(err, ierr.ErrDeviceLimitExceeded):
		status = http.StatusConflict
		errResponse.Code = "DEVICE_LIMIT_EXCEEDED"
		errResponse.Message = "License has no free device slots."
	case errors.Is(err, ierr.ErrTransientStore):
		status = http.StatusServiceUnavailable
		errResponse.Code = "TRANSIENT_STORE_FAILURE"
		errResponse.Message = "Storage is temporarily unavailable, retry the request."
	case errors.Is(err, ierr.ErrValidation):
		status = http.StatusBadRequest
		errResponse.Code = "VALIDATION_ERROR"
		errResponse.Message = err.Error()
	case errors.Is(err, ierr.ErrUnauthorized), errors.Is(err, ierr.ErrInvalidCredentials),
		errors.Is(err, ierr.ErrInvalidToken), errors.Is(err, ierr.ErrTokenParsingFailed),
		errors.Is(err, ierr.ErrTokenInvalidClaims):
		status = http.StatusUnauthorized
		errResponse.Code = "UNAUTHENTICATED"
		errResponse.Message = "Authentication required or failed."
	case errors.Is(err, ierr.ErrForbidden):
		status = http.StatusForbidden
		errResponse.Code = "FORBIDDEN"
		errResponse.Message = "Access denied."
	case errors.Is(err, ierr.ErrNotFound):
		status = http.StatusNotFound
		errResponse.Code = "NOT_FOUND"
		errResponse.Message = "The requested resource was not found."
	case errors.Is(err, ierr.ErrConflict):
		status = http.StatusConflict
		errResponse.Code = "CONFLICT"
		errResponse.Message = err.Error()
	}
	return status, errResponse
}

func buildValidationErrors(ve validator.ValidationErrors) []dto.FieldError {
	details := make([]dto.FieldError, len(ve))
	for i, fe := range ve {
		details[i] = dto.FieldError{
			Field:   fe.Field(),
			Message: getValidationErrorMsg(fe),
		}
	}
	return details
}

func getValidationErrorMsg(fe validator.FieldError) string {

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Field '%s' is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("Field '%s' must be one of [%s]", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("Field '%s' must be greater than or equal to %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("Field '%s' must be less than or equal to %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("Field '%s' must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("Field '%s' failed validation on the '%s' tag", fe.Field(), fe.Tag())
	}
}
