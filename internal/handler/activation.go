package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/device-license-service/internal/handler/dto"
	"github.com/makkenzo/device-license-service/internal/metrics"
	"github.com/makkenzo/device-license-service/internal/service"
	"go.uber.org/zap"
)

type ActivationHandler struct {
	service *service.ActivationService
	logger  *zap.Logger
}

func NewActivationHandler(service *service.ActivationService, logger *zap.Logger) *ActivationHandler {
	return &ActivationHandler{
		service: service,
		logger:  logger.Named("ActivationHandler"),
	}
}

// Activate binds a machine to a license, or checks in an already bound one.
// The response carries everything the installer needs for its offline cache.
func (h *ActivationHandler) Activate(c *gin.Context) {
	var req dto.ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind activation request", zap.Error(err))
		_ = c.Error(bindingError(err))
		return
	}

	result, err := h.service.Activate(c.Request.Context(), service.ActivateParams{
		LicenseKey:  req.LicenseKey,
		Fingerprint: req.MachineFingerprint,
		MachineName: req.MachineName,
		OSInfo:      req.OSInfo,
		IPAddress:   c.ClientIP(),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	status := http.StatusOK
	if result.Outcome != metrics.OutcomeCheckIn {
		status = http.StatusCreated
	}
	c.JSON(status, dto.ActivateResponse{
		Success:         true,
		ActivationID:    result.Activation.ID,
		LicenseKey:      result.License.LicenseKey,
		LicenseType:     result.License.Type,
		ExpiresAt:       result.License.ExpiresAt,
		DaysUntilExpiry: result.DaysUntilExpiry,
		GracePeriodDays: result.License.GracePeriodDays,
		GraceState:      result.GraceState,
		Features:        result.License.Features.String,
		Company:         dto.NewCompanySnapshot(result.Company),
	})
}
