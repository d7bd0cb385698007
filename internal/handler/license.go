package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/makkenzo/device-license-service/internal/handler/dto"
	"github.com/makkenzo/device-license-service/internal/handler/middleware"
	"github.com/makkenzo/device-license-service/internal/ierr"
	"github.com/makkenzo/device-license-service/internal/service"
	"go.uber.org/zap"
)

type LicenseHandler struct {
	service     *service.LicenseService
	activations *service.ActivationService
	logger      *zap.Logger
}

func NewLicenseHandler(service *service.LicenseService, activations *service.ActivationService, logger *zap.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:     service,
		activations: activations,
		logger:      logger.Named("LicenseHandler"),
	}
}

func (h *LicenseHandler) Create(c *gin.Context) {
	h.logger.Debug("Received request to create license")
	var req dto.CreateLicenseRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind or validate request body", zap.Error(err))
		_ = c.Error(bindingError(err))
		return
	}

	createdLicense, err := h.service.CreateLicense(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Info("License created successfully via handler", zap.String("id", createdLicense.ID.String()))
	c.JSON(http.StatusCreated, dto.NewLicenseResponse(createdLicense, h.service.Now()))
}

func (h *LicenseHandler) List(c *gin.Context) {
	h.logger.Debug("Received request to list licenses")
	var req dto.ListLicensesRequest

	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Failed to bind or validate query parameters", zap.Error(err))
		_ = c.Error(bindingError(err))
		return
	}

	licenses, totalCount, err := h.service.ListLicenses(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	now := h.service.Now()
	licenseResponses := make([]*dto.LicenseResponse, len(licenses))
	for i, lic := range licenses {
		licenseResponses[i] = dto.NewLicenseSummaryResponse(lic, now)
	}

	c.JSON(http.StatusOK, dto.PaginatedLicenseResponse{
		Licenses:   licenseResponses,
		TotalCount: totalCount,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
}

func (h *LicenseHandler) GetByID(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	lic, activations, err := h.service.GetLicense(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	resp := dto.LicenseDetailResponse{
		LicenseResponse: dto.NewLicenseResponse(lic, h.service.Now()),
		Activations:     make([]dto.ActivationInfo, len(activations)),
	}
	active := 0
	for i, a := range activations {
		resp.Activations[i] = dto.NewActivationInfo(a)
		if a.IsActive {
			active++
		}
	}
	resp.ActiveActivations = &active

	c.JSON(http.StatusOK, resp)
}

func (h *LicenseHandler) Update(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind or validate update request body", zap.String("id", id.String()), zap.Error(err))
		_ = c.Error(bindingError(err))
		return
	}

	updatedLicense, err := h.service.UpdateLicense(c.Request.Context(), id, &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Info("License updated successfully via handler", zap.String("id", id.String()), zap.String("actor", middleware.Actor(c)))
	c.JSON(http.StatusOK, dto.NewLicenseResponse(updatedLicense, h.service.Now()))
}

func (h *LicenseHandler) Revoke(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	lic, deactivated, err := h.activations.Revoke(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.logger.Info("License revoked via handler", zap.String("id", id.String()), zap.String("actor", middleware.Actor(c)))

	c.JSON(http.StatusOK, dto.RevokeLicenseResponse{
		License:            dto.NewLicenseResponse(lic, h.activations.Now()),
		DeactivatedDevices: deactivated,
	})
}

func (h *LicenseHandler) Renew(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.RenewLicenseRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Warn("Failed to bind renew request body", zap.String("id", id.String()), zap.Error(err))
			_ = c.Error(bindingError(err))
			return
		}
	}

	lic, err := h.activations.Renew(c.Request.Context(), id, req.Months)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.logger.Info("License renewed via handler", zap.String("id", id.String()), zap.String("actor", middleware.Actor(c)))

	c.JSON(http.StatusOK, dto.NewLicenseResponse(lic, h.activations.Now()))
}

func (h *LicenseHandler) DeactivateDevice(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	act, lic, err := h.activations.DeactivateDevice(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.logger.Info("Device deactivated via handler", zap.String("activation_id", id.String()), zap.String("actor", middleware.Actor(c)))

	c.JSON(http.StatusOK, dto.DeactivateDeviceResponse{
		Activation:       dto.NewActivationInfo(act),
		ActivatedDevices: lic.ActivatedDevices,
	})
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		_ = c.Error(fmt.Errorf("%w: invalid %s format", ierr.ErrValidation, name))
		return uuid.Nil, false
	}
	return id, true
}

// bindingError keeps validator errors intact for per-field details and marks
// everything else (malformed JSON, bad query types) as a validation failure.
func bindingError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return err
	}
	return fmt.Errorf("%w: %v", ierr.ErrValidation, err)
}
