package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/device-license-service/internal/domain/company"
	"github.com/makkenzo/device-license-service/internal/domain/license"
)

// ActivateRequest is sent by the installer and offline clients.
type ActivateRequest struct {
	LicenseKey         string `json:"licenseKey" binding:"required"`
	MachineFingerprint string `json:"machineFingerprint" binding:"required,max=64"`
	MachineName        string `json:"machineName" binding:"max=255"`
	OSInfo             string `json:"osInfo" binding:"max=255"`
}

type CompanySnapshot struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Username        string          `json:"username"`
	PasswordHash    string          `json:"passwordHash"`
	Phone           string          `json:"phone,omitempty"`
	Address         string          `json:"address,omitempty"`
	LogoURL         string          `json:"logoUrl,omitempty"`
	CurrencySymbol  string          `json:"currencySymbol,omitempty"`
	PagePermissions json.RawMessage `json:"pagePermissions,omitempty"`
}

func NewCompanySnapshot(c *company.Company) CompanySnapshot {
	return CompanySnapshot{
		ID:              c.ID,
		Name:            c.Name,
		Username:        c.Username,
		PasswordHash:    c.PasswordHash,
		Phone:           c.Phone.String,
		Address:         c.Address.String,
		LogoURL:         c.LogoURL.String,
		CurrencySymbol:  c.CurrencySymbol.String,
		PagePermissions: c.PagePermissions,
	}
}

type ActivateResponse struct {
	Success         bool                `json:"success"`
	ActivationID    uuid.UUID           `json:"activationId"`
	LicenseKey      string              `json:"licenseKey"`
	LicenseType     license.LicenseType `json:"licenseType"`
	ExpiresAt       time.Time           `json:"expiresAt"`
	DaysUntilExpiry int                 `json:"daysUntilExpiry"`
	GracePeriodDays int                 `json:"gracePeriodDays"`
	GraceState      license.GraceState  `json:"graceState"`
	Features        string              `json:"features,omitempty"`
	Company         CompanySnapshot     `json:"company"`
}

type DeactivateDeviceResponse struct {
	Activation       ActivationInfo `json:"activation"`
	ActivatedDevices int            `json:"activated_devices"`
}
