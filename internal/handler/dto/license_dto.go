package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/device-license-service/internal/domain/license"
)

type CreateLicenseRequest struct {
	CompanyID       uuid.UUID  `json:"company_id" binding:"required"`
	LicenseType     *string    `json:"license_type" binding:"omitempty,oneof=offline online"`
	MaxDevices      *int       `json:"max_devices" binding:"omitempty,gte=1"`
	ExpiresAt       *time.Time `json:"expires_at" binding:"omitempty"`
	TermMonths      *int       `json:"term_months" binding:"omitempty,gte=1"`
	GracePeriodDays *int       `json:"grace_period_days" binding:"omitempty,gte=0,lte=3650"`
	Features        *string    `json:"features"`
	Notes           *string    `json:"notes"`
}

type LicenseResponse struct {
	ID                uuid.UUID             `json:"id"`
	LicenseKey        string                `json:"license_key"`
	CompanyID         uuid.UUID             `json:"company_id"`
	LicenseType       license.LicenseType   `json:"license_type"`
	Status            license.LicenseStatus `json:"status"`
	GraceState        license.GraceState    `json:"grace_state"`
	MaxDevices        int                   `json:"max_devices"`
	ActivatedDevices  int                   `json:"activated_devices"`
	ActiveActivations *int                  `json:"active_activations,omitempty"`
	IssuedAt          time.Time             `json:"issued_at"`
	ExpiresAt         time.Time             `json:"expires_at"`
	DaysUntilExpiry   int                   `json:"days_until_expiry"`
	GracePeriodDays   int                   `json:"grace_period_days"`
	Features          *string               `json:"features,omitempty"`
	Notes             *string               `json:"notes,omitempty"`
	LastCheckIn       *time.Time            `json:"last_check_in,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// NewLicenseResponse renders a license together with its grace state at now.
func NewLicenseResponse(lic *license.License, now time.Time) *LicenseResponse {
	resp := &LicenseResponse{
		ID:               lic.ID,
		LicenseKey:       lic.LicenseKey,
		CompanyID:        lic.CompanyID,
		LicenseType:      lic.Type,
		Status:           lic.Status,
		GraceState:       lic.GraceState(now),
		MaxDevices:       lic.MaxDevices,
		ActivatedDevices: lic.ActivatedDevices,
		IssuedAt:         lic.IssuedAt,
		ExpiresAt:        lic.ExpiresAt,
		DaysUntilExpiry:  license.DaysUntilExpiry(now, lic.ExpiresAt),
		GracePeriodDays:  lic.GracePeriodDays,
		CreatedAt:        lic.CreatedAt,
		UpdatedAt:        lic.UpdatedAt,
	}
	if lic.Features.Valid {
		resp.Features = &lic.Features.String
	}
	if lic.Notes.Valid {
		resp.Notes = &lic.Notes.String
	}
	if lic.LastCheckIn.Valid {
		resp.LastCheckIn = &lic.LastCheckIn.Time
	}
	return resp
}

func NewLicenseSummaryResponse(s *license.Summary, now time.Time) *LicenseResponse {
	resp := NewLicenseResponse(&s.License, now)
	count := s.ActiveActivations
	resp.ActiveActivations = &count
	return resp
}

type ActivationInfo struct {
	ID                 uuid.UUID  `json:"id"`
	MachineFingerprint string     `json:"machine_fingerprint"`
	MachineName        *string    `json:"machine_name,omitempty"`
	OSInfo             *string    `json:"os_info,omitempty"`
	IPAddress          *string    `json:"ip_address,omitempty"`
	IsActive           bool       `json:"is_active"`
	ActivatedAt        time.Time  `json:"activated_at"`
	LastSeen           time.Time  `json:"last_seen"`
	DeactivatedAt      *time.Time `json:"deactivated_at,omitempty"`
}

func NewActivationInfo(a *license.Activation) ActivationInfo {
	info := ActivationInfo{
		ID:                 a.ID,
		MachineFingerprint: a.MachineFingerprint,
		IsActive:           a.IsActive,
		ActivatedAt:        a.ActivatedAt,
		LastSeen:           a.LastSeen,
	}
	if a.MachineName.Valid {
		info.MachineName = &a.MachineName.String
	}
	if a.OSInfo.Valid {
		info.OSInfo = &a.OSInfo.String
	}
	if a.IPAddress.Valid {
		info.IPAddress = &a.IPAddress.String
	}
	if a.DeactivatedAt.Valid {
		info.DeactivatedAt = &a.DeactivatedAt.Time
	}
	return info
}

type LicenseDetailResponse struct {
	*LicenseResponse
	Activations []ActivationInfo `json:"activations"`
}

type ListLicensesRequest struct {
	CompanyID string                 `form:"company_id" binding:"omitempty,uuid"`
	Status    *license.LicenseStatus `form:"status" binding:"omitempty,oneof=active revoked"`
	Limit     int                    `form:"limit,default=20" binding:"omitempty,gte=0,lte=500"`
	Offset    int                    `form:"offset,default=0" binding:"omitempty,gte=0"`
}

type PaginatedLicenseResponse struct {
	Licenses   []*LicenseResponse `json:"licenses"`
	TotalCount int64              `json:"totalCount"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}

// UpdateLicenseRequest carries only the fields an administrator supplied.
type UpdateLicenseRequest struct {
	MaxDevices      *int                   `json:"max_devices" binding:"omitempty,gte=1"`
	GracePeriodDays *int                   `json:"grace_period_days" binding:"omitempty,gte=0,lte=3650"`
	Features        *string                `json:"features"`
	Notes           *string                `json:"notes"`
	Status          *license.LicenseStatus `json:"status" binding:"omitempty,oneof=active revoked"`
	ExpiresAt       *time.Time             `json:"expires_at"`
}

type RenewLicenseRequest struct {
	Months int `json:"months" binding:"omitempty,gte=0,lte=120"`
}

type RevokeLicenseResponse struct {
	License            *LicenseResponse `json:"license"`
	DeactivatedDevices int64            `json:"deactivated_devices"`
}
