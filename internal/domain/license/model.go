package license

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// LicenseStatus is the persisted lifecycle state. Expiry is never stored; see Classify.
type LicenseStatus string

const (
	StatusActive  LicenseStatus = "active"
	StatusRevoked LicenseStatus = "revoked"
)

func (s LicenseStatus) Valid() bool {
	return s == StatusActive || s == StatusRevoked
}

type LicenseType string

const (
	TypeOffline LicenseType = "offline"
	TypeOnline  LicenseType = "online"
)

func (t LicenseType) Valid() bool {
	return t == TypeOffline || t == TypeOnline
}

type License struct {
	ID               uuid.UUID      `db:"id" json:"id"`
	LicenseKey       string         `db:"license_key" json:"license_key"`
	CompanyID        uuid.UUID      `db:"company_id" json:"company_id"`
	Type             LicenseType    `db:"license_type" json:"license_type"`
	Status           LicenseStatus  `db:"status" json:"status"`
	MaxDevices       int            `db:"max_devices" json:"max_devices"`
	ActivatedDevices int            `db:"activated_devices" json:"activated_devices"`
	IssuedAt         time.Time      `db:"issued_at" json:"issued_at"`
	ExpiresAt        time.Time      `db:"expires_at" json:"expires_at"`
	GracePeriodDays  int            `db:"grace_period_days" json:"grace_period_days"`
	Features         sql.NullString `db:"features" json:"features,omitempty"`
	Notes            sql.NullString `db:"notes" json:"notes,omitempty"`
	LastCheckIn      sql.NullTime   `db:"last_check_in" json:"last_check_in,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// HasFreeSlot reports whether one more device may be bound.
func (l *License) HasFreeSlot() bool {
	return l.ActivatedDevices < l.MaxDevices
}

// ReleaseSlot decrements the device counter, never below zero.
func (l *License) ReleaseSlot() {
	if l.ActivatedDevices > 0 {
		l.ActivatedDevices--
	}
}

type Activation struct {
	ID                 uuid.UUID      `db:"id" json:"id"`
	LicenseID          uuid.UUID      `db:"license_id" json:"license_id"`
	MachineFingerprint string         `db:"machine_fingerprint" json:"machine_fingerprint"`
	MachineName        sql.NullString `db:"machine_name" json:"machine_name,omitempty"`
	OSInfo             sql.NullString `db:"os_info" json:"os_info,omitempty"`
	IPAddress          sql.NullString `db:"ip_address" json:"ip_address,omitempty"`
	IsActive           bool           `db:"is_active" json:"is_active"`
	ActivatedAt        time.Time      `db:"activated_at" json:"activated_at"`
	LastSeen           time.Time      `db:"last_seen" json:"last_seen"`
	DeactivatedAt      sql.NullTime   `db:"deactivated_at" json:"deactivated_at,omitempty"`
}

// Summary is a license row as shown in admin listings.
type Summary struct {
	License
	ActiveActivations int `db:"active_activations" json:"active_activations"`
}

func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
