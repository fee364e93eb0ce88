// Package credential is the Credential Store Adapter: it owns the Device
// relational record and the api_key credential lifecycle backed by Postgres.
package credential

import "time"

// AdminStatus is the device lifecycle state set by admin operations.
type AdminStatus string

const (
	StatusActive      AdminStatus = "active"
	StatusInactive    AdminStatus = "inactive"
	StatusMaintenance AdminStatus = "maintenance"
)

// Device is the persisted device record.
type Device struct {
	ID              int64
	Name            string
	DeviceType      string
	Description     string
	Location        string
	FirmwareVersion string
	HardwareVersion string
	APIKey          string
	AdminStatus     AdminStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastSeen        *time.Time
}

// RegisterParams holds the fields accepted at registration time.
type RegisterParams struct {
	Name            string
	DeviceType      string
	Description     string
	Location        string
	FirmwareVersion string
	HardwareVersion string
}

// ConfigUpdate holds the fields an owning device may update about itself.
// Nil fields are left unchanged; a non-nil pointer to "" clears the field.
type ConfigUpdate struct {
	Location        *string
	FirmwareVersion *string
	Description     *string
}
