package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CoordinateScale is the number of fractional digits kept for stored coordinates.
const CoordinateScale = 8

// DeviceLocation is the last-known fix reported by the MDM vendor for one device.
type DeviceLocation struct {
	DeviceID          string          `json:"device_id"`
	DeviceName        string          `json:"device_name"`
	Latitude          decimal.Decimal `json:"latitude"`
	Longitude         decimal.Decimal `json:"longitude"`
	Accuracy          *int            `json:"accuracy,omitempty"` // meters
	LocationUpdatedAt *time.Time      `json:"location_updated_at,omitempty"`
}

// PersistedLocation is the single row kept per device in device_locations.
type PersistedLocation struct {
	ID                uint            `gorm:"primaryKey"`
	DeviceID          string          `gorm:"type:varchar(255);not null;uniqueIndex:uni_device_locations_device_id;index:idx_device_locations_device_id"`
	Latitude          decimal.Decimal `gorm:"type:decimal(10,8);not null"`
	Longitude         decimal.Decimal `gorm:"type:decimal(11,8);not null"`
	Accuracy          *int
	LocationUpdatedAt *time.Time
	FetchedAt         time.Time `gorm:"not null"`
}

// TableName specifies the table name for PersistedLocation.
func (PersistedLocation) TableName() string {
	return "device_locations"
}

// NewPersistedLocation converts a fetched fix into its stored form, rounding the
// coordinates to the column precision.
func NewPersistedLocation(location DeviceLocation, fetchedAt time.Time) PersistedLocation {
	return PersistedLocation{
		DeviceID:          location.DeviceID,
		Latitude:          location.Latitude.Round(CoordinateScale),
		Longitude:         location.Longitude.Round(CoordinateScale),
		Accuracy:          location.Accuracy,
		LocationUpdatedAt: location.LocationUpdatedAt,
		FetchedAt:         fetchedAt,
	}
}

// LocationMessage is the payload published for every stored fix.
type LocationMessage struct {
	DeviceID          string          `json:"device_id"`
	DeviceName        string          `json:"device_name"`
	Latitude          decimal.Decimal `json:"latitude"`
	Longitude         decimal.Decimal `json:"longitude"`
	Accuracy          *int            `json:"accuracy"`
	LocationUpdatedAt *time.Time      `json:"location_updated_at"`
	FetchedAt         time.Time       `json:"fetched_at"`
}
