package mdm

import (
	"context"

	"github.com/benmeehan/mdm-poller/internal/models"
)

// LocationFetcher reads the last-known fix of a device from the MDM vendor.
type LocationFetcher interface {
	GetDeviceLocation(ctx context.Context, deviceID string) (*models.DeviceLocation, error)
}

// UpdateRequester asks the MDM vendor to make a device report a fresh fix.
type UpdateRequester interface {
	RequestLocationUpdate(ctx context.Context, deviceID string) error
}
