package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/benmeehan/mdm-poller/internal/models"
)

// LocationFetcher is a mock implementation of the mdm.LocationFetcher interface
type LocationFetcher struct {
	mock.Mock
}

func (m *LocationFetcher) GetDeviceLocation(ctx context.Context, deviceID string) (*models.DeviceLocation, error) {
	args := m.Called(ctx, deviceID)
	location, _ := args.Get(0).(*models.DeviceLocation)
	return location, args.Error(1)
}

// UpdateRequester is a mock implementation of the mdm.UpdateRequester interface
type UpdateRequester struct {
	mock.Mock
}

func (m *UpdateRequester) RequestLocationUpdate(ctx context.Context, deviceID string) error {
	args := m.Called(ctx, deviceID)
	return args.Error(0)
}
