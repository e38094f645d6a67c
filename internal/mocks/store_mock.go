package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/benmeehan/mdm-poller/internal/models"
)

// LocationStore is a mock implementation of the store.LocationStoreInterface interface
type LocationStore struct {
	mock.Mock
}

func (m *LocationStore) EnsureSchema(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *LocationStore) Upsert(ctx context.Context, location models.DeviceLocation) error {
	args := m.Called(ctx, location)
	return args.Error(0)
}

func (m *LocationStore) Get(ctx context.Context, deviceID string) (*models.PersistedLocation, error) {
	args := m.Called(ctx, deviceID)
	row, _ := args.Get(0).(*models.PersistedLocation)
	return row, args.Error(1)
}

func (m *LocationStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// FixPublisher is a mock implementation of the services.FixPublisher interface
type FixPublisher struct {
	mock.Mock
}

func (m *FixPublisher) PublishFix(location models.DeviceLocation) error {
	args := m.Called(location)
	return args.Error(0)
}
