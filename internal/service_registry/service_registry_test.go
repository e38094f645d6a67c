package service_registry_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/mdm-poller/internal/mocks"
	"github.com/benmeehan/mdm-poller/internal/service_registry"
	"github.com/benmeehan/mdm-poller/internal/services"
	"github.com/benmeehan/mdm-poller/internal/utils"
)

type fakeService struct {
	mock.Mock
	name  string
	calls *[]string
}

func (f *fakeService) Start() error {
	*f.calls = append(*f.calls, "start "+f.name)
	return f.Called().Error(0)
}

func (f *fakeService) Stop() error {
	*f.calls = append(*f.calls, "stop "+f.name)
	return f.Called().Error(0)
}

func newFake(name string, calls *[]string) *fakeService {
	return &fakeService{name: name, calls: calls}
}

func TestServiceRegistry_StartAndStopOrder(t *testing.T) {
	var calls []string
	a, b := newFake("a", &calls), newFake("b", &calls)
	a.On("Start").Return(nil)
	a.On("Stop").Return(nil)
	b.On("Start").Return(nil)
	b.On("Stop").Return(nil)

	sr := service_registry.NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("a", a)
	sr.RegisterService("b", b)
	sr.RegisterService("a", newFake("duplicate", &calls))

	require.NoError(t, sr.StartServices())
	require.NoError(t, sr.StopServices())

	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, calls)
}

func TestServiceRegistry_StartFailureRollsBack(t *testing.T) {
	var calls []string
	a, b, c := newFake("a", &calls), newFake("b", &calls), newFake("c", &calls)
	a.On("Start").Return(nil)
	a.On("Stop").Return(nil)
	b.On("Start").Return(errors.New("address in use"))

	sr := service_registry.NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("a", a)
	sr.RegisterService("b", b)
	sr.RegisterService("c", c)

	err := sr.StartServices()
	assert.ErrorContains(t, err, "failed to start b")
	assert.Equal(t, []string{"start a", "start b", "stop a"}, calls)
	c.AssertNotCalled(t, "Start")
}

func TestServiceRegistry_StopCollectsErrors(t *testing.T) {
	var calls []string
	a, b := newFake("a", &calls), newFake("b", &calls)
	stopErr := errors.New("stuck")
	a.On("Stop").Return(stopErr)
	b.On("Stop").Return(nil)

	sr := service_registry.NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("a", a)
	sr.RegisterService("b", b)

	err := sr.StopServices()
	assert.ErrorIs(t, err, stopErr)
	assert.Equal(t, []string{"stop b", "stop a"}, calls)
}

func testDeps() service_registry.Dependencies {
	return service_registry.Dependencies{
		Fetcher:   new(mocks.LocationFetcher),
		Requester: new(mocks.UpdateRequester),
		Store:     new(mocks.LocationStore),
		Gatherer:  prometheus.NewRegistry(),
	}
}

func TestRegisterServices_MetricsDisabled(t *testing.T) {
	config := utils.DefaultConfig()
	config.Poll.Interval = time.Hour

	sr := service_registry.NewServiceRegistry(zerolog.Nop())
	require.NoError(t, sr.RegisterServices(config, testDeps()))

	_, ok := sr.Get("metrics")
	assert.False(t, ok)

	svc, ok := sr.Get("location_poll")
	require.True(t, ok)
	assert.IsType(t, &services.LocationPollService{}, svc)
}

func TestRegisterServices_MetricsEnabled(t *testing.T) {
	config := utils.DefaultConfig()
	config.Metrics.Port = "9100"

	sr := service_registry.NewServiceRegistry(zerolog.Nop())
	require.NoError(t, sr.RegisterServices(config, testDeps()))

	svc, ok := sr.Get("metrics")
	require.True(t, ok)
	assert.IsType(t, &services.MetricsService{}, svc)
}

func TestRegisterServices_MissingDependencies(t *testing.T) {
	config := utils.DefaultConfig()

	deps := testDeps()
	deps.Store = nil
	err := service_registry.NewServiceRegistry(zerolog.Nop()).RegisterServices(config, deps)
	assert.Error(t, err)

	config.Metrics.Port = "9100"
	deps = testDeps()
	deps.Gatherer = nil
	err = service_registry.NewServiceRegistry(zerolog.Nop()).RegisterServices(config, deps)
	assert.EqualError(t, err, "metrics enabled without a gatherer")
}
