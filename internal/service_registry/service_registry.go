package service_registry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/benmeehan/mdm-poller/internal/metrics_collectors"
	"github.com/benmeehan/mdm-poller/internal/registry"
	"github.com/benmeehan/mdm-poller/internal/services"
	"github.com/benmeehan/mdm-poller/internal/utils"
	"github.com/benmeehan/mdm-poller/pkg/mdm"
	"github.com/benmeehan/mdm-poller/pkg/store"
)

// Dependencies are the shared clients handed to service constructors.
type Dependencies struct {
	Fetcher     mdm.LocationFetcher
	Requester   mdm.UpdateRequester
	Store       store.LocationStoreInterface
	Publisher   services.FixPublisher // nil disables publishing
	PollMetrics *metrics_collectors.PollMetrics
	Gatherer    prometheus.Gatherer
}

// ServiceRegistry manages the lifecycle of the long-running services.
type ServiceRegistry struct {
	services    map[string]registry.Service // Stores registered services
	serviceKeys []string                    // Maintains order of service registration
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new, empty service registry.
func NewServiceRegistry(logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]registry.Service),
		Logger:   logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Get returns the registered service called name.
func (sr *ServiceRegistry) Get(name string) (registry.Service, bool) {
	svc, ok := sr.services[name]
	return svc, ok
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on configuration.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, deps Dependencies) error {
	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (registry.Service, error)
	}{
		{
			name:    "metrics",
			enabled: config.Metrics.Port != "",
			constructor: func() (registry.Service, error) {
				if deps.Gatherer == nil {
					return nil, errors.New("metrics enabled without a gatherer")
				}
				return services.NewMetricsService(
					":"+config.Metrics.Port,
					deps.Gatherer,
					sr.Logger.With().Str("service", "metrics").Logger(),
				), nil
			},
		},
		{
			name:    "location_poll",
			enabled: true,
			constructor: func() (registry.Service, error) {
				if deps.Fetcher == nil || deps.Requester == nil || deps.Store == nil {
					return nil, errors.New("location poll requires a fetcher, a requester and a store")
				}
				return services.NewLocationPollService(
					config.MDM.DeviceIDs,
					config.Poll.Interval,
					deps.Fetcher,
					deps.Requester,
					deps.Store,
					deps.Publisher,
					deps.PollMetrics,
					sr.Logger.With().Str("service", "location_poll").Logger(),
				), nil
			},
		},
	}

	// Register services in the predefined order
	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}
