package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/benmeehan/mdm-poller/internal/constants"
	"github.com/benmeehan/mdm-poller/internal/metrics_collectors"
	"github.com/benmeehan/mdm-poller/pkg/mdm"
	"github.com/benmeehan/mdm-poller/pkg/store"
)

// DeviceResult is the outcome of polling a single device.
type DeviceResult struct {
	DeviceID   string
	DeviceName string
	Outcome    constants.PollOutcome
	// FetchErr explains why no fix was available, nil when one was.
	FetchErr error
	// Err is the failure of the store or update step, nil on success.
	Err error
}

// CycleReport aggregates the results of one pass over the configured devices.
type CycleReport struct {
	CycleID  string
	Results  []DeviceResult
	Duration time.Duration
}

// Count returns how many devices ended with outcome.
func (r CycleReport) Count(outcome constants.PollOutcome) int {
	n := 0
	for _, result := range r.Results {
		if result.Outcome == outcome {
			n++
		}
	}
	return n
}

// LocationPollService periodically reconciles the stored location of every configured
// device with the MDM vendor. Devices are processed sequentially, in configured order.
type LocationPollService struct {
	// Configuration fields
	deviceIDs []string
	interval  time.Duration

	// Dependencies
	fetcher   mdm.LocationFetcher
	requester mdm.UpdateRequester
	store     store.LocationStoreInterface
	publisher FixPublisher
	metrics   *metrics_collectors.PollMetrics
	logger    zerolog.Logger

	// Internal state management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewLocationPollService creates a new LocationPollService. publisher and metrics may be nil.
func NewLocationPollService(
	deviceIDs []string,
	interval time.Duration,
	fetcher mdm.LocationFetcher,
	requester mdm.UpdateRequester,
	locationStore store.LocationStoreInterface,
	publisher FixPublisher,
	metrics *metrics_collectors.PollMetrics,
	logger zerolog.Logger,
) *LocationPollService {
	return &LocationPollService{
		deviceIDs: deviceIDs,
		interval:  interval,
		fetcher:   fetcher,
		requester: requester,
		store:     locationStore,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// Start launches the poll loop in a separate goroutine.
func (l *LocationPollService) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ctx != nil {
		l.logger.Warn().Msg("LocationPollService is already running")
		return errors.New("location poll service is already running")
	}

	l.ctx, l.cancel = context.WithCancel(context.Background())

	ctx := l.ctx
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_ = l.Run(ctx)
	}()

	l.logger.Info().
		Strs("device_ids", l.deviceIDs).
		Dur("interval", l.interval).
		Msg("LocationPollService started")
	return nil
}

// Stop cancels the poll loop and waits for the current device to finish.
func (l *LocationPollService) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ctx == nil {
		l.logger.Warn().Msg("LocationPollService is not running")
		return errors.New("location poll service is not running")
	}

	l.cancel()
	l.wg.Wait()

	l.ctx = nil
	l.cancel = nil

	l.logger.Info().Msg("LocationPollService stopped")
	return nil
}

// Run polls all devices, sleeps for the interval and repeats until ctx is cancelled.
// The first cycle starts immediately.
func (l *LocationPollService) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.PollOnce(ctx)

		timer := time.NewTimer(l.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.logger.Info().Msg("LocationPollService stopping gracefully")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// PollOnce runs a single cycle over the configured devices. Blank identifiers are
// skipped; a failure for one device never prevents the others from being processed.
func (l *LocationPollService) PollOnce(ctx context.Context) CycleReport {
	start := time.Now()
	report := CycleReport{CycleID: uuid.NewString()}
	logger := l.logger.With().Str("cycle_id", report.CycleID).Logger()

	for _, raw := range l.deviceIDs {
		deviceID := strings.TrimSpace(raw)
		if deviceID == "" {
			continue
		}
		if ctx.Err() != nil {
			logger.Info().Msg("Poll cycle interrupted by shutdown")
			break
		}

		result := l.pollDevice(ctx, logger.With().Str("device_id", deviceID).Logger(), deviceID)
		report.Results = append(report.Results, result)
		l.metrics.RecordOutcome(result.Outcome)
	}

	report.Duration = time.Since(start)
	l.metrics.ObserveCycle(report.Duration, time.Now())

	logger.Info().
		Int("devices", len(report.Results)).
		Int("stored", report.Count(constants.OutcomeStored)).
		Int("store_failed", report.Count(constants.OutcomeStoreFailed)).
		Int("update_requested", report.Count(constants.OutcomeUpdateRequested)).
		Int("update_rejected", report.Count(constants.OutcomeUpdateRejected)).
		Int("update_failed", report.Count(constants.OutcomeUpdateFailed)).
		Dur("duration", report.Duration).
		Msg("Poll cycle completed")

	return report
}

// pollDevice stores the device's fix when one is available and otherwise asks the
// vendor for a fresh one.
func (l *LocationPollService) pollDevice(ctx context.Context, logger zerolog.Logger, deviceID string) DeviceResult {
	location, err := l.fetcher.GetDeviceLocation(ctx, deviceID)
	if err == nil && location == nil {
		err = mdm.ErrNoFix
	}
	if err != nil {
		if errors.Is(err, mdm.ErrNoFix) {
			logger.Warn().Err(err).Msg("Location not available from MDM")
		} else {
			logger.Error().Err(err).Msg("Failed to fetch location from MDM")
		}
		return l.requestUpdate(ctx, logger, deviceID, err)
	}

	logger = logger.With().Str("device_name", location.DeviceName).Logger()
	event := logger.Info().
		Stringer("latitude", location.Latitude).
		Stringer("longitude", location.Longitude)
	if location.Accuracy != nil {
		event = event.Int("accuracy", *location.Accuracy)
	}
	event.Msg("Got location")

	result := DeviceResult{DeviceID: deviceID, DeviceName: location.DeviceName}

	if err := l.store.Upsert(ctx, *location); err != nil {
		logger.Error().Err(err).Msg("Failed to store location")
		result.Outcome = constants.OutcomeStoreFailed
		result.Err = err
		return result
	}
	logger.Info().Msg("Stored location in database")
	result.Outcome = constants.OutcomeStored

	if l.publisher != nil {
		if err := l.publisher.PublishFix(*location); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish location")
		}
	}

	return result
}

// requestUpdate issues a best-effort update request. The vendor's answer is only logged.
func (l *LocationPollService) requestUpdate(ctx context.Context, logger zerolog.Logger, deviceID string, fetchErr error) DeviceResult {
	result := DeviceResult{DeviceID: deviceID, DeviceName: deviceID, FetchErr: fetchErr}

	err := l.requester.RequestLocationUpdate(ctx, deviceID)

	var statusErr *mdm.StatusError
	switch {
	case err == nil:
		logger.Info().Msg("Requested location update from device")
		result.Outcome = constants.OutcomeUpdateRequested
	case errors.As(err, &statusErr):
		logger.Warn().Int("status", statusErr.StatusCode).Msg("Location update request was not accepted")
		result.Outcome = constants.OutcomeUpdateRejected
		result.Err = err
	default:
		logger.Error().Err(err).Msg("Failed to request location update")
		result.Outcome = constants.OutcomeUpdateFailed
		result.Err = err
	}

	return result
}
