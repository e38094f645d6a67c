package services

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/benmeehan/mdm-poller/internal/constants"
)

// MetricsService serves /metrics and /healthz over HTTP.
type MetricsService struct {
	addr     string
	gatherer prometheus.Gatherer
	logger   zerolog.Logger

	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// NewMetricsService initializes and returns a new instance of MetricsService listening on addr.
func NewMetricsService(addr string, gatherer prometheus.Gatherer, logger zerolog.Logger) *MetricsService {
	return &MetricsService{
		addr:     addr,
		gatherer: gatherer,
		logger:   logger,
	}
}

// Start binds the listener and serves in the background. Bind errors are returned.
func (m *MetricsService) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		m.logger.Warn().Msg("MetricsService is already running")
		return errors.New("metrics service is already running")
	}

	listener, err := net.Listen("tcp", m.addr)
	if err != nil {
		m.logger.Error().Err(err).Str("addr", m.addr).Msg("Failed to bind metrics listener")
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	m.listener = listener
	m.server = &http.Server{Handler: mux}

	server := m.server
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	m.logger.Info().Str("addr", listener.Addr().String()).Msg("MetricsService started")
	return nil
}

// Addr returns the bound address, or "" when the service is not running.
func (m *MetricsService) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Stop gracefully shuts down the HTTP server.
func (m *MetricsService) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server == nil {
		m.logger.Warn().Msg("MetricsService is not running")
		return errors.New("metrics service is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	err := m.server.Shutdown(ctx)
	m.wg.Wait()

	m.server = nil
	m.listener = nil

	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to stop MetricsService")
		return err
	}
	m.logger.Info().Msg("MetricsService stopped successfully")
	return nil
}
