package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/benmeehan/mdm-poller/internal/constants"
	"github.com/benmeehan/mdm-poller/internal/metrics_collectors"
	"github.com/benmeehan/mdm-poller/internal/service_registry"
	"github.com/benmeehan/mdm-poller/internal/services"
	"github.com/benmeehan/mdm-poller/internal/utils"
	"github.com/benmeehan/mdm-poller/pkg/file"
	"github.com/benmeehan/mdm-poller/pkg/mdm"
	"github.com/benmeehan/mdm-poller/pkg/mqtt"
	"github.com/benmeehan/mdm-poller/pkg/store"
)

// storeOpener connects to the location store.
type storeOpener func(dsn string, logger zerolog.Logger) (store.LocationStoreInterface, error)

func openPostgresStore(dsn string, logger zerolog.Logger) (store.LocationStoreInterface, error) {
	return store.Open(dsn, logger)
}

func main() {
	// Structured JSON logging to stdout
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	fileClient := file.NewFileService()

	config, err := utils.LoadConfig(os.Getenv("CONFIG_FILE"), fileClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(config.Log.Level)
	if err != nil {
		log.Warn().Err(err).Str("level", config.Log.Level).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	log = log.Level(level)

	log.Info().
		Strs("device_ids", config.MDM.DeviceIDs).
		Dur("poll_interval", config.Poll.Interval).
		Str("database", fmt.Sprintf("%s:%s/%s", config.Postgres.Host, config.Postgres.Port, config.Postgres.DB)).
		Msg("Starting MDM location polling")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, fileClient, openPostgresStore, log); err != nil {
		stop()
		log.Fatal().Err(err).Msg("MDM location poller failed")
	}

	log.Info().Msg("MDM location poller stopped")
}

// run wires the components, ensures the schema and blocks until ctx is cancelled.
// Any error returned happens before the poll loop starts or while stopping it.
func run(ctx context.Context, config *utils.Config, fileClient file.FileOperations, openStore storeOpener, log zerolog.Logger) error {
	locationStore, err := openStore(config.PostgresDSN(), log.With().Str("component", "store").Logger())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := locationStore.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database pool")
		}
	}()

	if err := locationStore.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	mdmClient := mdm.NewClient(config.MDM.BaseURL, config.MDM.APIKey, config.MDM.Timeout,
		log.With().Str("component", "mdm").Logger())

	var publisher services.FixPublisher
	if config.MQTT.Broker != "" {
		// Unique client ID per process so restarts do not kick each other off the broker
		clientID := config.MQTT.ClientID + "-" + uuid.New().String()

		mqttClient := mqtt.NewMqttService(fileClient)
		if err := mqttClient.Initialize(config.MQTT.Broker, clientID, config.MQTT.CACertificate); err != nil {
			return fmt.Errorf("failed to initialize MQTT connection: %w", err)
		}
		defer mqttClient.Disconnect(constants.MQTTDisconnectQuiesce)

		log.Info().Str("broker", config.MQTT.Broker).Str("client_id", clientID).Msg("Publishing stored fixes over MQTT")
		publisher = services.NewMQTTFixPublisher(config.MQTT.Topic, config.MQTT.QOS, mqttClient,
			log.With().Str("component", "mqtt").Logger())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	serviceRegistry := service_registry.NewServiceRegistry(log)
	err = serviceRegistry.RegisterServices(config, service_registry.Dependencies{
		Fetcher:     mdmClient,
		Requester:   mdmClient,
		Store:       locationStore,
		Publisher:   publisher,
		PollMetrics: metrics_collectors.NewPollMetrics(reg),
		Gatherer:    reg,
	})
	if err != nil {
		return err
	}

	if err := serviceRegistry.StartServices(); err != nil {
		return err
	}
	log.Info().Msg("All services started successfully")

	<-ctx.Done()

	log.Info().Msg("Shutting down gracefully...")
	return serviceRegistry.StopServices()
}
