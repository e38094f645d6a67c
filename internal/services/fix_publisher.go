package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/mdm-poller/internal/constants"
	"github.com/benmeehan/mdm-poller/internal/models"
	"github.com/benmeehan/mdm-poller/pkg/mqtt"
)

// FixPublisher forwards stored fixes to downstream consumers.
type FixPublisher interface {
	PublishFix(location models.DeviceLocation) error
}

// MQTTFixPublisher publishes every stored fix as JSON to an MQTT topic.
type MQTTFixPublisher struct {
	topic      string
	qos        int
	mqttClient mqtt.MQTTClient
	logger     zerolog.Logger
	now        func() time.Time
}

// NewMQTTFixPublisher creates a publisher for topic.
func NewMQTTFixPublisher(topic string, qos int, mqttClient mqtt.MQTTClient, logger zerolog.Logger) *MQTTFixPublisher {
	return &MQTTFixPublisher{
		topic:      topic,
		qos:        qos,
		mqttClient: mqttClient,
		logger:     logger,
		now:        time.Now,
	}
}

// PublishFix serializes the fix and waits up to PublishTimeout for the broker.
func (p *MQTTFixPublisher) PublishFix(location models.DeviceLocation) error {
	message := models.LocationMessage{
		DeviceID:          location.DeviceID,
		DeviceName:        location.DeviceName,
		Latitude:          location.Latitude.Round(models.CoordinateScale),
		Longitude:         location.Longitude.Round(models.CoordinateScale),
		Accuracy:          location.Accuracy,
		LocationUpdatedAt: location.LocationUpdatedAt,
		FetchedAt:         p.now().UTC(),
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to serialize location message: %w", err)
	}

	token := p.mqttClient.Publish(p.topic, byte(p.qos), false, payload)
	if !token.WaitTimeout(constants.PublishTimeout) {
		return fmt.Errorf("timed out publishing location to %s", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish location to %s: %w", p.topic, err)
	}

	p.logger.Debug().
		Str("device_id", location.DeviceID).
		Str("topic", p.topic).
		Msg("Location published successfully")
	return nil
}
