package constants

import "time"

// PollOutcome is the terminal state of one device within a poll cycle.
type PollOutcome string

const (
	// OutcomeStored indicates the fix was fetched and upserted
	OutcomeStored PollOutcome = "stored"
	// OutcomeStoreFailed indicates the fix was fetched but the upsert failed
	OutcomeStoreFailed PollOutcome = "store_failed"
	// OutcomeUpdateRequested indicates no fix was available and the vendor accepted an update request
	OutcomeUpdateRequested PollOutcome = "update_requested"
	// OutcomeUpdateRejected indicates the vendor answered the update request with a status other than 202
	OutcomeUpdateRejected PollOutcome = "update_rejected"
	// OutcomeUpdateFailed indicates the update request itself could not be sent
	OutcomeUpdateFailed PollOutcome = "update_failed"
)

// AllOutcomes lists every outcome, used to pre-populate metric label sets.
var AllOutcomes = []PollOutcome{
	OutcomeStored,
	OutcomeStoreFailed,
	OutcomeUpdateRequested,
	OutcomeUpdateRejected,
	OutcomeUpdateFailed,
}

const (
	// PublishTimeout bounds how long a fix publish may wait for the broker.
	PublishTimeout = 5 * time.Second

	// ShutdownTimeout bounds the metrics server shutdown.
	ShutdownTimeout = 5 * time.Second

	// MQTTDisconnectQuiesce is the time in milliseconds given to in-flight MQTT work on shutdown.
	MQTTDisconnectQuiesce = 250
)
