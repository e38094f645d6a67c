package registry

// Service is a long-running component started after schema setup and stopped on shutdown.
// Start must not block; Stop waits for background work to finish.
type Service interface {
	Start() error
	Stop() error
}
