package ports

// Fields carries structured context attached to an observation.
type Fields map[string]any

// Observer receives operational events from the graph services.
// It decouples business logic from any specific logging or telemetry backend.
type Observer interface {
	// Info records a notable, successful event.
	Info(msg string, fields Fields)

	// Error records a failure. Read paths report degraded results here
	// instead of returning the error to their caller.
	Error(msg string, err error, fields Fields)
}
