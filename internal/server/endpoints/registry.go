package endpoints

import (
	"github.com/jackzampolin/folio/internal/api"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	SwaggerSpecPath string
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// OCR pipeline
		&SubmitEndpoint{},
		&JobStatusEndpoint{},
		&JobResultEndpoint{},

		// Job management
		&ListJobsEndpoint{},
		&DeleteJobEndpoint{},

		// Operational
		&HealthEndpoint{},
		&MetricsEndpoint{},
		&SwaggerEndpoint{SpecPath: cfg.SwaggerSpecPath},
	}
}
