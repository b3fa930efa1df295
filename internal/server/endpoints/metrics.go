package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/metrics"
)

// MetricsEndpoint handles GET /metrics with Prometheus text exposition.
type MetricsEndpoint struct{}

var _ api.Endpoint = (*MetricsEndpoint)(nil)

func (e *MetricsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/metrics", metrics.Handler().ServeHTTP
}

func (e *MetricsEndpoint) RequiresInit() bool { return false }

// Scrape targets hit this over HTTP; there is no CLI verb for it.
func (e *MetricsEndpoint) Command(_ func() string) *cobra.Command {
	return nil
}
