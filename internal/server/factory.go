package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matheuscscp/oauth2-flow-coordinator/internal/config"
)

// New builds the control API server for the given coordinator.
func New(conf *config.Config, c Coordinator) *http.Server {
	api := newAPI(c)
	return newServer(conf, api, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}
