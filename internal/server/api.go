// Package server exposes the flow coordinator over a local HTTP control
// API. The desktop application is the only intended client; the listener
// binds loopback by default.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/matheuscscp/oauth2-flow-coordinator/internal/flows"
	"github.com/matheuscscp/oauth2-flow-coordinator/internal/logging"
	"github.com/matheuscscp/oauth2-flow-coordinator/internal/registry"
)

const (
	pathProviderFlow = "/v1/providers/{id}/flow"
	pathServerFlow   = "/v1/servers/{id}/flow"
)

// Coordinator is the flow facade consumed by the API.
type Coordinator interface {
	StartProviderFlow(ctx context.Context, providerID string) (*flows.ProviderFlowStart, error)
	StartServerFlow(ctx context.Context, serverID string) (*flows.ServerFlowStart, error)
	Poll(target registry.Target) (registry.Status, error)
	Cancel(target registry.Target)
}

func newAPI(c Coordinator) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+pathProviderFlow, func(w http.ResponseWriter, r *http.Request) {
		start, err := c.StartProviderFlow(r.Context(), r.PathValue("id"))
		if err != nil {
			respondStartError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, start)
	})

	mux.HandleFunc("POST "+pathServerFlow, func(w http.ResponseWriter, r *http.Request) {
		start, err := c.StartServerFlow(r.Context(), r.PathValue("id"))
		if err != nil {
			respondStartError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, start)
	})

	mux.HandleFunc("GET "+pathProviderFlow, func(w http.ResponseWriter, r *http.Request) {
		pollFlow(w, r, c, registry.KindProvider)
	})

	mux.HandleFunc("GET "+pathServerFlow, func(w http.ResponseWriter, r *http.Request) {
		pollFlow(w, r, c, registry.KindMCPServer)
	})

	mux.HandleFunc("DELETE "+pathProviderFlow, func(w http.ResponseWriter, r *http.Request) {
		c.Cancel(registry.Target{Kind: registry.KindProvider, ID: r.PathValue("id")})
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("DELETE "+pathServerFlow, func(w http.ResponseWriter, r *http.Request) {
		c.Cancel(registry.Target{Kind: registry.KindMCPServer, ID: r.PathValue("id")})
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func pollFlow(w http.ResponseWriter, r *http.Request, c Coordinator, kind registry.Kind) {
	status, err := c.Poll(registry.Target{Kind: kind, ID: r.PathValue("id")})
	if err != nil {
		respondError(w, r, http.StatusNotFound, err)
		return
	}
	respondJSON(w, r, http.StatusOK, status)
}

func respondStartError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, flows.ErrAlreadyActive):
		respondError(w, r, http.StatusConflict, err)
	case errors.Is(err, flows.ErrUnknownTarget):
		respondError(w, r, http.StatusNotFound, err)
	case errors.Is(err, flows.ErrFlowNotSupported):
		respondError(w, r, http.StatusBadRequest, err)
	default:
		// Upstream trouble: discovery, device authorization endpoint,
		// listener binding.
		logging.FromRequest(r).WithError(err).Error("failed to start authorization flow")
		respondError(w, r, http.StatusBadGateway, err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, err error) {
	respondJSON(w, r, status, map[string]string{"error": err.Error()})
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromRequest(r).WithError(err).Error("failed to write response")
	}
}
