package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/matheuscscp/oauth2-flow-coordinator/internal/flows"
	"github.com/matheuscscp/oauth2-flow-coordinator/internal/registry"
)

type mockCoordinator struct {
	startProviderErr error
	startServerErr   error
	pollStatus       registry.Status
	pollErr          error

	cancelled []registry.Target
}

func (m *mockCoordinator) StartProviderFlow(ctx context.Context, providerID string) (*flows.ProviderFlowStart, error) {
	if m.startProviderErr != nil {
		return nil, m.startProviderErr
	}
	return &flows.ProviderFlowStart{
		UserCode:        "ABCD-1234",
		VerificationURL: "https://auth.example.com/activate",
		Instructions:    fmt.Sprintf("Visit https://auth.example.com/activate and enter the code ABCD-1234 to authorize provider '%s'.", providerID),
		IntervalSeconds: 5,
	}, nil
}

func (m *mockCoordinator) StartServerFlow(ctx context.Context, serverID string) (*flows.ServerFlowStart, error) {
	if m.startServerErr != nil {
		return nil, m.startServerErr
	}
	return &flows.ServerFlowStart{
		AuthURL:     "https://auth.example.com/authorize?state=xyz",
		RedirectURI: "http://localhost:8080/callback",
		State:       "xyz",
	}, nil
}

func (m *mockCoordinator) Poll(target registry.Target) (registry.Status, error) {
	if m.pollErr != nil {
		return registry.Status{}, m.pollErr
	}
	return m.pollStatus, nil
}

func (m *mockCoordinator) Cancel(target registry.Target) {
	m.cancelled = append(m.cancelled, target)
}

func TestAPIStartFlow(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		path           string
		coordinator    *mockCoordinator
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "start provider flow",
			method:         http.MethodPost,
			path:           "/v1/providers/openai/flow",
			coordinator:    &mockCoordinator{},
			expectedStatus: http.StatusOK,
			expectedBody:   "ABCD-1234",
		},
		{
			name:           "start server flow",
			method:         http.MethodPost,
			path:           "/v1/servers/docs/flow",
			coordinator:    &mockCoordinator{},
			expectedStatus: http.StatusOK,
			expectedBody:   "http://localhost:8080/callback",
		},
		{
			name:           "provider flow already active",
			method:         http.MethodPost,
			path:           "/v1/providers/openai/flow",
			coordinator:    &mockCoordinator{startProviderErr: flows.ErrAlreadyActive},
			expectedStatus: http.StatusConflict,
			expectedBody:   "already active",
		},
		{
			name:           "unknown provider",
			method:         http.MethodPost,
			path:           "/v1/providers/nope/flow",
			coordinator:    &mockCoordinator{startProviderErr: fmt.Errorf("%w: unknown provider 'nope'", flows.ErrUnknownTarget)},
			expectedStatus: http.StatusNotFound,
			expectedBody:   "nope",
		},
		{
			name:           "server without browser auth",
			method:         http.MethodPost,
			path:           "/v1/servers/plain/flow",
			coordinator:    &mockCoordinator{startServerErr: fmt.Errorf("%w: server 'plain' uses auth type 'bearer', not browser authorization", flows.ErrFlowNotSupported)},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "plain",
		},
		{
			name:           "upstream failure",
			method:         http.MethodPost,
			path:           "/v1/servers/docs/flow",
			coordinator:    &mockCoordinator{startServerErr: errors.New("OAuth discovery failed")},
			expectedStatus: http.StatusBadGateway,
			expectedBody:   "discovery",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			api := newAPI(tt.coordinator)
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			api.ServeHTTP(rec, req)

			g.Expect(rec.Code).To(Equal(tt.expectedStatus))
			g.Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
			g.Expect(rec.Body.String()).To(ContainSubstring(tt.expectedBody))
		})
	}
}

func TestAPIPollFlow(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		coordinator    *mockCoordinator
		expectedStatus int
		expectedPhase  registry.Phase
	}{
		{
			name: "pending provider flow",
			path: "/v1/providers/openai/flow",
			coordinator: &mockCoordinator{
				pollStatus: registry.Status{Phase: registry.PhasePending},
			},
			expectedStatus: http.StatusOK,
			expectedPhase:  registry.PhasePending,
		},
		{
			name: "succeeded server flow",
			path: "/v1/servers/docs/flow",
			coordinator: &mockCoordinator{
				pollStatus: registry.Status{
					Phase:     registry.PhaseSucceeded,
					TokenRef:  "ref-123",
					ExpiresIn: 3600,
				},
			},
			expectedStatus: http.StatusOK,
			expectedPhase:  registry.PhaseSucceeded,
		},
		{
			name:           "no flow for target",
			path:           "/v1/providers/openai/flow",
			coordinator:    &mockCoordinator{pollErr: flows.ErrFlowNotFound},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			api := newAPI(tt.coordinator)
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			api.ServeHTTP(rec, req)

			g.Expect(rec.Code).To(Equal(tt.expectedStatus))
			if tt.expectedStatus == http.StatusOK {
				var status registry.Status
				g.Expect(json.Unmarshal(rec.Body.Bytes(), &status)).To(Succeed())
				g.Expect(status).To(Equal(tt.coordinator.pollStatus))
				g.Expect(status.Phase).To(Equal(tt.expectedPhase))
			}
		})
	}
}

func TestAPICancelFlow(t *testing.T) {
	g := NewWithT(t)

	m := &mockCoordinator{}
	api := newAPI(m)

	for _, path := range []string{"/v1/providers/openai/flow", "/v1/servers/docs/flow"} {
		req := httptest.NewRequest(http.MethodDelete, path, nil)
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)
		g.Expect(rec.Code).To(Equal(http.StatusNoContent))
	}

	g.Expect(m.cancelled).To(ConsistOf(
		registry.Target{Kind: registry.KindProvider, ID: "openai"},
		registry.Target{Kind: registry.KindMCPServer, ID: "docs"},
	))
}

func TestAPIMethodRouting(t *testing.T) {
	g := NewWithT(t)

	api := newAPI(&mockCoordinator{})

	req := httptest.NewRequest(http.MethodPut, "/v1/providers/openai/flow", nil)
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	g.Expect(rec.Code).To(Equal(http.StatusMethodNotAllowed))

	req = httptest.NewRequest(http.MethodGet, "/v1/unknown", nil)
	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	g.Expect(rec.Code).To(Equal(http.StatusNotFound))
}
