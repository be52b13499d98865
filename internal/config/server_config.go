package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// TransportType is the closed set of MCP server transports.
type TransportType string

const (
	TransportStdio          TransportType = "stdio"
	TransportSSE            TransportType = "sse"
	TransportStreamableHTTP TransportType = "streamable-http"
)

// AuthType is the closed set of MCP server authentication methods.
type AuthType string

const (
	AuthNone         AuthType = "none"
	AuthBearer       AuthType = "bearer"
	AuthHeaders      AuthType = "headers"
	AuthOAuthBrowser AuthType = "oauth-browser"
)

const (
	defaultCallbackPort = 8080

	scopesCacheDuration = 10 * time.Second
)

// ServerConfig describes an MCP server target.
type ServerConfig struct {
	ID        string        `yaml:"id" json:"id"`
	Endpoint  string        `yaml:"endpoint" json:"endpoint"`
	Transport TransportType `yaml:"transport" json:"transport"`
	Auth      AuthConfig    `yaml:"auth" json:"auth"`

	scopes         []string
	scopesDeadline time.Time
	scopesMu       sync.Mutex
}

// AuthConfig is a tagged variant: Type selects the method and the remaining
// fields are only meaningful for that method.
type AuthConfig struct {
	Type AuthType `yaml:"type" json:"type"`

	// oauth-browser fields. AuthURL/TokenURL may be left empty to use the
	// server's own OAuth discovery document. ClientSecretRef is a secret
	// store reference, never the secret itself.
	ClientID        string   `yaml:"clientID" json:"clientID"`
	ClientSecretRef string   `yaml:"clientSecretRef" json:"clientSecretRef"`
	AuthURL         string   `yaml:"authURL" json:"authURL"`
	TokenURL        string   `yaml:"tokenURL" json:"tokenURL"`
	Scopes          []string `yaml:"scopes" json:"scopes"`
	CallbackPort    int      `yaml:"callbackPort" json:"callbackPort"`

	// bearer field: reference to a static token in the secret store.
	TokenRef string `yaml:"tokenRef" json:"tokenRef"`

	// headers field: static headers attached to every request.
	Headers map[string]string `yaml:"headers" json:"headers"`
}

func (s *ServerConfig) validateAndInitialize() error {
	if s.ID == "" {
		return fmt.Errorf("id must be set")
	}
	if s.Endpoint == "" {
		return fmt.Errorf("endpoint must be set")
	}

	if s.Transport == "" {
		s.Transport = TransportStreamableHTTP
	}
	switch s.Transport {
	case TransportStdio, TransportSSE, TransportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport '%s'", s.Transport)
	}

	if s.Auth.Type == "" {
		s.Auth.Type = AuthNone
	}
	switch s.Auth.Type {
	case AuthNone:
	case AuthBearer:
		if s.Auth.TokenRef == "" {
			return fmt.Errorf("auth.tokenRef must be set for bearer auth")
		}
	case AuthHeaders:
		if len(s.Auth.Headers) == 0 {
			return fmt.Errorf("auth.headers must be set for headers auth")
		}
	case AuthOAuthBrowser:
		if s.Auth.ClientID == "" {
			return fmt.Errorf("auth.clientID must be set for oauth-browser auth")
		}
		if (s.Auth.AuthURL == "") != (s.Auth.TokenURL == "") {
			return fmt.Errorf("auth.authURL and auth.tokenURL must be set together")
		}
		if s.Auth.CallbackPort == 0 {
			s.Auth.CallbackPort = defaultCallbackPort
		}
		if s.Auth.Scopes == nil {
			s.Auth.Scopes = []string{}
		}
	default:
		return fmt.Errorf("unsupported auth type '%s'", s.Auth.Type)
	}

	return nil
}

// SupportedScopes returns the OAuth scopes to request for this server. When
// the config does not pin scopes, the server itself is asked over the MCP
// protocol for the scopes it advertises; the answer is cached briefly.
func (s *ServerConfig) SupportedScopes(ctx context.Context) ([]string, error) {
	if len(s.Auth.Scopes) > 0 {
		return s.Auth.Scopes, nil
	}
	if s.Transport != TransportStreamableHTTP {
		return nil, nil
	}

	now := time.Now()

	s.scopesMu.Lock()
	defer s.scopesMu.Unlock()

	scopes := s.scopes
	if !now.Before(s.scopesDeadline) {
		var err error
		scopes, err = fetchAdvertisedScopes(ctx, s.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch advertised scopes from '%s': %w", s.Endpoint, err)
		}
		s.scopes = scopes
		s.scopesDeadline = now.Add(scopesCacheDuration)
	}

	return scopes, nil
}

func fetchAdvertisedScopes(ctx context.Context, endpoint string) ([]string, error) {
	c, err := client.NewStreamableHttpClient(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}
	defer c.Close()
	_, err = c.Initialize(ctx, mcp.InitializeRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}
	resp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list MCP tools: %w", err)
	}
	b, err := json.Marshal(resp.Meta.AdditionalFields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal MCP tools metadata: %w", err)
	}
	var payload struct {
		Scopes []struct {
			Name string `json:"name"`
		} `json:"scopes"`
	}
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal MCP tools metadata: %w", err)
	}
	names := make([]string, 0, len(payload.Scopes))
	for _, s := range payload.Scopes {
		names = append(names, s.Name)
	}
	return names, nil
}
