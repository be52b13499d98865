package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/matheuscscp/oauth2-flow-coordinator/internal/constants"
)

func validConfig() *Config {
	return &Config{
		Providers: []*ProviderConfig{{
			ID:       "openai",
			ClientID: "client-1",
		}},
		Servers: []*ServerConfig{{
			ID:       "srv-1",
			Endpoint: "https://mcp.example.com/mcp",
			Auth: AuthConfig{
				Type:     AuthOAuthBrowser,
				ClientID: "client-2",
			},
		}},
	}
}

func TestConfig_ValidateAndInitialize(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name: "empty config gets defaults",
			mutate: func(c *Config) {
				c.Providers = nil
				c.Servers = nil
			},
		},
		{
			name: "provider without id",
			mutate: func(c *Config) {
				c.Providers[0].ID = ""
			},
			wantErr: "id must be set",
		},
		{
			name: "duplicate provider id",
			mutate: func(c *Config) {
				c.Providers = append(c.Providers, &ProviderConfig{ID: "openai"})
			},
			wantErr: "duplicate provider id",
		},
		{
			name: "provider with device auth URL but no token URL",
			mutate: func(c *Config) {
				c.Providers[0].DeviceAuthURL = "https://example.com/device/code"
			},
			wantErr: "must be set together",
		},
		{
			name: "server without endpoint",
			mutate: func(c *Config) {
				c.Servers[0].Endpoint = ""
			},
			wantErr: "endpoint must be set",
		},
		{
			name: "duplicate server id",
			mutate: func(c *Config) {
				c.Servers = append(c.Servers, &ServerConfig{
					ID:       "srv-1",
					Endpoint: "https://other.example.com/mcp",
				})
			},
			wantErr: "duplicate server id",
		},
		{
			name: "unknown transport",
			mutate: func(c *Config) {
				c.Servers[0].Transport = "websocket"
			},
			wantErr: "unsupported transport",
		},
		{
			name: "unknown auth type",
			mutate: func(c *Config) {
				c.Servers[0].Auth.Type = "kerberos"
			},
			wantErr: "unsupported auth type",
		},
		{
			name: "oauth-browser without client id",
			mutate: func(c *Config) {
				c.Servers[0].Auth.ClientID = ""
			},
			wantErr: "auth.clientID must be set",
		},
		{
			name: "oauth-browser with auth URL but no token URL",
			mutate: func(c *Config) {
				c.Servers[0].Auth.AuthURL = "https://example.com/authorize"
			},
			wantErr: "must be set together",
		},
		{
			name: "bearer without token ref",
			mutate: func(c *Config) {
				c.Servers[0].Auth = AuthConfig{Type: AuthBearer}
			},
			wantErr: "auth.tokenRef must be set",
		},
		{
			name: "headers without headers",
			mutate: func(c *Config) {
				c.Servers[0].Auth = AuthConfig{Type: AuthHeaders}
			},
			wantErr: "auth.headers must be set",
		},
		{
			name: "record age shorter than flow timeout",
			mutate: func(c *Config) {
				c.Flows.MaxRecordAge = time.Minute
			},
			wantErr: "maxRecordAge must not be shorter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			c := validConfig()
			tt.mutate(c)
			err := c.ValidateAndInitialize()

			if tt.wantErr != "" {
				g.Expect(err).To(HaveOccurred())
				g.Expect(err.Error()).To(ContainSubstring(tt.wantErr))
				return
			}
			g.Expect(err).ToNot(HaveOccurred())
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	g := NewWithT(t)

	c := validConfig()
	g.Expect(c.ValidateAndInitialize()).To(Succeed())

	g.Expect(c.Server.Addr).To(Equal("127.0.0.1:9096"))
	g.Expect(c.Servers[0].Transport).To(Equal(TransportStreamableHTTP))
	g.Expect(c.Servers[0].Auth.CallbackPort).To(Equal(8080))
	g.Expect(c.Flows.Timeout).To(Equal(constants.FlowTimeout))
	g.Expect(c.Flows.DeviceTickInterval).To(Equal(constants.DeviceTickInterval))
	g.Expect(c.Flows.BrowserTickInterval).To(Equal(constants.BrowserTickInterval))
	g.Expect(c.Flows.SweepInterval).To(Equal(constants.SweepInterval))
	g.Expect(c.Flows.MaxRecordAge).To(Equal(constants.MaxRecordAge))
}

func TestConfig_Lookup(t *testing.T) {
	g := NewWithT(t)

	c := validConfig()
	g.Expect(c.ValidateAndInitialize()).To(Succeed())

	p, ok := c.LookupProvider("openai")
	g.Expect(ok).To(BeTrue())
	g.Expect(p.ClientID).To(Equal("client-1"))

	_, ok = c.LookupProvider("missing")
	g.Expect(ok).To(BeFalse())

	s, ok := c.LookupServer("srv-1")
	g.Expect(ok).To(BeTrue())
	g.Expect(s.Endpoint).To(Equal("https://mcp.example.com/mcp"))

	_, ok = c.LookupServer("missing")
	g.Expect(ok).To(BeFalse())
}

func TestLoad(t *testing.T) {
	g := NewWithT(t)

	dir := t.TempDir()
	fileName := filepath.Join(dir, "config.yaml")
	content := `
providers:
  - id: openai
    clientID: client-1
servers:
  - id: srv-1
    endpoint: https://mcp.example.com/mcp
    transport: streamable-http
    auth:
      type: oauth-browser
      clientID: client-2
      scopes: [tools:read]
flows:
  timeout: 2m
  maxRecordAge: 30m
`
	g.Expect(os.WriteFile(fileName, []byte(content), 0o600)).To(Succeed())
	t.Setenv("OAUTH2_FLOW_COORDINATOR_CONFIG", fileName)

	cfg, err := Load()

	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(cfg.Providers).To(HaveLen(1))
	g.Expect(cfg.Servers).To(HaveLen(1))
	g.Expect(cfg.Servers[0].Auth.Scopes).To(Equal([]string{"tools:read"}))
	g.Expect(cfg.Flows.Timeout).To(Equal(2 * time.Minute))
	g.Expect(cfg.Flows.MaxRecordAge).To(Equal(30 * time.Minute))
}

func TestLoad_MissingFile(t *testing.T) {
	g := NewWithT(t)

	t.Setenv("OAUTH2_FLOW_COORDINATOR_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	g.Expect(err).To(HaveOccurred())
}

func TestServerConfig_SupportedScopesFromConfig(t *testing.T) {
	g := NewWithT(t)

	s := &ServerConfig{
		ID:       "srv-1",
		Endpoint: "https://mcp.example.com/mcp",
		Auth: AuthConfig{
			Type:     AuthOAuthBrowser,
			ClientID: "client-2",
			Scopes:   []string{"tools:read", "tools:write"},
		},
	}
	g.Expect(s.validateAndInitialize()).To(Succeed())

	scopes, err := s.SupportedScopes(t.Context())
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(scopes).To(Equal([]string{"tools:read", "tools:write"}))
}
