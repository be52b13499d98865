// Package provider maps provider ids to the OAuth endpoints used for the
// Device Authorization Grant. Known vendors carry built-in endpoint
// defaults; anything else must configure endpoints explicitly.
package provider

import (
	"fmt"

	"golang.org/x/oauth2"

	"github.com/matheuscscp/oauth2-flow-coordinator/internal/config"
)

const (
	providerGitHubCopilot = "github-copilot"

	// Public client id GitHub issues for Copilot device authorization.
	githubCopilotClientID = "Ov23li8tweQw6odWQebz"
)

var builtinEndpoints = map[string]oauth2.Endpoint{
	providerGitHubCopilot: {
		DeviceAuthURL: "https://github.com/login/device/code",
		TokenURL:      "https://github.com/login/oauth/access_token",
	},
}

var builtinClientIDs = map[string]string{
	providerGitHubCopilot: githubCopilotClientID,
}

// Entry is one authorizable provider.
type Entry struct {
	ID       string
	ClientID string
	Endpoint oauth2.Endpoint
	Scopes   []string
}

// OAuth2Config builds the oauth2 client config for this provider's device
// flow. Public clients only; device flows carry no client secret.
func (e *Entry) OAuth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID: e.ClientID,
		Endpoint: e.Endpoint,
		Scopes:   e.Scopes,
	}
}

// Catalog resolves provider ids to entries.
type Catalog struct {
	entries map[string]*Entry
}

func NewCatalog(confs []*config.ProviderConfig) (*Catalog, error) {
	entries := make(map[string]*Entry, len(confs))
	for _, conf := range confs {
		endpoint, ok := builtinEndpoints[conf.ID]
		if conf.DeviceAuthURL != "" {
			endpoint = oauth2.Endpoint{
				DeviceAuthURL: conf.DeviceAuthURL,
				TokenURL:      conf.TokenURL,
			}
			ok = true
		}
		if !ok {
			return nil, fmt.Errorf("provider '%s' has no built-in endpoints, set deviceAuthURL and tokenURL", conf.ID)
		}
		clientID := conf.ClientID
		if clientID == "" {
			clientID = builtinClientIDs[conf.ID]
		}
		if clientID == "" {
			return nil, fmt.Errorf("provider '%s' has no built-in client id, set clientID", conf.ID)
		}
		entries[conf.ID] = &Entry{
			ID:       conf.ID,
			ClientID: clientID,
			Endpoint: endpoint,
			Scopes:   conf.Scopes,
		}
	}
	return &Catalog{entries: entries}, nil
}

// Lookup returns the entry for the provider id.
func (c *Catalog) Lookup(id string) (*Entry, error) {
	e, ok := c.entries[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", id)
	}
	return e, nil
}
