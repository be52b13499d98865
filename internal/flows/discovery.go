package flows

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	pathProtectedResourceMetadata   = "/.well-known/oauth-protected-resource"
	pathAuthorizationServerMetadata = "/.well-known/oauth-authorization-server"

	// Ceiling on metadata document size.
	maxMetadataSize = 1024 * 1024
)

// protectedResourceMetadata is the RFC 9728 discovery document served by an
// MCP server.
type protectedResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
	ScopesSupported      []string `json:"scopes_supported,omitempty"`
}

// authorizationServerMetadata is the RFC 8414 discovery document served by
// an authorization server.
type authorizationServerMetadata struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
}

// discoverEndpoints resolves the authorization and token endpoints for an
// MCP server from its own discovery documents: the protected resource
// metadata names the authorization server, whose metadata names the
// endpoints. Servers acting as their own authorization server may serve the
// authorization server metadata directly, so that is tried as a fallback.
func discoverEndpoints(ctx context.Context, client *http.Client, endpoint string) (*authorizationServerMetadata, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid server endpoint '%s': %w", endpoint, err)
	}
	origin := fmt.Sprintf("%s://%s", base.Scheme, base.Host)

	var pr protectedResourceMetadata
	if err := fetchMetadata(ctx, client, origin+pathProtectedResourceMetadata, &pr); err == nil && len(pr.AuthorizationServers) > 0 {
		asURL, err := authorizationServerMetadataURL(pr.AuthorizationServers[0])
		if err != nil {
			return nil, err
		}
		var as authorizationServerMetadata
		if err := fetchMetadata(ctx, client, asURL, &as); err != nil {
			return nil, fmt.Errorf("failed to fetch authorization server metadata: %w", err)
		}
		return validateASMetadata(&as)
	}

	var as authorizationServerMetadata
	if err := fetchMetadata(ctx, client, origin+pathAuthorizationServerMetadata, &as); err != nil {
		return nil, fmt.Errorf("OAuth discovery failed for '%s': %w", endpoint, err)
	}
	return validateASMetadata(&as)
}

func authorizationServerMetadataURL(issuer string) (string, error) {
	u, err := url.Parse(issuer)
	if err != nil {
		return "", fmt.Errorf("invalid authorization server '%s': %w", issuer, err)
	}
	return fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, pathAuthorizationServerMetadata), nil
}

func validateASMetadata(as *authorizationServerMetadata) (*authorizationServerMetadata, error) {
	if as.AuthorizationEndpoint == "" || as.TokenEndpoint == "" {
		return nil, fmt.Errorf("malformed authorization server metadata: missing endpoints")
	}
	return as, nil
}

func fetchMetadata(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from '%s'", resp.StatusCode, rawURL)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataSize))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("failed to parse metadata from '%s': %w", rawURL, err)
	}
	return nil
}
