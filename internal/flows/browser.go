package flows

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/oauth2"

	"github.com/matheuscscp/oauth2-flow-coordinator/internal/config"
	"github.com/matheuscscp/oauth2-flow-coordinator/internal/constants"
	"github.com/matheuscscp/oauth2-flow-coordinator/internal/logging"
	"github.com/matheuscscp/oauth2-flow-coordinator/internal/registry"
)

// StartServerFlow begins an Authorization Code + PKCE flow for the given MCP
// server: it resolves the authorization endpoints, binds the loopback
// redirect listener, opens the system browser, and registers the flow. The
// returned data lets the caller present the URL if the browser did not open.
func (c *Coordinator) StartServerFlow(ctx context.Context, serverID string) (*ServerFlowStart, error) {
	sconf, ok := c.conf.LookupServer(serverID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown server '%s'", ErrUnknownTarget, serverID)
	}
	if sconf.Auth.Type != config.AuthOAuthBrowser {
		return nil, fmt.Errorf("%w: server '%s' uses auth type '%s', not browser authorization",
			ErrFlowNotSupported, serverID, sconf.Auth.Type)
	}

	target := registry.Target{Kind: registry.KindMCPServer, ID: serverID}
	if c.liveFlowExists(target) {
		return nil, ErrAlreadyActive
	}

	l := logging.FromContext(ctx).WithField("server", serverID)

	authURL, tokenURL := sconf.Auth.AuthURL, sconf.Auth.TokenURL
	if authURL == "" {
		as, err := discoverEndpoints(ctx, c.httpClient, sconf.Endpoint)
		if err != nil {
			return nil, err
		}
		authURL, tokenURL = as.AuthorizationEndpoint, as.TokenEndpoint
	}

	scopes, err := sconf.SupportedScopes(ctx)
	if err != nil {
		// Scope probing is best-effort: an unreachable or scope-less server
		// still gets an authorization request, just without scopes.
		l.WithError(err).Warn("could not determine scopes, requesting none")
		scopes = nil
	}

	state, err := generateState()
	if err != nil {
		return nil, err
	}
	verifier, err := pkceVerifier()
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", sconf.Auth.CallbackPort))
	if err != nil {
		return nil, fmt.Errorf("failed to bind redirect listener on port %d: %w",
			sconf.Auth.CallbackPort, err)
	}
	redirectURI := fmt.Sprintf("http://localhost:%d%s", sconf.Auth.CallbackPort, pathCallback)

	oauthConf := &oauth2.Config{
		ClientID: sconf.Auth.ClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL,
		},
		RedirectURL: redirectURI,
		Scopes:      scopes,
	}
	if ref := sconf.Auth.ClientSecretRef; ref != "" {
		secret, ok := c.secrets.Get(ref)
		if !ok {
			ln.Close()
			return nil, fmt.Errorf("client secret reference '%s' not found for server '%s'", ref, serverID)
		}
		oauthConf.ClientSecret = string(secret)
	}

	fullAuthURL := oauthConf.AuthCodeURL(state,
		oauth2.SetAuthURLParam(constants.QueryParamCodeChallenge, pkceS256Challenge(verifier)),
		oauth2.SetAuthURLParam(constants.QueryParamCodeChallengeMethod, constants.CodeChallengeMethod))

	rec := registry.NewBrowserRecord(target, c.nowFunc(),
		fullAuthURL, redirectURI, state, verifier, ln)
	if err := c.reg.Insert(rec); err != nil {
		ln.Close()
		return nil, err
	}
	c.flowsStarted.WithLabelValues("browser").Inc()

	serveCallback(ln, rec)

	if err := c.browserFunc(fullAuthURL); err != nil {
		l.WithError(err).Warn("could not open browser, present the authorization URL manually")
	}

	l.Info("browser authorization flow started")

	c.supervise(rec, "browser",
		func() time.Duration { return c.conf.Flows.BrowserTickInterval },
		func() string { return c.tickBrowser(rec, oauthConf) })

	return &ServerFlowStart{
		AuthURL:     fullAuthURL,
		RedirectURI: redirectURI,
		State:       state,
	}, nil
}

// tickBrowser advances a browser flow by one step. The authorization code
// arrives by push from the redirect capture, so most ticks only check the
// timeout; a tick that finds a code performs the token exchange.
func (c *Coordinator) tickBrowser(rec *registry.Record, oauthConf *oauth2.Config) string {
	outcome, proceed := c.commonTick(rec)
	if !proceed {
		return outcome
	}

	code, ok := rec.ConsumeCode()
	if !ok {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), tickRequestTimeout)
	defer cancel()

	tok, err := oauthConf.Exchange(c.withHTTPClient(ctx), code,
		oauth2.SetAuthURLParam(constants.QueryParamCodeVerifier, rec.CodeVerifier()))
	if err != nil {
		rec.Fail(fmt.Sprintf("token exchange failed: %v", err))
		return outcomeOf(rec.Snapshot().Phase)
	}

	ref, err := storeToken(c.secrets, tok)
	if err != nil {
		rec.Fail(fmt.Sprintf("failed to store token: %v", err))
		return outcomeOf(rec.Snapshot().Phase)
	}
	rec.Succeed(ref, tokenExpiresIn(tok, c.nowFunc()))
	return outcomeOf(rec.Snapshot().Phase)
}
