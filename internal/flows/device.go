package flows

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/matheuscscp/oauth2-flow-coordinator/internal/constants"
	"github.com/matheuscscp/oauth2-flow-coordinator/internal/logging"
	"github.com/matheuscscp/oauth2-flow-coordinator/internal/registry"
)

// StartProviderFlow begins a Device Authorization Grant for the given
// provider and returns the user-facing display data. The flow then advances
// in the background; callers observe progress through Poll.
func (c *Coordinator) StartProviderFlow(ctx context.Context, providerID string) (*ProviderFlowStart, error) {
	entry, err := c.catalog.Lookup(providerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, err.Error())
	}

	target := registry.Target{Kind: registry.KindProvider, ID: providerID}
	if c.liveFlowExists(target) {
		return nil, ErrAlreadyActive
	}

	oauthConf := entry.OAuth2Config()
	da, err := oauthConf.DeviceAuth(c.withHTTPClient(ctx))
	if err != nil {
		return nil, fmt.Errorf("device authorization request failed for provider '%s': %w", providerID, err)
	}

	// RFC 8628 section 3.2: when the response carries no interval the
	// default polling cadence applies.
	interval := time.Duration(da.Interval) * time.Second
	if interval < c.conf.Flows.DeviceTickInterval {
		interval = c.conf.Flows.DeviceTickInterval
	}

	rec := registry.NewDeviceRecord(target, c.nowFunc(),
		da.DeviceCode, da.UserCode, da.VerificationURI, interval)
	if err := c.reg.Insert(rec); err != nil {
		return nil, err
	}
	c.flowsStarted.WithLabelValues("device").Inc()

	logging.FromContext(ctx).
		WithField("provider", providerID).
		WithField("intervalSeconds", int64(interval/time.Second)).
		Info("device authorization flow started")

	c.supervise(rec, "device",
		func() time.Duration {
			if iv := rec.Interval(); iv > c.conf.Flows.DeviceTickInterval {
				return iv
			}
			return c.conf.Flows.DeviceTickInterval
		},
		func() string { return c.tickDevice(rec, oauthConf) })

	return &ProviderFlowStart{
		UserCode:        da.UserCode,
		VerificationURL: da.VerificationURI,
		Instructions: fmt.Sprintf("Visit %s and enter the code %s to authorize provider '%s'.",
			da.VerificationURI, da.UserCode, providerID),
		IntervalSeconds: int64(interval / time.Second),
	}, nil
}

const maxResponseBodySize = 1 << 20

// deviceTokenResponse is the token endpoint payload for the device grant,
// covering both the success and the RFC 6749 error shape.
type deviceTokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// tickDevice performs one poll of the token endpoint. An empty return keeps
// the flow pending; any other value is the final outcome.
func (c *Coordinator) tickDevice(rec *registry.Record, oauthConf *oauth2.Config) string {
	outcome, proceed := c.commonTick(rec)
	if !proceed {
		return outcome
	}

	target := rec.Target()
	l := logging.WithFlow(string(target.Kind), target.ID)

	resp, err := c.exchangeDeviceCode(oauthConf, rec.DeviceCode())
	if err != nil {
		// Transport-level failure: stay pending and try again next tick.
		l.WithError(err).Debug("device token poll failed, will retry")
		return ""
	}

	switch resp.Error {
	case "":
		tok := &oauth2.Token{
			AccessToken:  resp.AccessToken,
			TokenType:    resp.TokenType,
			RefreshToken: resp.RefreshToken,
		}
		if resp.ExpiresIn > 0 {
			tok.Expiry = c.nowFunc().Add(time.Duration(resp.ExpiresIn) * time.Second)
		}
		ref, err := storeToken(c.secrets, tok)
		if err != nil {
			rec.Fail(fmt.Sprintf("failed to store token: %v", err))
			return outcomeOf(rec.Snapshot().Phase)
		}
		rec.Succeed(ref, tokenExpiresIn(tok, c.nowFunc()))
		return outcomeOf(rec.Snapshot().Phase)
	case constants.OAuthErrorAuthorizationPending:
		return ""
	case constants.OAuthErrorSlowDown:
		iv := rec.SlowDown()
		l.WithField("intervalSeconds", int64(iv/time.Second)).
			Debug("authorization server requested slower polling")
		return ""
	default:
		msg := resp.Error
		if resp.ErrorDescription != "" {
			msg = fmt.Sprintf("%s: %s", resp.Error, resp.ErrorDescription)
		}
		rec.Fail(msg)
		return outcomeOf(rec.Snapshot().Phase)
	}
}

// exchangeDeviceCode posts the device code to the token endpoint. The
// endpoint legitimately answers 400 while authorization is pending, so any
// parseable body is a valid response regardless of HTTP status.
func (c *Coordinator) exchangeDeviceCode(oauthConf *oauth2.Config, deviceCode string) (*deviceTokenResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), tickRequestTimeout)
	defer cancel()

	form := url.Values{
		constants.QueryParamClientID:   {oauthConf.ClientID},
		constants.QueryParamDeviceCode: {deviceCode},
		constants.QueryParamGrantType:  {constants.GrantTypeDeviceCode},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		oauthConf.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, err
	}

	var tokenResp deviceTokenResponse
	if err := json.Unmarshal(b, &tokenResp); err != nil {
		return nil, fmt.Errorf("token endpoint returned %s with unparseable body: %w",
			resp.Status, err)
	}
	if tokenResp.Error == "" && tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned %s without a token or an error code",
			resp.Status)
	}
	return &tokenResp, nil
}
