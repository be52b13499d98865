package constants

import "time"

const (
	OAuth2FlowCoordinator = "oauth2-flow-coordinator"

	QueryParamAuthorizationCode   = "code"
	QueryParamClientID            = "client_id"
	QueryParamDeviceCode          = "device_code"
	QueryParamGrantType           = "grant_type"
	QueryParamCodeChallenge       = "code_challenge"
	QueryParamCodeChallengeMethod = "code_challenge_method"
	QueryParamCodeVerifier        = "code_verifier"
	QueryParamError               = "error"
	QueryParamErrorDescription    = "error_description"
	QueryParamState               = "state"

	CodeChallengeMethod = "S256"

	GrantTypeDeviceCode = "urn:ietf:params:oauth:grant-type:device_code"

	OAuthErrorAuthorizationPending = "authorization_pending"
	OAuthErrorSlowDown             = "slow_down"

	// Absolute ceiling for a single authorization flow, measured from
	// flow creation. Enforced locally even if the target never responds.
	FlowTimeout = 5 * time.Minute

	// Poll cadences per flow kind. The device cadence doubles as the minimum
	// polling interval honored regardless of what the authorization server
	// suggests. Browser flows tick faster because their real completion
	// signal is the redirect push; the tick mainly surfaces timeout and
	// cancellation promptly.
	DeviceTickInterval  = 5 * time.Second
	BrowserTickInterval = 2 * time.Second

	// Housekeeping for flow records that were never acknowledged.
	SweepInterval = time.Minute
	MaxRecordAge  = time.Hour
)
