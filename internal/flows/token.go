package flows

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwt"
	"golang.org/x/oauth2"

	"github.com/matheuscscp/oauth2-flow-coordinator/internal/secrets"
)

// storeToken serializes the token into the secret store and returns the
// opaque reference. The raw token never travels further than this call.
func storeToken(st secrets.Store, tok *oauth2.Token) (string, error) {
	b, err := json.Marshal(tok)
	if err != nil {
		return "", fmt.Errorf("failed to serialize token: %w", err)
	}
	ref, err := st.Put(b)
	if err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	return ref, nil
}

// tokenExpiresIn returns the token lifetime in seconds. When the token
// response carried no expiry, the access token itself is inspected: many
// authorization servers issue JWT access tokens whose exp claim is
// authoritative. Tokens with no discoverable expiry report zero.
func tokenExpiresIn(tok *oauth2.Token, now time.Time) int64 {
	if !tok.Expiry.IsZero() {
		return int64(tok.Expiry.Sub(now).Seconds())
	}
	parsed, err := jwt.ParseInsecure([]byte(tok.AccessToken))
	if err != nil {
		return 0
	}
	exp, ok := parsed.Expiration()
	if !ok {
		return 0
	}
	return int64(exp.Sub(now).Seconds())
}
