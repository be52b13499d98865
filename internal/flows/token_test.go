package flows

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	. "github.com/onsi/gomega"
	"golang.org/x/oauth2"

	"github.com/matheuscscp/oauth2-flow-coordinator/internal/secrets"
)

func TestStoreToken(t *testing.T) {
	g := NewWithT(t)

	st := secrets.NewMemoryStore()
	tok := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
	}

	ref, err := storeToken(st, tok)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ref).NotTo(BeEmpty())
	g.Expect(ref).NotTo(ContainSubstring("access"))

	raw, ok := st.Get(ref)
	g.Expect(ok).To(BeTrue())
	var stored oauth2.Token
	g.Expect(json.Unmarshal(raw, &stored)).To(Succeed())
	g.Expect(stored.AccessToken).To(Equal("access"))
	g.Expect(stored.RefreshToken).To(Equal("refresh"))
}

func TestTokenExpiresIn(t *testing.T) {
	g := NewWithT(t)
	now := time.Now()

	signedJWT := func(exp time.Time) string {
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		g.Expect(err).NotTo(HaveOccurred())
		key, err := jwk.Import(priv)
		g.Expect(err).NotTo(HaveOccurred())

		tok, err := jwt.NewBuilder().
			Issuer("https://auth.example.com").
			Subject("user").
			Expiration(exp).
			IssuedAt(now).
			Build()
		g.Expect(err).NotTo(HaveOccurred())
		b, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256(), key))
		g.Expect(err).NotTo(HaveOccurred())
		return string(b)
	}

	tests := []struct {
		name     string
		token    *oauth2.Token
		expected int64
	}{
		{
			name: "expiry from token response",
			token: &oauth2.Token{
				AccessToken: "opaque",
				Expiry:      now.Add(time.Hour),
			},
			expected: 3600,
		},
		{
			name: "expiry derived from JWT exp claim",
			token: &oauth2.Token{
				AccessToken: signedJWT(now.Add(30 * time.Minute)),
			},
			expected: 1800,
		},
		{
			name: "response expiry wins over JWT claim",
			token: &oauth2.Token{
				AccessToken: signedJWT(now.Add(30 * time.Minute)),
				Expiry:      now.Add(time.Hour),
			},
			expected: 3600,
		},
		{
			name: "opaque token without expiry",
			token: &oauth2.Token{
				AccessToken: "opaque",
			},
			expected: 0,
		},
		{
			name: "JWT without exp claim",
			token: &oauth2.Token{
				AccessToken: func() string {
					priv, _ := rsa.GenerateKey(rand.Reader, 2048)
					key, _ := jwk.Import(priv)
					tok, _ := jwt.NewBuilder().Subject("user").Build()
					b, _ := jwt.Sign(tok, jwt.WithKey(jwa.RS256(), key))
					return string(b)
				}(),
			},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)
			g.Expect(tokenExpiresIn(tt.token, now)).To(BeNumerically("~", tt.expected, 1))
		})
	}
}
