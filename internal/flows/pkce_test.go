package flows

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	. "github.com/onsi/gomega"
)

func TestPKCEVerifier(t *testing.T) {
	g := NewWithT(t)

	const allowed = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-._~"

	seen := make(map[string]bool)
	for range 10 {
		v, err := pkceVerifier()
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(len(v)).To(And(BeNumerically(">=", 43), BeNumerically("<=", 128)))
		for _, ch := range v {
			g.Expect(strings.ContainsRune(allowed, ch)).To(BeTrue())
		}
		g.Expect(seen[v]).To(BeFalse())
		seen[v] = true
	}
}

func TestPKCES256Challenge(t *testing.T) {
	g := NewWithT(t)

	// RFC 7636 appendix B reference vector.
	const verifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	g.Expect(pkceS256Challenge(verifier)).To(Equal("E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"))

	v, err := pkceVerifier()
	g.Expect(err).NotTo(HaveOccurred())
	sum := sha256.Sum256([]byte(v))
	g.Expect(pkceS256Challenge(v)).To(Equal(base64.RawURLEncoding.EncodeToString(sum[:])))
}

func TestGenerateState(t *testing.T) {
	g := NewWithT(t)

	a, err := generateState()
	g.Expect(err).NotTo(HaveOccurred())
	b, err := generateState()
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(a).NotTo(BeEmpty())
	g.Expect(a).NotTo(Equal(b))

	// URL-safe without padding, fit for a query parameter as-is.
	_, err = base64.RawURLEncoding.DecodeString(a)
	g.Expect(err).NotTo(HaveOccurred())
}
