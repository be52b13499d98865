// Package secrets provides the opaque secure store used for OAuth client
// secrets and tokens. Callers only ever see reference strings; resolving a
// reference back into the secret requires going through the store.
package secrets

// Store is an opaque key/value secret store addressed by stable references.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores the secret and returns a freshly generated reference.
	Put(secret []byte) (string, error)

	// Get resolves a reference. The second return value reports whether the
	// reference is known.
	Get(ref string) ([]byte, bool)

	// Delete removes the secret behind the reference. Deleting an unknown
	// reference is a no-op.
	Delete(ref string)
}
