package registry

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/matheuscscp/oauth2-flow-coordinator/internal/logging"
)

// Kind discriminates the two target categories an authorization flow can be
// performed for.
type Kind string

const (
	KindProvider  Kind = "provider"
	KindMCPServer Kind = "mcp-server"
)

// Target uniquely addresses at most one active flow. Equality is structural,
// so Target is usable directly as a map key.
type Target struct {
	Kind Kind
	ID   string
}

func (t Target) String() string {
	return string(t.Kind) + "/" + t.ID
}

// Phase is the lifecycle phase of a flow. Once a terminal phase is reached
// the record never changes again.
type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
	PhaseTimedOut  Phase = "timed_out"
)

func (p Phase) Terminal() bool {
	return p != PhasePending
}

// Status is the caller-visible snapshot of a flow. TokenRef is a secret
// store reference, never the token itself.
type Status struct {
	Phase     Phase  `json:"phase"`
	TokenRef  string `json:"tokenRef,omitempty"`
	ExpiresIn int64  `json:"expiresIn,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ErrStateMismatch is returned by DeliverCode when the redirect carries a
// state parameter different from the one bound to the flow. The code is
// discarded; it is never exchanged.
var ErrStateMismatch = errors.New("redirect state does not match flow state")

// Record is the unit of flow state. It is owned by the Registry for its
// lifetime and mutated only through its methods; reading the current status
// and transitioning it is a single critical section.
type Record struct {
	target    Target
	createdAt time.Time

	mu        sync.Mutex
	status    Status
	cancelled bool

	// Device flow only. The device code is exchanged at the token endpoint
	// and never surfaces in a Status.
	deviceCode      string
	userCode        string
	verificationURL string
	interval        time.Duration

	// Browser flow only. The received code is set at most once by the
	// redirect capture and consumed exactly once by the exchange step.
	authURL      string
	redirectURI  string
	csrfState    string
	codeVerifier string
	receivedCode string
	codeSet      bool
	codeConsumed bool

	kick      chan struct{}
	closer    io.Closer
	closeOnce sync.Once
}

// NewDeviceRecord creates a pending device-flow record.
func NewDeviceRecord(target Target, now time.Time, deviceCode, userCode, verificationURL string, interval time.Duration) *Record {
	return &Record{
		target:          target,
		createdAt:       now,
		status:          Status{Phase: PhasePending},
		deviceCode:      deviceCode,
		userCode:        userCode,
		verificationURL: verificationURL,
		interval:        interval,
		kick:            make(chan struct{}, 1),
	}
}

// NewBrowserRecord creates a pending browser-flow record. The closer is the
// loopback listener backing the redirect URI; it is released when the flow
// reaches a terminal phase or is cancelled.
func NewBrowserRecord(target Target, now time.Time, authURL, redirectURI, csrfState, codeVerifier string, closer io.Closer) *Record {
	return &Record{
		target:       target,
		createdAt:    now,
		status:       Status{Phase: PhasePending},
		authURL:      authURL,
		redirectURI:  redirectURI,
		csrfState:    csrfState,
		codeVerifier: codeVerifier,
		kick:         make(chan struct{}, 1),
		closer:       closer,
	}
}

func (r *Record) Target() Target       { return r.target }
func (r *Record) CreatedAt() time.Time { return r.createdAt }

func (r *Record) Age(now time.Time) time.Duration {
	return now.Sub(r.createdAt)
}

func (r *Record) DeviceCode() string      { return r.deviceCode }
func (r *Record) UserCode() string        { return r.userCode }
func (r *Record) VerificationURL() string { return r.verificationURL }
func (r *Record) AuthURL() string         { return r.authURL }
func (r *Record) RedirectURI() string     { return r.redirectURI }
func (r *Record) CSRFState() string       { return r.csrfState }
func (r *Record) CodeVerifier() string    { return r.codeVerifier }

// Snapshot returns the current status. It never blocks on network work.
func (r *Record) Snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Interval is the device-flow polling interval currently in effect.
func (r *Record) Interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

// SlowDown grows the polling interval after the authorization server asked
// for a slower cadence (RFC 8628 section 3.5: increase by 5 seconds).
func (r *Record) SlowDown() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interval += 5 * time.Second
	return r.interval
}

// Cancel flags the record so its next tick performs no further network calls,
// and releases the loopback listener if one is held. Cancelling an already
// cancelled or terminal record is a no-op.
func (r *Record) Cancel() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
	r.release()
}

func (r *Record) Cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// Succeed transitions the record to PhaseSucceeded. It reports whether the
// transition was applied; a cancelled or already terminal record stays
// unchanged, discarding late-arriving results.
func (r *Record) Succeed(tokenRef string, expiresIn int64) bool {
	return r.transition(Status{
		Phase:     PhaseSucceeded,
		TokenRef:  tokenRef,
		ExpiresIn: expiresIn,
	})
}

// Fail transitions the record to PhaseFailed.
func (r *Record) Fail(message string) bool {
	return r.transition(Status{
		Phase:   PhaseFailed,
		Message: message,
	})
}

// Expire transitions the record to PhaseTimedOut.
func (r *Record) Expire() bool {
	return r.transition(Status{Phase: PhaseTimedOut})
}

func (r *Record) transition(to Status) bool {
	r.mu.Lock()
	if r.cancelled || r.status.Phase.Terminal() {
		r.mu.Unlock()
		return false
	}
	r.status = to
	r.mu.Unlock()
	r.release()
	return true
}

// DeliverCode accepts an authorization code from the redirect capture. The
// redirect state must equal the flow's CSRF state; on mismatch the flow
// fails and the code is discarded. A matching delivery stores the code once
// and kicks the supervisor so the exchange happens without waiting for the
// next tick.
func (r *Record) DeliverCode(state, code string) error {
	r.mu.Lock()
	if r.cancelled || r.status.Phase.Terminal() || r.codeSet {
		r.mu.Unlock()
		return nil
	}
	if state != r.csrfState {
		r.mu.Unlock()
		// Logged distinctly: a mismatch indicates a stale redirect or an
		// authorization code injection attempt.
		logging.WithFlow(string(r.target.Kind), r.target.ID).
			WithField("reason", "csrf_state_mismatch").
			Warn("discarding authorization code from redirect")
		r.Fail("CSRF state mismatch on redirect")
		return ErrStateMismatch
	}
	r.receivedCode = code
	r.codeSet = true
	r.mu.Unlock()
	r.Kick()
	return nil
}

// ConsumeCode hands out the received authorization code exactly once.
func (r *Record) ConsumeCode() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.codeSet || r.codeConsumed {
		return "", false
	}
	r.codeConsumed = true
	return r.receivedCode, true
}

// Kick wakes the supervisor ahead of its next scheduled tick.
func (r *Record) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Kicked is the channel the supervisor selects on for push notifications.
func (r *Record) Kicked() <-chan struct{} {
	return r.kick
}

func (r *Record) release() {
	if r.closer == nil {
		return
	}
	r.closeOnce.Do(func() {
		if err := r.closer.Close(); err != nil {
			logging.WithFlow(string(r.target.Kind), r.target.ID).
				WithError(err).Debug("failed to release flow resources")
		}
	})
}
