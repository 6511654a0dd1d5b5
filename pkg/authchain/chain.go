package authchain

import (
	"strconv"
	"sync"
	"time"

	"github.com/relaywork/modelbroker/pkg/orcherr"
)

// Chain is the ordered credential fallback chain (spec §4.1). All
// methods are safe for concurrent use: the failure sweep and the
// active-selection operation observe the same snapshot of
// per-credential failure state by holding the same mutex for both
// (spec §5 "Shared-resource policy").
type Chain struct {
	mu    sync.Mutex
	creds []*Credential
	now   func() time.Time // overridable for tests
}

// New builds a Chain in the given preference order. Per spec §4.1 the
// canonical order is OAuth → api-key → enterprise-key, but the caller
// supplies whatever order its deployment has configured.
func New(creds []*Credential) *Chain {
	return &Chain{creds: creds, now: time.Now}
}

// Active returns the first credential in chain order with no
// unexpired failure stamp. If every credential is currently marked
// failed, it optimistically returns the first entry anyway so the
// caller can retry (spec §4.1 "active()").
func (c *Chain) Active() *Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()

	if len(c.creds) == 0 {
		return nil
	}
	for _, cred := range c.creds {
		if cred.Healthy(c.now()) {
			return cred
		}
	}
	return c.creds[0]
}

// RecordFailure stamps cred with the current time and a short reason.
func (c *Chain) RecordFailure(cred *Credential, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cred.hasFailure = true
	cred.failedAt = c.now()
	cred.failReason = reason
}

// Sweep clears failure stamps older than FailureExpiry. Callers must
// invoke this at the top of every request (spec §4.1 "sweep()"); Active
// also sweeps internally so a bare Active() call is always consistent.
func (c *Chain) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
}

func (c *Chain) sweepLocked() {
	now := c.now()
	for _, cred := range c.creds {
		if cred.hasFailure && now.Sub(cred.failedAt) >= FailureExpiry {
			cred.hasFailure = false
		}
	}
}

// Next returns the next healthy credential after failed in preference
// order, or nil if none remain. Used when the CLI driver reports an
// authentication error and must migrate to the next chain entry (spec
// §4.1 "next(failed)").
func (c *Chain) Next(failed *Credential) *Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()

	idx := -1
	for i, cred := range c.creds {
		if cred == failed {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}
	for _, cred := range c.creds[idx+1:] {
		if cred.Healthy(c.now()) {
			return cred
		}
	}
	return nil
}

// Attempt records one (credential, error) pair tried by the caller
// while walking the chain, for use in an aggregated error once the
// chain is exhausted.
type Attempt struct {
	Label string
	Err   error
}

// ExhaustedError builds the single aggregated error the driver returns
// when the credential chain is exhausted (spec §4.1 "Failure
// semantics"): authentication errors are not surfaced to the caller
// while any untried healthy credential remains.
func ExhaustedError(op string, attempts []Attempt) error {
	msg := "authentication chain exhausted after " + strconv.Itoa(len(attempts)) + " attempt(s)"
	for i, a := range attempts {
		if i == 0 {
			msg += ": "
		} else {
			msg += ", "
		}
		msg += a.Label
	}
	var cause error
	if len(attempts) > 0 {
		cause = attempts[len(attempts)-1].Err
	}
	e := orcherr.Wrap(orcherr.KindAuthentication, op, msg, cause)
	return e
}
