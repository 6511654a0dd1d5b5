package authchain

import (
	"testing"
	"time"
)

func newTestChain(t *testing.T, start time.Time) (*Chain, *Credential, *Credential) {
	t.Helper()
	oauth := &Credential{Variant: VariantOAuth, Label: "oauth"}
	apiKey := &Credential{Variant: VariantAPIKey, Label: "api-key", Secret: "sk-test"}
	c := New([]*Credential{oauth, apiKey})
	c.now = func() time.Time { return start }
	return c, oauth, apiKey
}

func TestChain_ActiveDefaultsToFirst(t *testing.T) {
	c, oauth, _ := newTestChain(t, time.Now())
	if got := c.Active(); got != oauth {
		t.Fatalf("expected first credential active by default, got %v", got)
	}
}

func TestChain_FailureFallsThrough(t *testing.T) {
	now := time.Now()
	c, oauth, apiKey := newTestChain(t, now)

	c.RecordFailure(oauth, "unauthenticated")
	if got := c.Active(); got != apiKey {
		t.Fatalf("expected fallback to api-key after oauth failure, got %v", got)
	}

	next := c.Next(oauth)
	if next != apiKey {
		t.Fatalf("Next(oauth) = %v, want api-key", next)
	}
}

func TestChain_FailureExpiresAfterFiveMinutes(t *testing.T) {
	now := time.Now()
	c, oauth, _ := newTestChain(t, now)
	c.RecordFailure(oauth, "unauthenticated")

	// Still within the window: oauth stays unhealthy.
	c.now = func() time.Time { return now.Add(4 * time.Minute) }
	if got := c.Active(); got == oauth {
		t.Fatalf("expected oauth still failed before expiry")
	}

	// Past the window: sweep promotes it back to healthy.
	c.now = func() time.Time { return now.Add(5*time.Minute + time.Second) }
	if got := c.Active(); got != oauth {
		t.Fatalf("expected oauth healthy again after expiry, got %v", got)
	}
}

func TestChain_AllFailedOptimisticRetry(t *testing.T) {
	now := time.Now()
	c, oauth, apiKey := newTestChain(t, now)
	c.RecordFailure(oauth, "unauthenticated")
	c.RecordFailure(apiKey, "unauthenticated")

	if got := c.Active(); got != oauth {
		t.Fatalf("expected optimistic retry on first entry when all failed, got %v", got)
	}
}

func TestChain_NextReturnsNilWhenExhausted(t *testing.T) {
	now := time.Now()
	c, oauth, apiKey := newTestChain(t, now)
	c.RecordFailure(apiKey, "unauthenticated")

	if got := c.Next(apiKey); got != nil {
		t.Fatalf("expected nil after exhausting chain, got %v", got)
	}
	_ = oauth
}

func TestCredential_IsFree(t *testing.T) {
	oauth := &Credential{Variant: VariantOAuth}
	apiKey := &Credential{Variant: VariantAPIKey}
	if !oauth.IsFree() {
		t.Errorf("oauth should be free-tier")
	}
	if apiKey.IsFree() {
		t.Errorf("api-key should not be free-tier")
	}
}

func TestExhaustedError(t *testing.T) {
	err := ExhaustedError("driver.execute", []Attempt{
		{Label: "oauth", Err: nil},
		{Label: "api-key", Err: nil},
	})
	if err == nil {
		t.Fatal("expected non-nil error")
	}
}
