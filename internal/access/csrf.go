package access

import (
	"context"
	"fmt"
	"time"

	"leadership-portal/internal/domain"
	"leadership-portal/internal/security"
)

// CSRFPolicy selects whether a token survives its first use.
type CSRFPolicy string

const (
	// CSRFReusable keeps a token valid for the session until it is re-issued
	// or its TTL elapses. Replay within the session is accepted.
	CSRFReusable CSRFPolicy = "reusable"
	// CSRFSingleUse clears the token on its first successful validation.
	CSRFSingleUse CSRFPolicy = "single-use"

	DefaultCSRFTokenTTL = 2 * time.Hour
)

// ParseCSRFPolicy accepts "reusable" and "single-use"; empty means reusable.
func ParseCSRFPolicy(s string) (CSRFPolicy, error) {
	switch CSRFPolicy(s) {
	case "", CSRFReusable:
		return CSRFReusable, nil
	case CSRFSingleUse:
		return CSRFSingleUse, nil
	}
	return "", fmt.Errorf("unknown csrf policy %q", s)
}

// CSRFValidator issues and checks synchronizer tokens bound to a session.
type CSRFValidator struct {
	store  domain.SessionStore
	tokens *security.TokenManager
	policy CSRFPolicy
	ttl    time.Duration
	now    func() time.Time
}

func NewCSRFValidator(store domain.SessionStore, tokens *security.TokenManager, policy CSRFPolicy, ttl time.Duration) *CSRFValidator {
	if policy == "" {
		policy = CSRFReusable
	}
	if ttl <= 0 {
		ttl = DefaultCSRFTokenTTL
	}
	return &CSRFValidator{
		store:  store,
		tokens: tokens,
		policy: policy,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Policy returns the configured token policy.
func (c *CSRFValidator) Policy() CSRFPolicy {
	return c.policy
}

// Issue generates a new token for session, replacing any previous one.
func (c *CSRFValidator) Issue(ctx context.Context, session *domain.Session) (string, error) {
	token, err := c.tokens.Generate()
	if err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	now := c.now()
	if err := c.store.UpdateCSRFToken(ctx, session.Token, token, now); err != nil {
		return "", fmt.Errorf("failed to store csrf token: %w", err)
	}
	session.CSRFToken = token
	session.CSRFIssuedAt = now
	return token, nil
}

// Validate reports whether submitted matches the session's active token.
// A non-nil error means the store could not be reached while consuming a
// single-use token; the request must be rejected.
func (c *CSRFValidator) Validate(ctx context.Context, session *domain.Session, submitted string) (bool, error) {
	if session == nil {
		return false, nil
	}
	if !c.tokens.Equal(session.CSRFToken, submitted) {
		return false, nil
	}
	if c.now().Sub(session.CSRFIssuedAt) > c.ttl {
		return false, nil
	}
	if c.policy != CSRFSingleUse {
		return true, nil
	}

	consumed, err := c.store.ConsumeCSRFToken(ctx, session.Token, submitted)
	if err != nil {
		return false, fmt.Errorf("%w: csrf: %v", ErrUpstreamLookup, err)
	}
	if !consumed {
		return false, nil
	}
	session.CSRFToken = ""
	return true, nil
}
