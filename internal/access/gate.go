// Package access implements the authorization gate every request passes
// before it reads or mutates program data: session validation, role
// permissions, per-resource ownership and CSRF tokens.
package access

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"leadership-portal/internal/domain"
	"leadership-portal/internal/observability"
)

// Outcome is the kind of decision the gate reached.
type Outcome int

const (
	Allowed Outcome = iota
	DeniedUnauthenticated
	DeniedForbidden
	DeniedOwnership
	DeniedCSRF
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case DeniedUnauthenticated:
		return "unauthenticated"
	case DeniedForbidden:
		return "forbidden"
	case DeniedOwnership:
		return "not_owner"
	case DeniedCSRF:
		return "csrf_mismatch"
	default:
		return "unknown"
	}
}

// User-facing denial copy. Authentication failures share one message so
// they reveal nothing about which check failed.
const (
	MsgLoginRequired = "Please log in to continue"
	MsgAccessDenied  = "Access denied: you do not have permission to perform this action"
	MsgNotOwner      = "Access denied: you can only act on your own resources"
	MsgCSRFMismatch  = "Security token mismatch, please reload the page and try again"
	MsgUnavailable   = "Service temporarily unavailable, please try again"
)

// Principal is the authenticated caller, sourced once per request.
type Principal struct {
	Session *domain.Session
	User    *domain.User
}

// Request describes what the caller wants to do.
type Request struct {
	SessionToken string
	Permission   Permission
	Resource     *ResourceRef
	Mutating     bool
	CSRFToken    string
}

// Decision is the gate's answer. Denials are values, not errors.
type Decision struct {
	Outcome Outcome
	Reason  string
	User    *domain.User
	Session *domain.Session
}

// Allowed reports whether the caller may proceed.
func (d Decision) Allowed() bool {
	return d.Outcome == Allowed
}

// Gate composes the session, permission, ownership and CSRF checks.
type Gate struct {
	sessions *SessionValidator
	resolver *Resolver
	guard    *OwnershipGuard
	csrf     *CSRFValidator
	owners   map[string]OwnershipSource
	audit    AuditSink
	logger   *slog.Logger
}

// GateOption configures optional collaborators.
type GateOption func(*Gate)

// WithOwnershipSource registers the source consulted for resourceType.
func WithOwnershipSource(resourceType string, src OwnershipSource) GateOption {
	return func(g *Gate) {
		g.owners[resourceType] = src
	}
}

func WithAuditSink(sink AuditSink) GateOption {
	return func(g *Gate) {
		if sink != nil {
			g.audit = sink
		}
	}
}

func WithLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func NewGate(sessions *SessionValidator, resolver *Resolver, csrf *CSRFValidator, opts ...GateOption) *Gate {
	g := &Gate{
		sessions: sessions,
		resolver: resolver,
		guard:    NewOwnershipGuard(resolver),
		csrf:     csrf,
		owners:   make(map[string]OwnershipSource),
		audit:    NopAuditSink{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Resolver exposes the permission table, e.g. for rendering menus.
func (g *Gate) Resolver() *Resolver {
	return g.resolver
}

// Authorize runs every check for req in order: session, permission,
// ownership, CSRF. A valid session has its expiry extended even when a later
// check denies.
func (g *Gate) Authorize(ctx context.Context, req Request) (Decision, error) {
	principal, decision, err := g.authenticate(ctx, req)
	if err != nil || !decision.Allowed() {
		return decision, err
	}
	return g.Check(ctx, principal, req)
}

// Authenticate performs the session step alone.
func (g *Gate) Authenticate(ctx context.Context, token string) (Principal, Decision, error) {
	return g.authenticate(ctx, Request{SessionToken: token})
}

func (g *Gate) authenticate(ctx context.Context, req Request) (Principal, Decision, error) {
	result, err := g.sessions.Validate(ctx, req.SessionToken)
	if err != nil {
		observability.GateDecisions.WithLabelValues("error", string(req.Permission)).Inc()
		g.logger.Error("session validation failed", slog.String("error", err.Error()))
		return Principal{}, Decision{Outcome: DeniedUnauthenticated, Reason: MsgUnavailable}, err
	}
	if result.Status != SessionValid {
		d := Decision{Outcome: DeniedUnauthenticated, Reason: MsgLoginRequired}
		if req.SessionToken != "" {
			// anonymous requests are routine; only presented tokens are audited
			g.record(ctx, req, d)
		}
		return Principal{}, d, nil
	}
	p := Principal{Session: result.Session, User: result.User}
	return p, Decision{Outcome: Allowed, User: p.User, Session: p.Session}, nil
}

// Check runs the permission, ownership and CSRF steps for an already
// authenticated principal.
func (g *Gate) Check(ctx context.Context, p Principal, req Request) (Decision, error) {
	if p.User == nil || p.Session == nil {
		d := Decision{Outcome: DeniedUnauthenticated, Reason: MsgLoginRequired}
		g.record(ctx, req, d)
		return d, nil
	}

	deny := func(outcome Outcome, reason string) (Decision, error) {
		d := Decision{Outcome: outcome, Reason: reason, User: p.User, Session: p.Session}
		g.record(ctx, req, d)
		return d, nil
	}

	if !g.resolver.Allows(p.User.Role, req.Permission) {
		return deny(DeniedForbidden, MsgAccessDenied)
	}

	if req.Resource != nil {
		ok, err := g.checkOwnership(ctx, p.User, req.Resource)
		if err != nil {
			observability.GateDecisions.WithLabelValues("error", string(req.Permission)).Inc()
			g.logger.Error("ownership lookup failed",
				slog.String("resource_type", req.Resource.Type),
				slog.String("resource_id", req.Resource.ID),
				slog.String("error", err.Error()))
			return Decision{Outcome: DeniedOwnership, Reason: MsgUnavailable, User: p.User, Session: p.Session}, err
		}
		if !ok {
			return deny(DeniedOwnership, MsgNotOwner)
		}
	}

	if req.Mutating {
		ok, err := g.csrf.Validate(ctx, p.Session, req.CSRFToken)
		if err != nil {
			observability.GateDecisions.WithLabelValues("error", string(req.Permission)).Inc()
			g.logger.Error("csrf validation failed", slog.String("error", err.Error()))
			return Decision{Outcome: DeniedCSRF, Reason: MsgUnavailable, User: p.User, Session: p.Session}, err
		}
		if !ok {
			observability.CSRFFailures.Inc()
			return deny(DeniedCSRF, MsgCSRFMismatch)
		}
	}

	observability.GateDecisions.WithLabelValues(Allowed.String(), string(req.Permission)).Inc()
	return Decision{Outcome: Allowed, User: p.User, Session: p.Session}, nil
}

// IssueCSRFToken rotates the session's CSRF token.
func (g *Gate) IssueCSRFToken(ctx context.Context, session *domain.Session) (string, error) {
	return g.csrf.Issue(ctx, session)
}

// ValidateCSRFToken checks submitted against the session's active token.
func (g *Gate) ValidateCSRFToken(ctx context.Context, session *domain.Session, submitted string) (bool, error) {
	return g.csrf.Validate(ctx, session, submitted)
}

func (g *Gate) checkOwnership(ctx context.Context, user *domain.User, ref *ResourceRef) (bool, error) {
	src, ok := g.owners[ref.Type]
	if !ok {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.sessions.lookupTimeout)
	defer cancel()

	ownership, err := src.GetResourceOwnership(ctx, ref.Type, ref.ID)
	if errors.Is(err, ErrResourceNotFound) {
		// reported as an ownership denial so non-owners cannot probe for IDs
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: ownership: %v", ErrUpstreamLookup, err)
	}
	return g.guard.Check(user, ref.Override, ownership.OwnerIDs(ref.Relations...)...), nil
}

func (g *Gate) record(ctx context.Context, req Request, d Decision) {
	observability.GateDecisions.WithLabelValues(d.Outcome.String(), string(req.Permission)).Inc()

	var userID string
	if d.User != nil {
		userID = d.User.ID
	}

	g.logger.Warn("access denied",
		slog.String("outcome", d.Outcome.String()),
		slog.String("permission", string(req.Permission)),
		slog.String("user_id", userID))

	event := domain.NewAuditEvent(domain.AuditAccessDenied, userID, d.Outcome.String())
	event.Permission = string(req.Permission)
	event.Reason = d.Reason
	if req.Resource != nil {
		event.ResourceType = req.Resource.Type
		event.ResourceID = req.Resource.ID
	}
	if err := g.audit.Record(ctx, event); err != nil {
		g.logger.Error("failed to record audit event", slog.String("error", err.Error()))
	}
}
