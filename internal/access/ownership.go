package access

import (
	"context"
	"errors"

	"leadership-portal/internal/domain"
)

// ErrResourceNotFound is returned by an OwnershipSource when the resource
// does not exist.
var ErrResourceNotFound = errors.New("resource not found")

// Relation names how a user is tied to a resource instance.
type Relation string

const (
	// RelationOwner is the creator, e.g. an assignment's assigned_by.
	RelationOwner Relation = "owner"
	// RelationAssignee is the recipient, e.g. an assignment's assigned_to.
	RelationAssignee Relation = "assignee"
)

// Ownership is a runtime fact about who a resource belongs to.
type Ownership struct {
	ResourceType string
	ResourceID   string
	Owners       map[Relation][]string
}

// OwnerIDs returns the user IDs holding any of relations. No relations means
// every relation counts.
func (o Ownership) OwnerIDs(relations ...Relation) []string {
	if len(relations) == 0 {
		var ids []string
		for _, owners := range o.Owners {
			ids = append(ids, owners...)
		}
		return ids
	}
	var ids []string
	for _, rel := range relations {
		ids = append(ids, o.Owners[rel]...)
	}
	return ids
}

// OwnershipSource is implemented by domain modules that own resources. The
// gate never reads domain tables itself.
type OwnershipSource interface {
	GetResourceOwnership(ctx context.Context, resourceType, resourceID string) (Ownership, error)
}

// ResourceRef scopes a request to one resource instance.
type ResourceRef struct {
	Type      string
	ID        string
	Relations []Relation
	// Override lets holders of this permission skip the ownership check.
	Override Permission
}

// OwnershipGuard checks per-instance access.
type OwnershipGuard struct {
	resolver *Resolver
}

func NewOwnershipGuard(resolver *Resolver) *OwnershipGuard {
	return &OwnershipGuard{resolver: resolver}
}

// Check passes when user is one of ownerIDs or the user's role holds
// override.
func (g *OwnershipGuard) Check(user *domain.User, override Permission, ownerIDs ...string) bool {
	if user == nil || user.ID == "" {
		return false
	}
	for _, id := range ownerIDs {
		if id == user.ID {
			return true
		}
	}
	if override == "" {
		return false
	}
	return g.resolver.Allows(user.Role, override)
}
