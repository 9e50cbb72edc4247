package repository

import (
	"context"
	"time"
)

// InvitationStatus is the persisted lifecycle state of an invitation.
// Expiry is derived from ExpiresAt, never stored as a status.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationRevoked  InvitationStatus = "REVOKED"
)

// Invitation invites an email address into a tenant with a set of roles.
//
// Lifecycle: created PENDING; moves to ACCEPTED exactly once on successful
// registration, or to REVOKED exactly once by an administrator. A PENDING
// invitation past ExpiresAt is treated as expired without a status change.
type Invitation struct {
	ID        string
	TenantID  string
	Email     string // lower-cased, trimmed at creation
	Roles     []string
	Status    InvitationStatus
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the invitation's deadline has passed at now.
func (i *Invitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// InvitationRepository defines operations over invitations.
type InvitationRepository interface {
	// GetByID fetches an invitation. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*Invitation, error)

	// Create persists a new invitation. Returns ErrConflict when the id
	// already exists.
	Create(ctx context.Context, inv *Invitation) error

	// UpdateStatus moves an invitation from one status to another.
	// The transition is conditional on the current status so concurrent
	// accept/revoke races resolve to exactly one winner; returns ErrConflict
	// when the invitation is no longer in the expected status.
	UpdateStatus(ctx context.Context, id string, from, to InvitationStatus) error
}
