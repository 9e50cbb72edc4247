package registration

import (
	"context"
	"fmt"
	"time"

	"github.com/idframe/idframe/internal/domain/repository"
)

// InvitationValidator decides whether an invitation can still be accepted.
type InvitationValidator struct {
	invitations repository.InvitationRepository
	now         func() time.Time
}

// NewInvitationValidator builds a validator. now may be nil (defaults to
// time.Now); tests pin it.
func NewInvitationValidator(invitations repository.InvitationRepository, now func() time.Time) *InvitationValidator {
	if now == nil {
		now = time.Now
	}
	return &InvitationValidator{invitations: invitations, now: now}
}

// EnsureAcceptable checks the invitation record itself. Pure: no lookups,
// no side effects. Status is checked before expiry so a revoked invitation
// never reports as merely expired.
func (v *InvitationValidator) EnsureAcceptable(inv *repository.Invitation) error {
	if inv.Status != repository.InvitationPending {
		return fmt.Errorf("%w: status %s", ErrInvitationNotAcceptable, inv.Status)
	}
	if inv.Expired(v.now()) {
		return ErrInvitationExpired
	}
	return nil
}

// LoadAndEnsureAcceptable fetches then validates.
func (v *InvitationValidator) LoadAndEnsureAcceptable(ctx context.Context, id string) (*repository.Invitation, error) {
	inv, err := v.invitations.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrInvitationNotFound, id)
		}
		return nil, fmt.Errorf("registration: load invitation: %w", err)
	}
	if err := v.EnsureAcceptable(inv); err != nil {
		return nil, err
	}
	return inv, nil
}
