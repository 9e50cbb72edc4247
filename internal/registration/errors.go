// Package registration governs whether a registration or invitation flow is
// allowed to start or finish: invitation lifecycle, domain uniqueness, and
// provider-configured checks shared by the direct, invitation, and SSO
// onboarding entry points.
package registration

import "errors"

var (
	// ErrInvitationNotFound means no invitation exists with the given id.
	ErrInvitationNotFound = errors.New("registration: invitation not found")

	// ErrInvitationNotAcceptable means the invitation left PENDING
	// (accepted or revoked already). Checked before expiry on purpose:
	// a revoked invitation reports revoked even when it is also past its
	// deadline.
	ErrInvitationNotAcceptable = errors.New("registration: invitation not acceptable")

	// ErrInvitationExpired means a PENDING invitation whose deadline passed.
	ErrInvitationExpired = errors.New("registration: invitation expired")

	// ErrDomainAlreadyExists means the tenant domain is taken
	// (case-insensitive).
	ErrDomainAlreadyExists = errors.New("registration: domain already exists")

	// ErrProviderNotConfigured means the provider id is not usable for the
	// tenant (or for onboarding). Distinct from "tenant not configured at
	// all": the tenant exists, this one provider does not.
	ErrProviderNotConfigured = errors.New("registration: provider not configured")
)
