package registration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/idframe/idframe/internal/domain/repository"
	"github.com/idframe/idframe/internal/email"
	"github.com/idframe/idframe/internal/observability/logger"
	"github.com/idframe/idframe/internal/sso"
)

// IdentityRegistrar creates the identity record for an accepted invitation.
// The core does not own user accounts; whatever does plugs in here.
type IdentityRegistrar interface {
	RegisterIdentity(ctx context.Context, inv *repository.Invitation) error
}

// NoopRegistrar satisfies IdentityRegistrar without doing anything.
type NoopRegistrar struct{}

func (NoopRegistrar) RegisterIdentity(ctx context.Context, inv *repository.Invitation) error {
	return nil
}

// InvitationService owns the invitation lifecycle: create with notification
// mail, accept exactly once, revoke exactly once.
type InvitationService struct {
	invitations repository.InvitationRepository
	validator   *InvitationValidator
	resolver    *sso.ConfigResolver
	registrar   IdentityRegistrar
	mail        email.Sender

	ttl           time.Duration
	acceptURLBase string
	now           func() time.Time
	log           *zap.Logger
}

// InvitationServiceDeps carries the collaborators for NewInvitationService.
type InvitationServiceDeps struct {
	Invitations repository.InvitationRepository
	Validator   *InvitationValidator
	Resolver    *sso.ConfigResolver
	Registrar   IdentityRegistrar // nil means NoopRegistrar
	Mail        email.Sender      // nil means email.NoopSender

	TTL           time.Duration
	AcceptURLBase string
	Now           func() time.Time // nil means time.Now
}

// NewInvitationService builds the service from its deps.
func NewInvitationService(d InvitationServiceDeps) *InvitationService {
	if d.Registrar == nil {
		d.Registrar = NoopRegistrar{}
	}
	if d.Mail == nil {
		d.Mail = email.NoopSender{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &InvitationService{
		invitations:   d.Invitations,
		validator:     d.Validator,
		resolver:      d.Resolver,
		registrar:     d.Registrar,
		mail:          d.Mail,
		ttl:           d.TTL,
		acceptURLBase: d.AcceptURLBase,
		now:           d.Now,
		log:           logger.Named("registration.invitations"),
	}
}

// CreateInvitation mints a PENDING invitation and sends the notification
// mail. The email address is lower-cased and trimmed before storage so
// lookups and duplicate checks stay case-insensitive.
//
// Mail failure does not roll back the invitation; it is logged and the
// invitation stays usable through its accept link.
func (s *InvitationService) CreateInvitation(ctx context.Context, tenantID, emailAddr string, roles []string) (*repository.Invitation, error) {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	if emailAddr == "" {
		return nil, fmt.Errorf("registration: %w: blank email", repository.ErrInvalidInput)
	}

	now := s.now()
	inv := &repository.Invitation{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Email:     emailAddr,
		Roles:     append([]string(nil), roles...),
		Status:    repository.InvitationPending,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("registration: create invitation: %w", err)
	}

	if err := s.mail.Send(ctx, inv.Email,
		"You have been invited",
		s.inviteHTML(inv), s.inviteText(inv),
	); err != nil {
		s.log.Warn("invitation mail failed",
			logger.InvitationID(inv.ID),
			logger.TenantID(inv.TenantID),
			logger.Err(err),
		)
	}

	s.log.Info("invitation created",
		logger.InvitationID(inv.ID),
		logger.TenantID(inv.TenantID),
		logger.Email(inv.Email),
	)
	return inv, nil
}

// AcceptInvitation validates the invitation, flips it PENDING to ACCEPTED
// exactly once, then registers the identity. A concurrent accept or revoke
// loses the conditional update and reports ErrInvitationNotAcceptable.
func (s *InvitationService) AcceptInvitation(ctx context.Context, id string) (*repository.Invitation, error) {
	inv, err := s.validator.LoadAndEnsureAcceptable(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.invitations.UpdateStatus(ctx, inv.ID, repository.InvitationPending, repository.InvitationAccepted)
	if err != nil {
		if repository.IsConflict(err) {
			return nil, fmt.Errorf("%w: already decided", ErrInvitationNotAcceptable)
		}
		return nil, fmt.Errorf("registration: accept invitation: %w", err)
	}
	inv.Status = repository.InvitationAccepted

	if err := s.registrar.RegisterIdentity(ctx, inv); err != nil {
		// The status flip is final; identity creation is retried out of
		// band, not by re-opening the invitation.
		s.log.Error("identity registration failed after accept",
			logger.InvitationID(inv.ID),
			logger.TenantID(inv.TenantID),
			logger.Err(err),
		)
		return nil, fmt.Errorf("registration: register identity: %w", err)
	}

	s.log.Info("invitation accepted",
		logger.InvitationID(inv.ID),
		logger.TenantID(inv.TenantID),
	)
	return inv, nil
}

// RevokeInvitation flips PENDING to REVOKED exactly once.
func (s *InvitationService) RevokeInvitation(ctx context.Context, id string) error {
	err := s.invitations.UpdateStatus(ctx, id, repository.InvitationPending, repository.InvitationRevoked)
	if err != nil {
		if repository.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrInvitationNotFound, id)
		}
		if repository.IsConflict(err) {
			return fmt.Errorf("%w: already decided", ErrInvitationNotAcceptable)
		}
		return fmt.Errorf("registration: revoke invitation: %w", err)
	}
	s.log.Info("invitation revoked", logger.InvitationID(id))
	return nil
}

// ProvidersForInvitation lists the SSO provider ids the invited user can
// sign in with. Validates the invitation first so a dead link does not leak
// which providers the tenant runs.
func (s *InvitationService) ProvidersForInvitation(ctx context.Context, id string) ([]string, error) {
	inv, err := s.validator.LoadAndEnsureAcceptable(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.resolver.ActiveProviderIDs(ctx, inv.TenantID)
}

func (s *InvitationService) acceptURL(inv *repository.Invitation) string {
	return strings.TrimRight(s.acceptURLBase, "/") + "/" + inv.ID
}

func (s *InvitationService) inviteHTML(inv *repository.Invitation) string {
	return fmt.Sprintf(
		"<p>You have been invited to join a workspace.</p><p><a href=%q>Accept invitation</a></p><p>The link expires on %s.</p>",
		s.acceptURL(inv), inv.ExpiresAt.UTC().Format(time.RFC1123),
	)
}

func (s *InvitationService) inviteText(inv *repository.Invitation) string {
	return fmt.Sprintf(
		"You have been invited to join a workspace.\n\nAccept: %s\n\nThe link expires on %s.\n",
		s.acceptURL(inv), inv.ExpiresAt.UTC().Format(time.RFC1123),
	)
}
