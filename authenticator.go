package clubhouse

import (
	"context"

	"github.com/goliatone/go-repository-bun"
)

// Auther orchestrates the two entry flows. Sign-in needs a known phone plus a
// fresh code; sign-up needs a live invite, a fresh code, and room left in the
// club.
type Auther struct {
	repo     RepositoryManager
	codes    CodeIssuer
	ledger   InviteLedger
	register *RegisterMemberHandler

	tokenService TokenService
	logger       Logger
	region       string
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(cfg Config, repo RepositoryManager, dispatcher Dispatcher) *Auther {
	ledger := NewInviteLedger(cfg, repo.Invites())

	return &Auther{
		repo:         repo,
		codes:        NewCodeIssuer(cfg, repo.VerificationCodes(), dispatcher),
		ledger:       ledger,
		register:     NewRegisterMemberHandler(cfg, repo, ledger),
		tokenService: NewTokenService(cfg, defLogger{}),
		logger:       defLogger{},
		region:       cfg.GetDefaultRegion(),
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// InviteLedger exposes the ledger for admin surfaces that mint codes.
func (s *Auther) InviteLedger() InviteLedger {
	return s.ledger
}

// StartSignIn sends a verification code to a phone that already belongs to a
// member. Unknown phones are rejected before any SMS goes out.
func (s *Auther) StartSignIn(ctx context.Context, rawPhone string) error {
	phone, err := CanonicalPhoneInRegion(rawPhone, s.region)
	if err != nil {
		return err
	}

	member, err := s.repo.Members().GetByPhone(ctx, phone)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrMemberNotFound
		}
		return err
	}

	if !member.IsActive() {
		s.logger.Warn("sign-in blocked for suspended member: %s", member.ID)
		return ErrMemberInactive
	}

	return s.codes.Request(ctx, phone)
}

// CompleteSignIn trades a correct code for a session token.
func (s *Auther) CompleteSignIn(ctx context.Context, rawPhone, code string) (string, error) {
	phone, err := s.codes.Check(ctx, rawPhone, code)
	if err != nil {
		return "", err
	}

	member, err := s.repo.Members().GetByPhone(ctx, phone)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return "", ErrMemberNotFound
		}
		return "", err
	}

	if !member.IsActive() {
		return "", ErrMemberInactive
	}

	return s.tokenService.Generate(member)
}

// StartSignUp vets the invite before any phone is collected, returning the
// invite so callers can show who extended it.
func (s *Auther) StartSignUp(ctx context.Context, inviteCode string) (*InviteCode, error) {
	return s.ledger.Peek(ctx, inviteCode)
}

// RequestSignUpCode sends a verification code to a phone joining through an
// invite. The phone must not already belong to a member.
func (s *Auther) RequestSignUpCode(ctx context.Context, inviteCode, rawPhone string) error {
	if _, err := s.ledger.Peek(ctx, inviteCode); err != nil {
		return err
	}

	phone, err := CanonicalPhoneInRegion(rawPhone, s.region)
	if err != nil {
		return err
	}

	_, err = s.repo.Members().GetByPhone(ctx, phone)
	if err == nil {
		return ErrPhoneAlreadyRegistered
	}
	if !repository.IsRecordNotFound(err) {
		return err
	}

	return s.codes.Request(ctx, phone)
}

// CompleteSignUp verifies the code, then spends the invite and creates the
// member in one transaction before minting the first session token.
func (s *Auther) CompleteSignUp(ctx context.Context, req SignUpRequest) (string, error) {
	phone, err := s.codes.Check(ctx, req.Phone, req.Code)
	if err != nil {
		return "", err
	}

	msg := &RegisterMemberMessage{
		InviteCode: req.InviteCode,
		Phone:      phone,
		Name:       req.Name,
	}

	if err := s.register.Execute(ctx, msg); err != nil {
		return "", err
	}

	return s.tokenService.Generate(msg.Member)
}

func (s *Auther) SessionFromToken(raw string) (Session, error) {
	claims, err := s.tokenService.Validate(raw)
	if err != nil {
		s.logger.Error("session token validation failed: %s", err)
		return nil, err
	}

	session, err := sessionFromClaims(claims)
	if err != nil {
		s.logger.Error("failed to create session from claims: %s", err)
		return nil, err
	}

	return session, nil
}

// MemberFromSession re-reads the member record so suspension lands on the
// next request, not at token expiry.
func (s *Auther) MemberFromSession(ctx context.Context, session Session) (*Member, error) {
	id, err := session.GetMemberUUID()
	if err != nil {
		return nil, ErrUnableToDecodeSession
	}

	member, err := s.repo.Members().GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}

	if !member.IsActive() {
		return nil, ErrMemberInactive
	}

	return member, nil
}

// RequireRole loads the session's member and enforces a minimum role.
func (s *Auther) RequireRole(ctx context.Context, session Session, role MemberRole) (*Member, error) {
	member, err := s.MemberFromSession(ctx, session)
	if err != nil {
		return nil, err
	}

	if !RoleIsAtLeast(member.Role, role) {
		s.logger.Warn("role check failed: member %s is %s, needs %s", member.ID, member.Role, role)
		return nil, ErrForbidden
	}

	return member, nil
}
