package account

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinrec/clinrec/internal/domain/auditevent"
	"github.com/clinrec/clinrec/internal/platform/apperr"
	"github.com/clinrec/clinrec/internal/platform/auth"
	"github.com/clinrec/clinrec/internal/platform/db"
)

const resourceType = "users"

const minPasswordLength = 8

type Service struct {
	repo        Repository
	minter      *auth.Minter
	revocations auth.RevocationStore
	audit       *auditevent.Service
	issued      prometheus.Counter
	revoked     prometheus.Counter
}

func NewService(repo Repository, minter *auth.Minter, revocations auth.RevocationStore,
	audit *auditevent.Service, issued, revoked prometheus.Counter) *Service {
	return &Service{
		repo:        repo,
		minter:      minter,
		revocations: revocations,
		audit:       audit,
		issued:      issued,
		revoked:     revoked,
	}
}

type RegisterInput struct {
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Password       string     `json:"password"`
	Role           string     `json:"role"`
	OrganizationID *uuid.UUID `json:"organization_id"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is the login payload handed back to the client.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	fields := map[string]string{}
	if strings.TrimSpace(in.Name) == "" {
		fields["name"] = "required"
	}
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		fields["email"] = "must be a valid email address"
	}
	if len(in.Password) < minPasswordLength {
		fields["password"] = "must be at least 8 characters"
	}
	role := in.Role
	if role == "" {
		role = RoleStaff
	} else if !validRoles[role] {
		fields["role"] = "must be one of admin, staff"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("validation failed", fields)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Storage("hash password", err)
	}

	u := &User{
		Name:           strings.TrimSpace(in.Name),
		Email:          email,
		PasswordHash:   string(hash),
		Role:           role,
		OrganizationID: in.OrganizationID,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if db.UniqueViolation(err, "users_email_key") {
			return nil, apperr.Conflict("an account with email %s already exists", email)
		}
		return nil, apperr.Storage("create user", err)
	}
	s.audit.Record(ctx, actorOf(u), auditevent.ActionCreate, resourceType, u.ID.String(), map[string]interface{}{
		"email": u.Email,
	})
	return u, nil
}

func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	u, err := s.repo.GetByEmail(ctx, strings.TrimSpace(in.Email))
	if err != nil {
		return nil, apperr.Auth("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return nil, apperr.Auth("invalid credentials")
	}

	actor := actorOf(u)
	issued, err := s.minter.Issue(actor)
	if err != nil {
		return nil, apperr.Storage("issue token", err)
	}
	if err := s.revocations.Track(ctx, issued.JTI, u.ID.String(), issued.ExpiresAt); err != nil {
		return nil, apperr.Storage("track token", err)
	}
	s.issued.Inc()
	s.audit.Record(ctx, actor, auditevent.ActionLogin, resourceType, u.ID.String(), nil)

	return &Session{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		Name:      u.Name,
		Email:     u.Email,
	}, nil
}

// Logout invalidates every outstanding token for the caller, not just the
// one presented.
func (s *Service) Logout(ctx context.Context, actor auth.Actor) error {
	n, err := s.revocations.RevokeAllForUser(ctx, actor.ID.String())
	if err != nil {
		return apperr.Storage("revoke tokens", err)
	}
	s.revoked.Add(float64(n))
	s.audit.Record(ctx, actor, auditevent.ActionLogout, resourceType, actor.ID.String(), map[string]interface{}{
		"tokens_revoked": n,
	})
	return nil
}

func (s *Service) Profile(ctx context.Context, actor auth.Actor) (*User, error) {
	u, err := s.repo.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, apperr.NotFound("user")
	}
	return u, nil
}

func actorOf(u *User) auth.Actor {
	return auth.Actor{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Role:           u.Role,
		OrganizationID: u.OrganizationID,
	}
}
