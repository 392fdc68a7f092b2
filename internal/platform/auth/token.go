package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carried by an issued bearer token.
type Claims struct {
	jwt.RegisteredClaims
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// Minter issues and verifies HS256 bearer tokens.
type Minter struct {
	key []byte
	ttl time.Duration
}

func NewMinter(signingKey []byte, ttl time.Duration) *Minter {
	return &Minter{key: signingKey, ttl: ttl}
}

// IssuedToken is the result of minting a token for a user.
type IssuedToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// Issue mints a token for the given actor. The jti is recorded so that
// logout can revoke every outstanding token for the user.
func (m *Minter) Issue(actor Actor) (IssuedToken, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(m.ttl)
	jti := uuid.NewString()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Name:  actor.Name,
		Email: actor.Email,
		Role:  actor.Role,
	}
	if actor.OrganizationID != nil {
		claims.OrganizationID = actor.OrganizationID.String()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}
	return IssuedToken{Token: signed, JTI: jti, ExpiresAt: expiresAt}, nil
}

// Verify parses and validates a token string, returning its claims.
func (m *Minter) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ActorFromClaims reconstructs the Actor carried by verified claims.
func ActorFromClaims(claims *Claims) (Actor, error) {
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Actor{}, fmt.Errorf("invalid subject: %w", err)
	}
	actor := Actor{
		ID:    userID,
		Name:  claims.Name,
		Email: claims.Email,
		Role:  claims.Role,
	}
	if claims.OrganizationID != "" {
		orgID, err := uuid.Parse(claims.OrganizationID)
		if err != nil {
			return Actor{}, fmt.Errorf("invalid organization_id: %w", err)
		}
		actor.OrganizationID = &orgID
	}
	return actor, nil
}
