package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrRevoked      = errors.New("session has been logged out")
)

// Session identifies the signed-in provider. It is created on login, carried
// explicitly through every request and torn down on logout.
type Session struct {
	ID         string
	ProviderID uuid.UUID
	Name       string
	Email      string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Revocations remembers logged-out sessions until they would have expired.
type Revocations interface {
	Revoke(ctx context.Context, sessionID string, until time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

type claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret      []byte
	ttl         time.Duration
	revocations Revocations
	now         func() time.Time
}

func NewManager(secret string, ttl time.Duration, revocations Revocations) *Manager {
	return &Manager{
		secret:      []byte(secret),
		ttl:         ttl,
		revocations: revocations,
		now:         time.Now,
	}
}

// Issue starts a session for the provider and returns its signed token.
func (m *Manager) Issue(providerID uuid.UUID, name, email string) (string, Session, error) {
	if providerID == uuid.Nil {
		return "", Session{}, errors.New("session: provider id is required")
	}

	now := m.now().UTC().Truncate(time.Second)
	s := Session{
		ID:         uuid.NewString(),
		ProviderID: providerID,
		Name:       name,
		Email:      email,
		IssuedAt:   now,
		ExpiresAt:  now.Add(m.ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name:  name,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID,
			Subject:   providerID.String(),
			IssuedAt:  jwt.NewNumericDate(s.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("session: sign token: %w", err)
	}
	return signed, s, nil
}

// Parse verifies signature, expiry and revocation of a token.
func (m *Manager) Parse(ctx context.Context, raw string) (Session, error) {
	var c claims
	token, err := jwt.ParseWithClaims(raw, &c, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return Session{}, ErrInvalidToken
	}

	providerID, err := uuid.Parse(c.Subject)
	if err != nil || c.ID == "" {
		return Session{}, ErrInvalidToken
	}

	if m.revocations != nil {
		revoked, err := m.revocations.IsRevoked(ctx, c.ID)
		if err != nil {
			return Session{}, fmt.Errorf("session: check revocation: %w", err)
		}
		if revoked {
			return Session{}, ErrRevoked
		}
	}

	s := Session{
		ID:         c.ID,
		ProviderID: providerID,
		Name:       c.Name,
		Email:      c.Email,
		ExpiresAt:  c.ExpiresAt.Time,
	}
	if c.IssuedAt != nil {
		s.IssuedAt = c.IssuedAt.Time
	}
	return s, nil
}

// Revoke ends the session; later Parse calls with its token fail with ErrRevoked.
func (m *Manager) Revoke(ctx context.Context, s Session) error {
	if m.revocations == nil {
		return errors.New("session: revocation store not configured")
	}
	if err := m.revocations.Revoke(ctx, s.ID, s.ExpiresAt); err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}
	return nil
}

type contextKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}
