package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"deafauth/internal/auth"
	"deafauth/internal/domain"
	"deafauth/internal/repository"
)

// ErrUnauthorized is the only failure the guard reports. Bad, expired and
// orphaned tokens all map to it.
var ErrUnauthorized = errors.New("invalid or expired DeafAuth token")

// TokenVerifier decodes and validates a bearer token.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Guard resolves bearer tokens to live accounts.
type Guard struct {
	tokens TokenVerifier
	users  repository.UserRepository
	log    logrus.FieldLogger
}

func NewGuard(tokens TokenVerifier, users repository.UserRepository, log logrus.FieldLogger) *Guard {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Guard{tokens: tokens, users: users, log: log.WithField("component", "auth_guard")}
}

// Authenticate returns the account behind bearer, with the password hash removed.
func (g *Guard) Authenticate(ctx context.Context, bearer string) (*domain.User, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return nil, ErrUnauthorized
	}

	claims, err := g.tokens.Verify(bearer)
	if err != nil {
		g.log.WithError(err).Debug("token rejected")
		return nil, ErrUnauthorized
	}

	user, err := g.users.FindByEmail(ctx, claims.Email())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			g.log.WithField("email", claims.Email()).Debug("token subject no longer exists")
		} else {
			g.log.WithError(err).Error("resolve token subject")
		}
		return nil, ErrUnauthorized
	}
	return user.Sanitized(), nil
}
