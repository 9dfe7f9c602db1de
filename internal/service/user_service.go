package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"deafauth/internal/auth"
	"deafauth/internal/domain"
	"deafauth/internal/repository"
)

// MinUsernameLength is the shortest username accepted at registration, in characters.
const MinUsernameLength = 3

var (
	// ErrDuplicateEmail is returned when registering an email that already has an account.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrWeakUsername is returned when the username is shorter than MinUsernameLength.
	ErrWeakUsername = fmt.Errorf("username must be at least %d characters long", MinUsernameLength)
	// ErrInvalidInput is returned for registration payloads that cannot be stored.
	ErrInvalidInput = errors.New("invalid registration input")
	// ErrInvalidCredentials indicates an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrNotFound is returned when the target account does not exist.
	ErrNotFound = errors.New("user not found")
)

// RegisterInput carries a registration request. Nil optional fields take defaults.
type RegisterInput struct {
	Username                  string
	Email                     string
	Password                  string
	PreferredSignLanguage     *string
	AccessibilityPreferences  domain.Preferences
	DeafCommunityVerification *bool
}

// SignInResult is returned from a successful sign-in.
type SignInResult struct {
	AccessToken string
	Claims      *auth.Claims
	ExpiresIn   time.Duration
	Profile     *domain.Profile
}

// UserService describes the DeafAuth account lifecycle.
type UserService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.Profile, error)
	SignIn(ctx context.Context, email, password string) (*SignInResult, error)
	Profile(ctx context.Context, id string) (*domain.Profile, error)
	UpdatePreferences(ctx context.Context, id string, partial domain.Preferences) (*domain.Profile, error)
}

// TokenIssuer signs tokens for a user.
type TokenIssuer interface {
	Issue(user *domain.User, ttl time.Duration) (string, *auth.Claims, error)
	TTL() time.Duration
}

type userService struct {
	users  repository.UserRepository
	hasher auth.Hasher
	tokens TokenIssuer
	log    logrus.FieldLogger
	now    func() time.Time

	// compared against when the email is unknown so both failure paths cost a bcrypt round
	dummyHash string
}

func NewUserService(users repository.UserRepository, hasher auth.Hasher, tokens TokenIssuer, log logrus.FieldLogger) (UserService, error) {
	dummy, err := hasher.Hash("deafauth-timing-equaliser")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &userService{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		log:       log.WithField("component", "user_service"),
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

func (s *userService) Register(ctx context.Context, in RegisterInput) (*domain.Profile, error) {
	if utf8.RuneCountInString(in.Username) < MinUsernameLength {
		return nil, ErrWeakUsername
	}
	if strings.TrimSpace(in.Email) == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmptyPassword) || errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, err
	}

	signLanguage := domain.DefaultSignLanguage
	if in.PreferredSignLanguage != nil && *in.PreferredSignLanguage != "" {
		signLanguage = *in.PreferredSignLanguage
	}
	verified := in.DeafCommunityVerification != nil && *in.DeafCommunityVerification

	user := &domain.User{
		Username:                 in.Username,
		Email:                    in.Email,
		PasswordHash:             hash,
		PreferredSignLanguage:    signLanguage,
		AccessibilityPreferences: domain.DefaultPreferences().Merge(in.AccessibilityPreferences),
		DeafCommunityVerified:    verified,
		CreatedAt:                s.now().UTC(),
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.WithFields(logrus.Fields{"user_id": created.ID, "email": created.Email}).Info("user registered")
	return created.Profile(), nil
}

func (s *userService) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("find user: %w", err)
		}
		s.hasher.Verify(password, s.dummyHash)
		s.log.WithField("email", email).Info("sign-in rejected")
		return nil, ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.log.WithField("email", email).Info("sign-in rejected")
		return nil, ErrInvalidCredentials
	}

	at := s.now().UTC()
	if err := s.users.RecordLogin(ctx, user.ID, at); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	user.LastLoginAt = &at

	token, claims, err := s.tokens.Issue(user, 0)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "email": user.Email}).Info("user signed in")
	return &SignInResult{
		AccessToken: token,
		Claims:      claims,
		ExpiresIn:   s.tokens.TTL(),
		Profile:     user.Profile(),
	}, nil
}

func (s *userService) Profile(ctx context.Context, id string) (*domain.Profile, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user.Profile(), nil
}

func (s *userService) UpdatePreferences(ctx context.Context, id string, partial domain.Preferences) (*domain.Profile, error) {
	user, err := s.users.UpdatePreferences(ctx, id, partial)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update preferences: %w", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": id, "keys": len(partial)}).Info("accessibility preferences updated")
	return user.Profile(), nil
}
