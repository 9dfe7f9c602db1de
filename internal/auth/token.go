package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"deafauth/internal/domain"
)

// DefaultTokenTTL is longer than a typical access token to give users relying on
// interpreters or assistive tooling an extended session.
const DefaultTokenTTL = 120 * time.Minute

const (
	DefaultIssuer   = "deafauth.mbtq.dev"
	DefaultAudience = "mbtq-ecosystem"
)

var (
	// ErrTokenInvalid covers bad signatures, wrong issuer or audience, and malformed tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned once the token's expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrMissingSecret is returned when a TokenService is built without a signing secret.
	ErrMissingSecret = errors.New("jwt secret is required")
)

// TokenConfig configures a TokenService.
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// TokenService issues and verifies HS256-signed DeafAuth tokens. It keeps no
// per-token state, so it is safe for concurrent use.
type TokenService struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, ErrMissingSecret
	}
	s := &TokenService{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
		now:      cfg.Now,
	}
	if s.issuer == "" {
		s.issuer = DefaultIssuer
	}
	if s.audience == "" {
		s.audience = DefaultAudience
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTokenTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// TTL returns the lifetime applied when Issue is called without one.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for user valid for ttl (the service default when ttl <= 0).
// The returned claims are exactly what Verify will yield for the token.
func (s *TokenService) Issue(user *domain.User, ttl time.Duration) (string, *Claims, error) {
	if user == nil {
		return "", nil, errors.New("issue token: nil user")
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	prefs, err := jsonPreferences(user.AccessibilityPreferences)
	if err != nil {
		return "", nil, err
	}

	// NumericDate only carries whole seconds on the wire; build the same value a decoder would
	now := time.Unix(s.now().Unix(), 0)
	claims := &Claims{
		UserID:                   user.ID,
		Username:                 user.Username,
		PreferredSignLanguage:    user.PreferredSignLanguage,
		DeafCommunityVerified:    user.DeafCommunityVerified,
		AccessibilityPreferences: prefs,
		AuthSystem:               AuthSystem,
		AuthType:                 AuthType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks the signature, issuer, audience and expiry of token. It returns
// ErrTokenExpired or ErrTokenInvalid, never the underlying parser error.
func (s *TokenService) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// jsonPreferences passes prefs through JSON so the claims hold the same value
// types (float64 numbers, map[string]any objects) a decoded token does.
func jsonPreferences(prefs domain.Preferences) (domain.Preferences, error) {
	if prefs == nil {
		return nil, nil
	}
	raw, err := json.Marshal(prefs)
	if err != nil {
		return nil, fmt.Errorf("encode accessibility preferences: %w", err)
	}
	var out domain.Preferences
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode accessibility preferences: %w", err)
	}
	return out, nil
}

func (s *TokenService) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
	}
	return s.secret, nil
}
