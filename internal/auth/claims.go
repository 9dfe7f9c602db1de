package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"deafauth/internal/domain"
)

const (
	// AuthSystem names the issuing system inside every token.
	AuthSystem = "DeafAuth"
	// AuthType tags tokens issued to deaf community accounts.
	AuthType = "deaf_community"
)

// Claims is the payload of a DeafAuth token. Subject carries the account email.
type Claims struct {
	UserID                   string             `json:"user_id"`
	Username                 string             `json:"username"`
	PreferredSignLanguage    string             `json:"preferred_sign_language"`
	DeafCommunityVerified    bool               `json:"deaf_community_verified"`
	AccessibilityPreferences domain.Preferences `json:"accessibility_preferences"`
	AuthSystem               string             `json:"auth_system"`
	AuthType                 string             `json:"auth_type"`
	jwt.RegisteredClaims
}

// Email returns the subject the token was issued to.
func (c *Claims) Email() string {
	return c.Subject
}
