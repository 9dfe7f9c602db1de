package domain

import (
	"maps"
	"time"
)

// DefaultSignLanguage is used when a registration does not name a preferred sign language.
const DefaultSignLanguage = "ASL"

// Preferences is a per-user map of accessibility feature toggles. Values are opaque.
type Preferences map[string]any

// DefaultPreferences returns a fresh copy of the preferences every new account starts with.
func DefaultPreferences() Preferences {
	return Preferences{
		"visual_notifications":        true,
		"vibration_alerts":            true,
		"high_contrast_mode":          false,
		"sign_language_video_quality": "high",
		"captions_enabled":            true,
		"gesture_navigation":          true,
	}
}

// Merge returns a new map holding p overlaid with partial. Neither input is modified.
func (p Preferences) Merge(partial Preferences) Preferences {
	out := p.Clone()
	if out == nil {
		out = make(Preferences, len(partial))
	}
	maps.Copy(out, partial.Clone())
	return out
}

// Clone returns a copy of p. Nested maps and slices are copied too.
func (p Preferences) Clone() Preferences {
	if p == nil {
		return nil
	}
	out := make(Preferences, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = cloneValue(item)
		}
		return out
	case Preferences:
		return x.Clone()
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// User represents a registered DeafAuth account.
type User struct {
	ID                       string
	Username                 string
	Email                    string
	PasswordHash             string `json:"-"`
	PreferredSignLanguage    string
	AccessibilityPreferences Preferences
	DeafCommunityVerified    bool
	CreatedAt                time.Time
	LastLoginAt              *time.Time
}

// Clone returns a copy of u that shares no mutable state with it.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.AccessibilityPreferences = u.AccessibilityPreferences.Clone()
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		out.LastLoginAt = &t
	}
	return &out
}

// Sanitized returns a copy of u with the password hash cleared.
func (u *User) Sanitized() *User {
	out := u.Clone()
	if out != nil {
		out.PasswordHash = ""
	}
	return out
}

// Profile is the public view of a User. It never carries credentials.
type Profile struct {
	ID                       string      `json:"id"`
	Username                 string      `json:"username"`
	Email                    string      `json:"email"`
	PreferredSignLanguage    string      `json:"preferred_sign_language"`
	AccessibilityPreferences Preferences `json:"accessibility_preferences"`
	DeafCommunityVerified    bool        `json:"deaf_community_verified"`
	CreatedAt                string      `json:"created_at"`
	LastLogin                *string     `json:"last_login"`
}

// Profile projects u onto its public fields.
func (u *User) Profile() *Profile {
	if u == nil {
		return nil
	}
	p := &Profile{
		ID:                       u.ID,
		Username:                 u.Username,
		Email:                    u.Email,
		PreferredSignLanguage:    u.PreferredSignLanguage,
		AccessibilityPreferences: u.AccessibilityPreferences.Clone(),
		DeafCommunityVerified:    u.DeafCommunityVerified,
		CreatedAt:                u.CreatedAt.UTC().Format(time.RFC3339),
	}
	if u.LastLoginAt != nil {
		v := u.LastLoginAt.UTC().Format(time.RFC3339)
		p.LastLogin = &v
	}
	return p
}
