package account

import (
	"fmt"
	"strings"
)

// WorldID identifies one game world by number and language shard.
// Immutable once created.
type WorldID struct {
	Number   int    `json:"number"`
	Language string `json:"language"`
}

// String renders the canonical server prefix, e.g. "s59-en"
func (w WorldID) String() string {
	return fmt.Sprintf("s%d-%s", w.Number, w.Language)
}

// Key renders a filesystem-safe identifier, e.g. "59_en"
func (w WorldID) Key() string {
	return fmt.Sprintf("%d_%s", w.Number, w.Language)
}

// IsZero reports whether the world id is unset
func (w WorldID) IsZero() bool {
	return w.Number == 0 && w.Language == ""
}

// ParseWorldID parses the "s59-en" form
func ParseWorldID(s string) (WorldID, error) {
	var w WorldID
	if _, err := fmt.Sscanf(s, "s%d-%s", &w.Number, &w.Language); err != nil {
		return WorldID{}, fmt.Errorf("invalid world id %q: %w", s, err)
	}
	w.Language = strings.TrimSpace(w.Language)
	return w, nil
}

// ProxyConfig holds an optional per-account HTTP proxy.
type ProxyConfig struct {
	URL      string `json:"url"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Account is one lobby login identity. Tokens are refreshed by the login
// machine; the decrypted copy lives only as long as the parent process.
type Account struct {
	Email             string          `json:"email" validate:"required,email"`
	Secret            string          `json:"secret" validate:"required"`
	KnownWorlds       []WorldID       `json:"known_worlds,omitempty"`
	DefaultWorld      *WorldID        `json:"default_world,omitempty"`
	CachedAuthToken   string          `json:"cached_auth_token,omitempty"`
	CachedDeviceToken string          `json:"cached_device_token,omitempty"`
	Proxy             *ProxyConfig    `json:"proxy,omitempty"`
	NotificationPrefs map[string]any  `json:"notification_prefs,omitempty"`
}

// Key returns a filesystem-safe identifier derived from the email local part
func (a *Account) Key() string {
	local := a.Email
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, local)
}

// RememberWorld appends a world to the known list if not already present
func (a *Account) RememberWorld(w WorldID) {
	for _, known := range a.KnownWorlds {
		if known == w {
			return
		}
	}
	a.KnownWorlds = append(a.KnownWorlds, w)
}

// UpdateTokens stores freshly obtained lobby tokens
func (a *Account) UpdateTokens(authToken, deviceToken string) {
	if authToken != "" {
		a.CachedAuthToken = authToken
	}
	if deviceToken != "" {
		a.CachedDeviceToken = deviceToken
	}
}
