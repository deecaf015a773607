package game

import (
	"regexp"
	"sync"
)

// TokenPlaceholder marks where the current action-request token must be
// injected into a POST url, param, or payload value.
const TokenPlaceholder = "TOKEN"

var (
	// The server emits the action-request token in both JSON and
	// attribute form depending on the view
	actionRequestRe = regexp.MustCompile(`actionRequest["']?\s*[:=]\s*["']([A-Za-z0-9]+)["']`)

	currentCityRe = regexp.MustCompile(`currentCityId["']?\s*[:=]\s*["']?(\d+)`)
)

// TokenCache holds the latest CSRF token and current-city id scraped from
// responses. Both fields refresh on every response that carries them.
type TokenCache struct {
	mu     sync.Mutex
	csrf   string
	cityID string
}

// NewTokenCache creates an empty cache
func NewTokenCache() *TokenCache {
	return &TokenCache{}
}

// TryExtract parses the first token field and first current-city field from
// a response body; either, both, or neither may update.
func (t *TokenCache) TryExtract(body string) {
	csrf := ""
	if m := actionRequestRe.FindStringSubmatch(body); m != nil {
		csrf = m[1]
	}
	cityID := ""
	if m := currentCityRe.FindStringSubmatch(body); m != nil {
		cityID = m[1]
	}

	if csrf == "" && cityID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if csrf != "" {
		t.csrf = csrf
	}
	if cityID != "" {
		t.cityID = cityID
	}
}

// CSRF returns the cached action-request token ("" when invalidated)
func (t *TokenCache) CSRF() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.csrf
}

// CityID returns the cached current-city id
func (t *TokenCache) CityID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cityID
}

// InvalidateCSRF clears the token, forcing the next POST to repopulate it
// with a fresh GET
func (t *TokenCache) InvalidateCSRF() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.csrf = ""
}

// Seed primes the cache from a deserialized session snapshot
func (t *TokenCache) Seed(csrf, cityID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if csrf != "" {
		t.csrf = csrf
	}
	if cityID != "" {
		t.cityID = cityID
	}
}
