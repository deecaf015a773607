// Package game implements the long-lived authenticated HTTP session against
// one game world: rate limiting, action-request token injection, expiry
// detection with transparent re-login, and bounded request diagnostics.
package game

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/andrescamacho/polisbot/internal/domain/account"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
	"github.com/andrescamacho/polisbot/internal/infrastructure/config"
	"github.com/andrescamacho/polisbot/internal/infrastructure/registry"
)

// Options tune one Get/Post call
type Options struct {
	// IgnoreExpiry skips expired-page detection (used by the health
	// pinger, which handles expiry itself)
	IgnoreExpiry bool

	// SkipIndex treats the url tail as a full path instead of appending
	// it to the index.php query base
	SkipIndex bool
}

// RequestTrace is one diagnostic ring entry
type RequestTrace struct {
	Method      string
	URL         string
	ParamKeys   []string
	PayloadKeys []string
	Status      int
	Elapsed     time.Duration
	At          time.Time
}

// ReauthFunc re-runs the login machine and applies the fresh login onto the
// session. Set by the lobby adapter after the first successful login.
type ReauthFunc func(ctx context.Context, s *Session) error

// Session is the authenticated HTTP client for one game world. The parent
// shell owns one; every detached worker owns a separately reconstructed one.
type Session struct {
	cfg    config.SessionConfig
	clock  shared.Clock
	logger *log.Logger

	client  *http.Client
	limiter *RateLimiter
	tokens  *TokenCache
	history *shared.Ring[RequestTrace]

	host        string
	urlBase     string
	headers     map[string]string
	world       account.WorldID
	playerName  string
	characterID string

	account *account.Account
	reauth  ReauthFunc

	mu          sync.Mutex
	status      string
	isParent    bool
	proxyActive bool

	registry *registry.Registry
	pinger   *HealthPinger
}

// NewSession builds a session for the given game host. The cookie jar starts
// empty; the lobby adapter populates it during login.
func NewSession(
	cfg config.SessionConfig,
	acct *account.Account,
	host string,
	world account.WorldID,
	headers map[string]string,
	clock shared.Clock,
) (*Session, error) {
	if clock == nil {
		clock = shared.NewRealClock()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport := &http.Transport{}
	proxyActive := false
	if acct != nil && acct.Proxy != nil && acct.Proxy.URL != "" {
		proxyURL, err := url.Parse(acct.Proxy.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		if acct.Proxy.Username != "" {
			proxyURL.User = url.UserPassword(acct.Proxy.Username, acct.Proxy.Password)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
		proxyActive = true
	}

	s := &Session{
		cfg:    cfg,
		clock:  clock,
		logger: log.New(os.Stderr, "[session] ", log.LstdFlags),
		client: &http.Client{
			Jar:       jar,
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
		limiter:     NewRateLimiter(cfg.MinInterval),
		tokens:      NewTokenCache(),
		history:     shared.NewRing[RequestTrace](cfg.HistorySize),
		host:        host,
		urlBase:     "https://" + host + "/index.php?",
		headers:     headers,
		world:       world,
		account:     acct,
		isParent:    true,
		proxyActive: proxyActive,
	}
	return s, nil
}

// Accessors

func (s *Session) Host() string             { return s.host }
func (s *Session) URLBase() string          { return s.urlBase }
func (s *Session) World() account.WorldID   { return s.world }
func (s *Session) PlayerName() string       { return s.playerName }
func (s *Session) CharacterID() string      { return s.characterID }
func (s *Session) Account() *account.Account { return s.account }
func (s *Session) Tokens() *TokenCache      { return s.tokens }
func (s *Session) CurrentCityID() string    { return s.tokens.CityID() }

// SetIdentity records the player identity resolved during login
func (s *Session) SetIdentity(playerName, characterID string) {
	s.playerName = playerName
	s.characterID = characterID
}

// SetReauth installs the re-login hook
func (s *Session) SetReauth(fn ReauthFunc) { s.reauth = fn }

// SetRegistry attaches the process registry used by SetStatus in workers
func (s *Session) SetRegistry(reg *registry.Registry) { s.registry = reg }

// MarkWorker flags the session as belonging to a detached worker
func (s *Session) MarkWorker() {
	s.mu.Lock()
	s.isParent = false
	s.mu.Unlock()
}

// IsParent reports whether this session belongs to the parent shell
func (s *Session) IsParent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isParent
}

// ProxyActive reports whether an account proxy is applied
func (s *Session) ProxyActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proxyActive
}

// Status returns the last status string set on this session
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus updates the visible worker status; in a worker it also refreshes
// the registry heartbeat.
func (s *Session) SetStatus(status string) {
	s.mu.Lock()
	s.status = status
	parent := s.isParent
	s.mu.Unlock()

	if !parent && s.registry != nil {
		if err := s.registry.UpdateStatus(os.Getpid(), status); err != nil {
			s.logger.Printf("heartbeat update failed: %v", err)
		}
	}
}

// History returns the bounded request trace, oldest first
func (s *Session) History() []RequestTrace {
	return s.history.Snapshot()
}

// RateLimiter exposes the limiter for diagnostics and tests
func (s *Session) RateLimiter() *RateLimiter { return s.limiter }

// SetTransport replaces the HTTP transport, keeping the cookie jar (tests)
func (s *Session) SetTransport(rt http.RoundTripper) {
	s.client.Transport = rt
}

// Get issues a rate-limited GET. Network errors sleep the connection backoff
// and retry; a maintenance page sleeps its backoff and retries; an expired
// page (unless ignored) triggers one re-login and one retry.
func (s *Session) Get(ctx context.Context, tail string, opts *Options) (string, error) {
	if opts == nil {
		opts = &Options{}
	}
	body, _, err := s.roundTrip(ctx, http.MethodGet, tail, nil, opts)
	return body, err
}

// FullResponse carries the body plus transport metadata for the callers
// that need more than the page content
type FullResponse struct {
	Body   string
	Status int
}

// GetFull is Get returning the status code alongside the body
func (s *Session) GetFull(ctx context.Context, tail string, opts *Options) (*FullResponse, error) {
	if opts == nil {
		opts = &Options{}
	}
	body, status, err := s.roundTrip(ctx, http.MethodGet, tail, nil, opts)
	if err != nil {
		return nil, err
	}
	return &FullResponse{Body: body, Status: status}, nil
}

// Post issues a rate-limited form POST. The current action-request token is
// injected into any placeholder in the url or payload; ajax=1 is added when
// missing. A WRONG_REQUEST_ID response invalidates the token cache and
// retries from scratch exactly once.
func (s *Session) Post(ctx context.Context, tail string, payload url.Values, opts *Options) (string, error) {
	if opts == nil {
		opts = &Options{}
	}
	if payload == nil {
		payload = url.Values{}
	}

	staleRetried := false
	for {
		if err := s.ensureToken(ctx); err != nil {
			return "", err
		}

		token := s.tokens.CSRF()
		sentTail := strings.ReplaceAll(tail, TokenPlaceholder, token)
		sent := injectToken(payload, token)
		if sent.Get("ajax") == "" {
			sent.Set("ajax", "1")
		}

		body, _, err := s.roundTrip(ctx, http.MethodPost, sentTail, sent, opts)
		if err != nil {
			return "", err
		}

		if IsStaleToken(body) {
			s.tokens.InvalidateCSRF()
			if staleRetried {
				return "", shared.NewStaleTokenError()
			}
			staleRetried = true
			continue
		}

		return body, nil
	}
}

// ensureToken repopulates an invalidated token cache with a cheap GET
func (s *Session) ensureToken(ctx context.Context) error {
	if s.tokens.CSRF() != "" {
		return nil
	}
	if _, err := s.Get(ctx, "view=updateGlobalData", nil); err != nil {
		return fmt.Errorf("failed to refresh action-request token: %w", err)
	}
	if s.tokens.CSRF() == "" {
		return shared.NewStaleTokenError()
	}
	return nil
}

// injectToken substitutes the placeholder and guarantees the token field
func injectToken(payload url.Values, token string) url.Values {
	out := url.Values{}
	for key, values := range payload {
		for _, v := range values {
			out.Add(key, strings.ReplaceAll(v, TokenPlaceholder, token))
		}
	}
	if out.Get("actionRequest") == "" {
		out.Set("actionRequest", token)
	}
	return out
}

// roundTrip is the shared request loop: rate limit, send, classify, retry
func (s *Session) roundTrip(ctx context.Context, method, tail string, payload url.Values, opts *Options) (string, int, error) {
	reqURL := s.urlBase + tail
	if opts.SkipIndex {
		reqURL = "https://" + s.host + "/" + strings.TrimPrefix(tail, "/")
	}

	networkFailures := 0
	reauthed := false

	for {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		if err := s.limiter.Acquire(ctx); err != nil {
			return "", 0, err
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = strings.NewReader(payload.Encode())
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
		if err != nil {
			return "", 0, fmt.Errorf("failed to build request: %w", err)
		}
		for k, v := range s.headers {
			req.Header.Set(k, v)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		start := s.clock.Now()
		resp, err := s.client.Do(req)
		if err != nil {
			networkFailures++
			s.logger.Printf("%s %s network error (%d): %v", method, tail, networkFailures, err)
			if s.cfg.MaxNetworkRetries > 0 && networkFailures > s.cfg.MaxNetworkRetries {
				return "", 0, shared.NewNetworkTransientError(err)
			}
			if ctx.Err() != nil {
				return "", 0, ctx.Err()
			}
			s.clock.Sleep(s.cfg.NetworkBackoff)
			continue
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			networkFailures++
			if s.cfg.MaxNetworkRetries > 0 && networkFailures > s.cfg.MaxNetworkRetries {
				return "", 0, shared.NewNetworkTransientError(err)
			}
			s.clock.Sleep(s.cfg.NetworkBackoff)
			continue
		}
		body := string(raw)

		s.history.Push(RequestTrace{
			Method:      method,
			URL:         reqURL,
			ParamKeys:   keysOf(tail),
			PayloadKeys: payloadKeys(payload),
			Status:      resp.StatusCode,
			Elapsed:     s.clock.Now().Sub(start),
			At:          start,
		})

		s.tokens.TryExtract(body)

		if IsMaintenance(body) {
			s.logger.Printf("%s %s: server maintenance, sleeping %s", method, tail, s.cfg.MaintenanceBackoff)
			s.clock.Sleep(s.cfg.MaintenanceBackoff)
			continue
		}

		if !opts.IgnoreExpiry && IsExpired(body) {
			if reauthed {
				return "", 0, shared.NewSessionExpiredError("session expired again after re-login")
			}
			if err := s.Reauthenticate(ctx); err != nil {
				return "", 0, fmt.Errorf("session expired and re-login failed: %w", err)
			}
			reauthed = true
			continue
		}

		return body, resp.StatusCode, nil
	}
}

// Reauthenticate re-runs the login machine and swaps the fresh cookies in
func (s *Session) Reauthenticate(ctx context.Context) error {
	if s.reauth == nil {
		return shared.NewSessionExpiredError("session expired and no re-login hook installed")
	}
	s.logger.Printf("session expired, re-authenticating %s", s.world)
	return s.reauth(ctx, s)
}

// ApplyLogin installs the artifacts of a (re)login: game cookies replace the
// jar contents, the token cache is cleared then primed from the initial page.
// The proxy stays on the transport, so it survives re-login untouched.
func (s *Session) ApplyLogin(cookies []*http.Cookie, initialHTML string) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("failed to create cookie jar: %w", err)
	}
	gameURL, err := url.Parse("https://" + s.host + "/")
	if err != nil {
		return fmt.Errorf("invalid game host: %w", err)
	}
	jar.SetCookies(gameURL, cookies)
	s.client.Jar = jar

	s.tokens.InvalidateCSRF()
	s.tokens.TryExtract(initialHTML)
	return nil
}

// Cookies returns the jar contents for the game host
func (s *Session) Cookies() []*http.Cookie {
	gameURL, err := url.Parse("https://" + s.host + "/")
	if err != nil {
		return nil
	}
	return s.client.Jar.Cookies(gameURL)
}

func keysOf(tail string) []string {
	values, err := url.ParseQuery(tail)
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	return keys
}

func payloadKeys(payload url.Values) []string {
	if payload == nil {
		return nil
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	return keys
}
