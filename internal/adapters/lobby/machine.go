// Package lobby implements the multi-phase login against the vendor lobby:
// cached-token fast path, environment discovery, anti-bot handshake, device
// fingerprinting, credential submission with OTP and captcha branches, token
// extraction, world selection, and the signed handoff onto the game server.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"

	"github.com/andrescamacho/polisbot/internal/adapters/game"
	"github.com/andrescamacho/polisbot/internal/domain/account"
	"github.com/andrescamacho/polisbot/internal/domain/ports"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
	"github.com/andrescamacho/polisbot/internal/infrastructure/config"
)

// authTokenCookie is the lobby's bearer cookie name
const authTokenCookie = "gf-token-production"

// Result is everything the login machine produces
type Result struct {
	GameHost    string
	URLBase     string
	PlayerName  string
	World       account.WorldID
	CharacterID string
	WorldName   string
	InitialHTML string
	AuthToken   string
	DeviceToken string
	Headers     map[string]string
	GameCookies []*http.Cookie
}

// StateMachine runs the login phases. One instance per attempt sequence;
// phases mutate the shared lobby cookie jar.
type StateMachine struct {
	cfg      config.LoginConfig
	clock    shared.Clock
	logger   *log.Logger
	prompter ports.Prompter
	solver   ports.CaptchaSolver

	acct  *account.Account
	world *account.WorldID

	lobbyClient *http.Client
	gameClient  *http.Client

	// phase products
	gameEnvironmentID string
	platformGameID    string
	authToken         string
	deviceToken       string
}

// NewStateMachine creates a machine for one account. A nil world defers the
// choice to phase 8.
func NewStateMachine(
	cfg config.LoginConfig,
	acct *account.Account,
	world *account.WorldID,
	prompter ports.Prompter,
	solver ports.CaptchaSolver,
	clock shared.Clock,
) (*StateMachine, error) {
	if clock == nil {
		clock = shared.NewRealClock()
	}

	lobbyJar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create lobby cookie jar: %w", err)
	}
	gameJar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create game cookie jar: %w", err)
	}

	transport := &http.Transport{}
	if acct.Proxy != nil && acct.Proxy.URL != "" {
		proxyURL, err := url.Parse(acct.Proxy.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		if acct.Proxy.Username != "" {
			proxyURL.User = url.UserPassword(acct.Proxy.Username, acct.Proxy.Password)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &StateMachine{
		cfg:         cfg,
		clock:       clock,
		logger:      log.New(os.Stderr, "[login] ", log.LstdFlags),
		prompter:    prompter,
		solver:      solver,
		acct:        acct,
		world:       world,
		lobbyClient: &http.Client{Jar: lobbyJar, Transport: transport},
		gameClient:  &http.Client{Jar: gameJar, Transport: transport},
	}, nil
}

// Run executes the machine with the configured attempt budget. Vacation mode
// is terminal and never retried.
func (m *StateMachine) Run(ctx context.Context) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		res, err := m.attempt(ctx)
		if err == nil {
			return res, nil
		}

		var vacation *shared.VacationModeError
		if errors.As(err, &vacation) {
			return nil, err
		}

		lastErr = err
		m.logger.Printf("login attempt %d/%d failed: %v", attempt, m.cfg.MaxAttempts, err)
		if attempt < m.cfg.MaxAttempts {
			m.clock.Sleep(m.cfg.RetryDelay)
		}
	}
	return nil, fmt.Errorf("login failed after %d attempts: %w", m.cfg.MaxAttempts, lastErr)
}

// attempt runs phases 0..10 once
func (m *StateMachine) attempt(ctx context.Context) (*Result, error) {
	fastPath := false

	// Phase 0: cached fast-path
	if m.acct.CachedAuthToken != "" {
		if m.probeCachedToken(ctx) {
			m.authToken = m.acct.CachedAuthToken
			m.deviceToken = m.acct.CachedDeviceToken
			fastPath = true
			m.logger.Printf("cached auth token valid, skipping credential phases")
		}
	}

	if !fastPath {
		if err := m.phaseEnvironmentIDs(ctx); err != nil {
			return nil, err
		}
		if err := m.phaseAntiBot(ctx); err != nil {
			return nil, err
		}
		// Fingerprint failures are logged and ignored; the phase exists
		// for its side-effect cookies
		if err := m.phaseFingerprint(ctx); err != nil {
			m.logger.Printf("fingerprint phase failed (ignored): %v", err)
		}
		if err := m.phasePreflight(ctx); err != nil {
			return nil, err
		}
		if err := m.phaseAuthenticate(ctx); err != nil {
			return nil, err
		}
		if err := m.phaseTokenExtraction(ctx); err != nil {
			return nil, err
		}
	}

	choice, err := m.phaseWorldSelection(ctx)
	if err != nil {
		return nil, err
	}

	res, err := m.phaseWorldHandoff(ctx, choice)
	if err != nil {
		return nil, err
	}

	if err := m.phaseValidation(res.InitialHTML); err != nil {
		return nil, err
	}

	// Persisted by the caller alongside the account store
	m.acct.UpdateTokens(m.authToken, m.deviceToken)
	m.acct.RememberWorld(res.World)
	return res, nil
}

// Login is the package entry point: runs the machine, builds the game
// session, applies the login artifacts, and installs the re-auth hook so the
// session can recover from expiry on its own.
func Login(
	ctx context.Context,
	cfg *config.Config,
	acct *account.Account,
	world *account.WorldID,
	prompter ports.Prompter,
	solver ports.CaptchaSolver,
	clock shared.Clock,
) (*game.Session, *Result, error) {
	m, err := NewStateMachine(cfg.Login, acct, world, prompter, solver, clock)
	if err != nil {
		return nil, nil, err
	}

	res, err := m.Run(ctx)
	if err != nil {
		return nil, nil, err
	}

	session, err := game.NewSession(cfg.Session, acct, res.GameHost, res.World, res.Headers, clock)
	if err != nil {
		return nil, nil, err
	}
	session.SetIdentity(res.PlayerName, res.CharacterID)
	if err := session.ApplyLogin(res.GameCookies, res.InitialHTML); err != nil {
		return nil, nil, err
	}
	session.SetReauth(reauthHook(cfg, world, prompter, solver, clock))

	return session, res, nil
}

// reauthHook re-runs the machine with the account's cached tokens (fast path
// when still valid) and swaps the fresh cookies into the existing session.
func reauthHook(
	cfg *config.Config,
	world *account.WorldID,
	prompter ports.Prompter,
	solver ports.CaptchaSolver,
	clock shared.Clock,
) game.ReauthFunc {
	return func(ctx context.Context, s *game.Session) error {
		target := world
		if target == nil {
			w := s.World()
			target = &w
		}
		m, err := NewStateMachine(cfg.Login, s.Account(), target, prompter, solver, clock)
		if err != nil {
			return err
		}
		res, err := m.Run(ctx)
		if err != nil {
			return fmt.Errorf("re-authentication failed: %w", err)
		}
		return s.ApplyLogin(res.GameCookies, res.InitialHTML)
	}
}
