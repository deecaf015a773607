package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/andrescamacho/polisbot/internal/adapters/game"
	"github.com/andrescamacho/polisbot/internal/domain/account"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
)

const (
	configurationPath = "/config/configuration.js"
	connectPath       = "/cdn-cgi/connect.js"
	fingerprintPath   = "/api/v1/pixel"
	usersPath         = "/api/users"
	mePath            = "/api/users/me"
	accountsPath      = "/api/users/me/accounts"
	serversPath       = "/api/servers"
	loginLinkPath     = "/api/users/me/loginLink"

	antiBotBlockedMarker = "Attention Required"
)

var (
	gameEnvironmentIDRe = regexp.MustCompile(`gameEnvironmentId["']?\s*[:=]\s*["']([0-9a-fA-F-]+)["']`)
	platformGameIDRe    = regexp.MustCompile(`platformGameId["']?\s*[:=]\s*["']([0-9a-fA-F-]+)["']`)
)

// gameHeaders are the browser-shaped headers sent to the game server
func gameHeaders() map[string]string {
	return map[string]string{
		"User-Agent":       "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/118.0",
		"Accept":           "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language":  "en-US,en;q=0.5",
		"X-Requested-With": "XMLHttpRequest",
	}
}

// Phase 0: probe the lobby "me" endpoint with the cached token. Only a clean
// 200 counts; anything else falls through to the full credential path.
func (m *StateMachine) probeCachedToken(ctx context.Context) bool {
	m.setAuthCookie(m.acct.CachedAuthToken)

	status, _, err := m.lobbyRequest(ctx, http.MethodGet, mePath, nil, map[string]string{
		"Authorization": "Bearer " + m.acct.CachedAuthToken,
	})
	if err != nil {
		return false
	}
	return status == http.StatusOK
}

// Phase 1: extract environment ids from the lobby configuration JS
func (m *StateMachine) phaseEnvironmentIDs(ctx context.Context) error {
	_, body, err := m.lobbyRequest(ctx, http.MethodGet, configurationPath, nil, nil)
	if err != nil {
		return fmt.Errorf("configuration fetch failed: %w", err)
	}

	env := gameEnvironmentIDRe.FindStringSubmatch(body)
	platform := platformGameIDRe.FindStringSubmatch(body)
	if env == nil || platform == nil {
		return shared.NewLoginFailedError(shared.LoginFailEnvironmentIDs,
			"configuration JS carries no environment ids")
	}

	m.gameEnvironmentID = env[1]
	m.platformGameID = platform[1]
	return nil
}

// Phase 2: the anti-bot handshake populates tracking cookies; the connect
// endpoint is fetched twice because the first response only plants them
func (m *StateMachine) phaseAntiBot(ctx context.Context) error {
	for i := 0; i < 2; i++ {
		_, body, err := m.lobbyRequest(ctx, http.MethodGet, connectPath, nil, nil)
		if err != nil {
			return fmt.Errorf("anti-bot handshake failed: %w", err)
		}
		if strings.Contains(body, antiBotBlockedMarker) {
			return shared.NewLoginFailedError(shared.LoginFailAntiBotBlocked,
				"anti-bot interstitial served")
		}
	}
	return nil
}

// Phase 3: two fingerprint POSTs. Non-fatal; the caller ignores errors.
func (m *StateMachine) phaseFingerprint(ctx context.Context) error {
	if m.deviceToken == "" {
		if m.acct.CachedDeviceToken != "" {
			m.deviceToken = m.acct.CachedDeviceToken
		} else {
			m.deviceToken = NewBlackbox()
		}
	}

	payload := url.Values{
		"product":  {"lobby"},
		"location": {m.cfg.LobbyURL},
		"blackbox": {m.deviceToken},
	}
	for i := 0; i < 2; i++ {
		body := strings.NewReader(payload.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.LobbyURL+fingerprintPath, body)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := m.lobbyClient.Do(req)
		if err != nil {
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	return nil
}

// Phase 4: CORS preflight against the auth endpoint
func (m *StateMachine) phasePreflight(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, m.cfg.LobbyURL+usersPath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")

	resp, err := m.lobbyClient.Do(req)
	if err != nil {
		return fmt.Errorf("preflight failed: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// Phase 7: make sure a token exists (prompting as a last resort), plant it as
// the lobby cookie, and verify it with the phase-0 probe
func (m *StateMachine) phaseTokenExtraction(ctx context.Context) error {
	if m.authToken == "" {
		if !m.cfg.Interactive {
			return shared.NewLoginFailedError(shared.LoginFailTokenMissing,
				"auth response carried no token and session is non-interactive")
		}
		token, err := m.prompter.ReadSecret("Paste lobby auth token")
		if err != nil || token == "" {
			return shared.NewLoginFailedError(shared.LoginFailTokenMissing, "no manual token provided")
		}
		m.authToken = strings.TrimSpace(token)
	}

	m.setAuthCookie(m.authToken)

	status, _, err := m.lobbyRequest(ctx, http.MethodGet, mePath, nil, map[string]string{
		"Authorization": "Bearer " + m.authToken,
	})
	if err != nil {
		return fmt.Errorf("token verification failed: %w", err)
	}
	if status != http.StatusOK {
		return shared.NewLoginFailedError(shared.LoginFailTokenMissing,
			fmt.Sprintf("token probe returned status %d", status))
	}
	return nil
}

// lobbyAccount is one playable character as the lobby lists it
type lobbyAccount struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Blocked  bool   `json:"blocked"`
	Server   struct {
		Language string `json:"language"`
		Number   int    `json:"number"`
	} `json:"server"`
}

// lobbyServer is one game world as the lobby lists it
type lobbyServer struct {
	Language string `json:"language"`
	Number   int    `json:"number"`
	Name     string `json:"name"`
}

// worldChoice is the phase-8 product
type worldChoice struct {
	CharacterID int
	PlayerName  string
	World       account.WorldID
	WorldName   string
}

// Phase 8: fetch accounts and servers, filter blocked, match or choose
func (m *StateMachine) phaseWorldSelection(ctx context.Context) (*worldChoice, error) {
	auth := map[string]string{"Authorization": "Bearer " + m.authToken}

	_, accountsBody, err := m.lobbyRequest(ctx, http.MethodGet, accountsPath, nil, auth)
	if err != nil {
		return nil, fmt.Errorf("account list fetch failed: %w", err)
	}
	var accounts []lobbyAccount
	if err := json.Unmarshal([]byte(accountsBody), &accounts); err != nil {
		return nil, fmt.Errorf("account list parse failed: %w", err)
	}

	_, serversBody, err := m.lobbyRequest(ctx, http.MethodGet, serversPath, nil, auth)
	if err != nil {
		return nil, fmt.Errorf("server list fetch failed: %w", err)
	}
	var servers []lobbyServer
	if err := json.Unmarshal([]byte(serversBody), &servers); err != nil {
		return nil, fmt.Errorf("server list parse failed: %w", err)
	}

	playable := accounts[:0]
	for _, acc := range accounts {
		if !acc.Blocked {
			playable = append(playable, acc)
		}
	}
	if len(playable) == 0 {
		return nil, shared.NewLoginFailedError(shared.LoginFailWorldNotFound, "no playable characters")
	}

	serverName := func(w account.WorldID) string {
		for _, srv := range servers {
			if srv.Number == w.Number && srv.Language == w.Language {
				return srv.Name
			}
		}
		return w.String()
	}

	// Pre-selected world wins
	if m.world != nil {
		for _, acc := range playable {
			w := account.WorldID{Number: acc.Server.Number, Language: acc.Server.Language}
			if w == *m.world {
				return &worldChoice{
					CharacterID: acc.ID,
					PlayerName:  acc.Name,
					World:       w,
					WorldName:   serverName(w),
				}, nil
			}
		}
		return nil, shared.NewLoginFailedError(shared.LoginFailWorldNotFound,
			fmt.Sprintf("no character on world %s", m.world))
	}

	idx := 0
	if len(playable) > 1 && m.cfg.Interactive {
		options := make([]string, len(playable))
		for i, acc := range playable {
			w := account.WorldID{Number: acc.Server.Number, Language: acc.Server.Language}
			options[i] = fmt.Sprintf("%s on %s", acc.Name, serverName(w))
		}
		chosen, err := m.prompter.Choose("Select character", options)
		if err != nil {
			return nil, err
		}
		idx = chosen
	}

	acc := playable[idx]
	w := account.WorldID{Number: acc.Server.Number, Language: acc.Server.Language}
	return &worldChoice{
		CharacterID: acc.ID,
		PlayerName:  acc.Name,
		World:       w,
		WorldName:   serverName(w),
	}, nil
}

// Phase 9: request the signed world-entry URL and follow it onto the game
// server with browser-shaped headers; the response HTML is retained
func (m *StateMachine) phaseWorldHandoff(ctx context.Context, choice *worldChoice) (*Result, error) {
	payload := map[string]any{
		"id": choice.CharacterID,
		"server": map[string]any{
			"language": choice.World.Language,
			"number":   choice.World.Number,
		},
		"clickedButton": "account_list",
		"blackbox":      m.deviceToken,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	status, respBody, err := m.lobbyRequest(ctx, http.MethodPost, loginLinkPath, body, map[string]string{
		"Authorization": "Bearer " + m.authToken,
		"Content-Type":  "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("world entry request failed: %w", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, shared.NewLoginFailedError(shared.LoginFailHandoffRejected,
			fmt.Sprintf("world entry returned status %d", status))
	}

	var link struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(respBody), &link); err != nil || link.URL == "" {
		return nil, shared.NewLoginFailedError(shared.LoginFailHandoffRejected, "no signed url in response")
	}

	hostRe := regexp.MustCompile(`^https://(s\d+-[a-z]+\.` + regexp.QuoteMeta(m.cfg.GameDomain) + `)/`)
	match := hostRe.FindStringSubmatch(link.URL)
	if match == nil {
		return nil, shared.NewLoginFailedError(shared.LoginFailHandoffRejected,
			fmt.Sprintf("signed url %q does not match the game server pattern", link.URL))
	}
	gameHost := match[1]

	headers := gameHeaders()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.URL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := m.gameClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("world handoff failed: %w", err)
	}
	defer resp.Body.Close()
	html, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("world handoff read failed: %w", err)
	}

	gameURL, _ := url.Parse("https://" + gameHost + "/")
	return &Result{
		GameHost:    gameHost,
		URLBase:     "https://" + gameHost + "/index.php?",
		PlayerName:  choice.PlayerName,
		World:       choice.World,
		CharacterID: fmt.Sprintf("%d", choice.CharacterID),
		WorldName:   choice.WorldName,
		InitialHTML: string(html),
		AuthToken:   m.authToken,
		DeviceToken: m.deviceToken,
		Headers:     headers,
		GameCookies: m.gameClient.Jar.Cookies(gameURL),
	}, nil
}

// Phase 10: classify the initial page
func (m *StateMachine) phaseValidation(html string) error {
	if game.IsVacation(html) {
		return shared.NewVacationModeError()
	}
	if game.IsExpired(html) {
		return shared.NewLoginFailedError(shared.LoginFailAlreadyExpired,
			"handoff produced an already expired session")
	}
	return nil
}

// setAuthCookie plants the bearer token as the lobby cookie
func (m *StateMachine) setAuthCookie(token string) {
	lobbyURL, err := url.Parse(m.cfg.LobbyURL)
	if err != nil {
		return
	}
	m.lobbyClient.Jar.SetCookies(lobbyURL, []*http.Cookie{{
		Name:  authTokenCookie,
		Value: token,
		Path:  "/",
	}})
}

// lobbyRequest is the shared lobby HTTP helper
func (m *StateMachine) lobbyRequest(ctx context.Context, method, path string, body []byte, headers map[string]string) (int, string, error) {
	var reader io.Reader
	if body != nil {
		reader = strings.NewReader(string(body))
	}
	req, err := http.NewRequestWithContext(ctx, method, m.cfg.LobbyURL+path, reader)
	if err != nil {
		return 0, "", err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := m.lobbyClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, string(respBody), nil
}
