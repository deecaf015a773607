package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andrescamacho/polisbot/internal/domain/shared"
)

const challengeHeader = "gf-challenge-id"

// authOutcome classifies one credential submission. Exactly one branch is set.
type authOutcome struct {
	Token       string
	NeedOTP     bool
	ChallengeID string
	FailKind    shared.LoginFailKind
	FailDetail  string
}

// Phase 5-6: submit credentials and follow the OTP or captcha branch until a
// token is obtained or the attempt fails with a classified reason
func (m *StateMachine) phaseAuthenticate(ctx context.Context) error {
	outcome, err := m.submitCredentials(ctx, "", "")
	if err != nil {
		return err
	}

	if outcome.NeedOTP {
		if !m.cfg.Interactive {
			return shared.NewLoginFailedError(shared.LoginFailOtpRequired,
				"account requires a one-time code and session is non-interactive")
		}
		code, err := m.prompter.Read("One-time code")
		if err != nil || strings.TrimSpace(code) == "" {
			return shared.NewLoginFailedError(shared.LoginFailOtpRequired, "no one-time code provided")
		}
		outcome, err = m.submitCredentials(ctx, strings.TrimSpace(code), "")
		if err != nil {
			return err
		}
	}

	if outcome.ChallengeID != "" {
		solved, err := m.solveChallenge(ctx, outcome.ChallengeID)
		if err != nil {
			return err
		}
		outcome, err = m.submitCredentials(ctx, "", solved)
		if err != nil {
			return err
		}
		if outcome.ChallengeID != "" {
			return shared.NewLoginFailedError(shared.LoginFailCaptchaUnsolvable,
				"challenge re-issued after a solved captcha")
		}
	}

	if outcome.FailKind != "" {
		return shared.NewLoginFailedError(outcome.FailKind, outcome.FailDetail)
	}
	if outcome.Token == "" {
		return shared.NewLoginFailedError(shared.LoginFailTokenMissing, "auth succeeded without a token")
	}

	m.authToken = outcome.Token
	return nil
}

// submitCredentials POSTs the credential payload once and classifies the
// response. A non-empty challengeID is echoed back as proof of a solve.
func (m *StateMachine) submitCredentials(ctx context.Context, otp, challengeID string) (*authOutcome, error) {
	payload := map[string]any{
		"identity":          m.acct.Email,
		"password":          m.acct.Secret,
		"locale":            "en_GB",
		"gfLang":            "en",
		"gameEnvironmentId": m.gameEnvironmentID,
		"platformGameId":    m.platformGameID,
		"blackbox":          m.deviceToken,
		"autoGameAccountCreation": false,
	}
	if otp != "" {
		payload["otp"] = otp
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if challengeID != "" {
		headers[challengeHeader] = challengeID
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.LobbyURL+usersPath, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := m.lobbyClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("credential submission failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("auth response read failed: %w", err)
	}

	// The challenge header appears on otherwise-successful status codes too;
	// it always takes priority. The value may carry a ";https://..." suffix.
	if challenge := resp.Header.Get(challengeHeader); challenge != "" {
		if semi := strings.IndexByte(challenge, ';'); semi >= 0 {
			challenge = challenge[:semi]
		}
		return &authOutcome{ChallengeID: strings.TrimSpace(challenge)}, nil
	}

	switch {
	case resp.StatusCode == http.StatusConflict && strings.Contains(string(respBody), "OTP_REQUIRED"):
		return &authOutcome{NeedOTP: true}, nil

	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusUnauthorized:
		return &authOutcome{
			FailKind:   shared.LoginFailBadCredentials,
			FailDetail: fmt.Sprintf("credentials rejected with status %d", resp.StatusCode),
		}, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var parsed struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, fmt.Errorf("auth response parse failed: %w", err)
		}
		return &authOutcome{Token: parsed.Token}, nil

	default:
		return &authOutcome{
			FailKind:   shared.LoginFailBadCredentials,
			FailDetail: fmt.Sprintf("unexpected auth status %d", resp.StatusCode),
		}, nil
	}
}
