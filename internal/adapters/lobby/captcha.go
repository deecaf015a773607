package lobby

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/andrescamacho/polisbot/internal/domain/shared"
)

// solveChallenge runs the image-drop captcha loop against the challenge host.
// On success the challenge id itself is the proof echoed back to the auth
// endpoint.
func (m *StateMachine) solveChallenge(ctx context.Context, challengeID string) (string, error) {
	base := fmt.Sprintf("%s/challenge/%s/en-GB", m.cfg.CaptchaURL, challengeID)

	for attempt := 1; attempt <= m.cfg.CaptchaAttempts; attempt++ {
		// Fetching the challenge state rotates the images server-side
		if _, err := m.fetchBytes(ctx, base); err != nil {
			return "", fmt.Errorf("challenge fetch failed: %w", err)
		}

		textImg, err := m.fetchBytes(ctx, base+"/text")
		if err != nil {
			return "", fmt.Errorf("challenge text image fetch failed: %w", err)
		}
		iconsImg, err := m.fetchBytes(ctx, base+"/drag-icons")
		if err != nil {
			return "", fmt.Errorf("challenge icons image fetch failed: %w", err)
		}

		answer, err := m.solver.Solve(ctx, textImg, iconsImg)
		if err != nil {
			m.logger.Printf("captcha solver failed on attempt %d/%d: %v", attempt, m.cfg.CaptchaAttempts, err)
			continue
		}

		status, err := m.submitAnswer(ctx, base, answer)
		if err != nil {
			return "", err
		}
		if status == "solved" {
			return challengeID, nil
		}
		m.logger.Printf("captcha attempt %d/%d rejected (status %q)", attempt, m.cfg.CaptchaAttempts, status)
	}

	return "", shared.NewLoginFailedError(shared.LoginFailCaptchaUnsolvable,
		fmt.Sprintf("captcha unsolved after %d attempts", m.cfg.CaptchaAttempts))
}

func (m *StateMachine) submitAnswer(ctx context.Context, base string, answer int) (string, error) {
	payload, err := json.Marshal(map[string]int{"answer": answer})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.lobbyClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("challenge answer submission failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("challenge answer response parse failed: %w", err)
	}
	return parsed.Status, nil
}

func (m *StateMachine) fetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.lobbyClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return io.ReadAll(resp.Body)
}
