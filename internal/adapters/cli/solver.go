package cli

import (
	"bytes"
	"context"
	"fmt"

	"github.com/andrescamacho/polisbot/internal/domain/ports"
)

// ManualSolver answers captcha challenges by pushing both images through the
// notifier and asking the user for the icon index. It is the only solver the
// parent shell ships; a detached worker never hits a captcha because its
// session was already authenticated when it was spawned.
type ManualSolver struct {
	prompter ports.Prompter
	notifier ports.Notifier
}

// NewManualSolver wires the solver over the prompter and notifier
func NewManualSolver(prompter ports.Prompter, notifier ports.Notifier) *ManualSolver {
	return &ManualSolver{prompter: prompter, notifier: notifier}
}

// Solve sends the challenge images and reads an answer in [0, 3]
func (s *ManualSolver) Solve(ctx context.Context, textImage, iconsImage []byte) (int, error) {
	if s.notifier != nil {
		if err := s.notifier.Send(ctx, "Captcha challenge: instruction image", bytes.NewReader(textImage)); err != nil {
			return 0, fmt.Errorf("failed to deliver challenge text image: %w", err)
		}
		if err := s.notifier.Send(ctx, "Captcha challenge: pick the icon index (1-4)", bytes.NewReader(iconsImage)); err != nil {
			return 0, fmt.Errorf("failed to deliver challenge icons image: %w", err)
		}
	}

	choice, err := s.prompter.Choose("Which icon matches the instruction?", []string{
		"first icon", "second icon", "third icon", "fourth icon",
	})
	if err != nil {
		return 0, err
	}
	return choice, nil
}

var _ ports.CaptchaSolver = (*ManualSolver)(nil)
