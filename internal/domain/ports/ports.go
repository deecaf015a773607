// Package ports declares the capability interfaces the agent consumes but
// does not implement: terminal prompting, notification delivery, captcha
// solving, and game HTML parsing. Modules depend on these interfaces so the
// same code runs interactively, under recorded-input replay, or headless.
package ports

import (
	"context"
	"io"
)

// Prompter abstracts terminal input. A detached worker is given a replaying
// implementation and must never reach an interactive one.
type Prompter interface {
	// Read asks for one free-form line
	Read(prompt string) (string, error)

	// ReadSecret asks for one line without echoing it
	ReadSecret(prompt string) (string, error)

	// Choose asks for one option index in [0, len(options))
	Choose(prompt string, options []string) (int, error)

	// Confirm asks a yes/no question
	Confirm(prompt string) (bool, error)
}

// Notifier delivers a message (and optional photo) to the user's configured
// notification backend.
type Notifier interface {
	Send(ctx context.Context, message string, photo io.Reader) error
}

// CaptchaSolver answers the lobby's icon-selection challenge. The answer is
// an index in [0, 3].
type CaptchaSolver interface {
	Solve(ctx context.Context, textImage, iconsImage []byte) (int, error)
}

// NopNotifier drops every message; used when no backend is configured.
type NopNotifier struct{}

func (NopNotifier) Send(ctx context.Context, message string, photo io.Reader) error { return nil }
