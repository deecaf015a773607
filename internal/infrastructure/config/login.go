package config

import "time"

// LoginConfig holds lobby endpoints and login retry policy. Endpoints are
// configurable so tests can point the state machine at a local server.
type LoginConfig struct {
	// LobbyURL is the vendor lobby host, no trailing slash
	LobbyURL string `mapstructure:"lobby_url" validate:"required,url"`

	// GameDomain is the vendor game-server domain; servers resolve as
	// s{number}-{language}.{GameDomain}
	GameDomain string `mapstructure:"game_domain" validate:"required"`

	// CaptchaURL is the external challenge host
	CaptchaURL string `mapstructure:"captcha_url" validate:"required,url"`

	// MaxAttempts is how many times the whole machine is retried
	MaxAttempts int `mapstructure:"max_attempts" validate:"min=1"`

	// RetryDelay is slept between attempts
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"min=0"`

	// CaptchaAttempts bounds the captcha subphase
	CaptchaAttempts int `mapstructure:"captcha_attempts" validate:"min=1"`

	// Interactive enables prompts for OTP and manual tokens; a detached
	// worker always runs with this off
	Interactive bool `mapstructure:"interactive"`
}

func setLoginDefaults(c *LoginConfig) {
	if c.LobbyURL == "" {
		c.LobbyURL = "https://lobby.gameforge.com"
	}
	if c.GameDomain == "" {
		c.GameDomain = "ikariam.gameforge.com"
	}
	if c.CaptchaURL == "" {
		c.CaptchaURL = "https://image-drop-challenge.gameforge.com"
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.CaptchaAttempts == 0 {
		c.CaptchaAttempts = 5
	}
}
