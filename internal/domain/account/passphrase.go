package account

import (
	"os"
	"strings"

	"github.com/andrescamacho/polisbot/internal/domain/ports"
)

const (
	// PassphraseSecretFile is checked first so container deployments can
	// mount the passphrase without exposing it in the environment
	PassphraseSecretFile = "/run/secrets/polisbot_passphrase"

	// PassphraseEnvVar is the second source
	PassphraseEnvVar = "POLISBOT_PASSPHRASE"
)

// ResolvePassphrase sources the store passphrase by priority: secret file,
// environment variable, interactive prompt.
func ResolvePassphrase(prompter ports.Prompter) (string, error) {
	if data, err := os.ReadFile(PassphraseSecretFile); err == nil {
		if pass := strings.TrimSpace(string(data)); pass != "" {
			return pass, nil
		}
	}

	if pass := os.Getenv(PassphraseEnvVar); pass != "" {
		return pass, nil
	}

	return prompter.ReadSecret("Store passphrase")
}
