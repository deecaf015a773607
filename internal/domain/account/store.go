package account

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	saltSize = 16

	// argon2id parameters; memory-hard so an exfiltrated store resists
	// offline guessing
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// Store persists the account list encrypted at rest:
// salt(16) || nonce(12) || ciphertext-with-tag, keyed by
// argon2id(passphrase, salt).
type Store struct {
	path     string
	validate *validator.Validate
}

// NewStore creates a store backed by the given file path
func NewStore(path string) *Store {
	return &Store{
		path:     path,
		validate: validator.New(),
	}
}

// Path returns the backing file location
func (s *Store) Path() string { return s.path }

// Exists reports whether the encrypted store file is present
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load decrypts and returns all accounts. A wrong passphrase surfaces as an
// authentication failure from the AEAD open.
func (s *Store) Load(passphrase string) ([]*Account, error) {
	blob, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read account store: %w", err)
	}

	if len(blob) < saltSize+chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("account store is truncated (%d bytes)", len(blob))
	}

	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+chacha20poly1305.NonceSize]
	ciphertext := blob[saltSize+chacha20poly1305.NonceSize:]

	aead, err := chacha20poly1305.New(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt account store (wrong passphrase?): %w", err)
	}

	var accounts []*Account
	if err := json.Unmarshal(plaintext, &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse account store: %w", err)
	}

	return accounts, nil
}

// Save validates and encrypts all accounts, writing atomically via a temp
// file rename. A fresh salt and nonce are generated on every save.
func (s *Store) Save(passphrase string, accounts []*Account) error {
	for _, acc := range accounts {
		if err := s.validate.Struct(acc); err != nil {
			return fmt.Errorf("invalid account %q: %w", acc.Email, err)
		}
	}

	plaintext, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("failed to marshal accounts: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	aead, err := chacha20poly1305.New(deriveKey(passphrase, salt))
	if err != nil {
		return fmt.Errorf("failed to initialize cipher: %w", err)
	}

	blob := make([]byte, 0, saltSize+chacha20poly1305.NonceSize+len(plaintext)+aead.Overhead())
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = aead.Seal(blob, nonce, plaintext, nil)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("failed to write account store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace account store: %w", err)
	}

	return nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}
