package account

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAccounts() []*Account {
	return []*Account{
		{
			Email:           "bot@example.com",
			Secret:          "hunter2",
			CachedAuthToken: "tok",
			KnownWorlds:     []WorldID{{Number: 59, Language: "en"}},
		},
		{Email: "alt@example.com", Secret: "s3cret"},
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "accounts.enc"))

	require.NoError(t, store.Save("passphrase", testAccounts()))
	require.True(t, store.Exists())

	loaded, err := store.Load("passphrase")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "bot@example.com", loaded[0].Email)
	assert.Equal(t, "hunter2", loaded[0].Secret)
	assert.Equal(t, "tok", loaded[0].CachedAuthToken)
	assert.Equal(t, WorldID{Number: 59, Language: "en"}, loaded[0].KnownWorlds[0])
}

func TestStore_WrongPassphrase(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "accounts.enc"))
	require.NoError(t, store.Save("right", testAccounts()))

	_, err := store.Load("wrong")
	assert.Error(t, err, "the authenticated cipher must reject a wrong key")
}

func TestStore_CiphertextIsOpaque(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "accounts.enc"))
	require.NoError(t, store.Save("passphrase", testAccounts()))

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2")
	assert.NotContains(t, string(raw), "bot@example.com")
	assert.Greater(t, len(raw), 16+12, "salt and nonce prefix the ciphertext")
}

func TestStore_SaveRejectsInvalidAccount(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "accounts.enc"))

	err := store.Save("passphrase", []*Account{{Email: "not-an-email", Secret: "x"}})
	assert.Error(t, err)
}

func TestStore_TamperedFileFailsAuth(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "accounts.enc"))
	require.NoError(t, store.Save("passphrase", testAccounts()))

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(store.Path(), raw, 0o600))

	_, err = store.Load("passphrase")
	assert.Error(t, err)
}

func TestAccount_Key(t *testing.T) {
	acct := &Account{Email: "first.last+bot@example.com"}
	assert.Equal(t, "first_last_bot", acct.Key())
}

func TestWorldID_Parse(t *testing.T) {
	w, err := ParseWorldID("s59-en")
	require.NoError(t, err)
	assert.Equal(t, WorldID{Number: 59, Language: "en"}, w)
	assert.Equal(t, "s59-en", w.String())
	assert.Equal(t, "59_en", w.Key())

	_, err = ParseWorldID("garbage")
	assert.Error(t, err)
}
