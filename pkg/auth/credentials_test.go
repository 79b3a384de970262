package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialManager(t *testing.T) {
	manager, mockStore := NewMockManager()

	account := &Account{Username: " jsmith ", Password: "Winter2024!"}
	require.NoError(t, manager.Store(account))
	assert.Equal(t, "JSMITH", account.Username)
	assert.False(t, account.LastModified.IsZero())

	retrieved, err := manager.Retrieve("jsmith")
	require.NoError(t, err)
	assert.Equal(t, "JSMITH", retrieved.Username)
	assert.Equal(t, "Winter2024!", retrieved.Password)

	accounts, err := manager.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	require.NoError(t, manager.Delete("JSmith"))
	_, err = manager.Retrieve("JSMITH")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.Equal(t, 0, mockStore.Count())
}

func TestManagerStoreValidation(t *testing.T) {
	manager, _ := NewMockManager()

	assert.Error(t, manager.Store(nil))
	assert.Error(t, manager.Store(&Account{Username: "  ", Password: "x"}))
	assert.Error(t, manager.Store(&Account{Username: "bob"}))
}

func TestManagerFallsBackToNextStore(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = errors.New("keychain locked")
	working := NewMockStore()

	manager := NewManagerWithStores(broken, working)
	require.NoError(t, manager.Store(&Account{Username: "ward", Password: "pw"}))

	assert.Equal(t, 0, broken.Count())
	assert.True(t, working.Exists("WARD"))
}

func TestManagerStoreAllFail(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = errors.New("disk full")

	manager := NewManagerWithStores(broken)
	err := manager.Store(&Account{Username: "ward", Password: "pw"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestManagerListPrefersNewest(t *testing.T) {
	older := NewMockStore()
	newer := NewMockStore()
	now := time.Now()
	require.NoError(t, older.Store(&Account{Username: "A", Password: "old", LastModified: now.Add(-time.Hour)}))
	require.NoError(t, newer.Store(&Account{Username: "A", Password: "new", LastModified: now}))
	require.NoError(t, newer.Store(&Account{Username: "B", Password: "b", LastModified: now}))

	accounts, err := NewManagerWithStores(older, newer).List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "A", accounts[0].Username)
	assert.Equal(t, "new", accounts[0].Password)
	assert.Equal(t, "B", accounts[1].Username)
}

func TestRetrieveDefault(t *testing.T) {
	t.Setenv(envUsername, "")
	t.Setenv(envPassword, "")

	store := NewMockStore()
	manager := NewManagerWithStores(store, NewEnvironmentStore())

	_, err := manager.RetrieveDefault()
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, store.Store(&Account{Username: "ONE", Password: "1"}))
	account, err := manager.RetrieveDefault()
	require.NoError(t, err)
	assert.Equal(t, "ONE", account.Username)

	require.NoError(t, store.Store(&Account{Username: "TWO", Password: "2"}))
	_, err = manager.RetrieveDefault()
	assert.ErrorContains(t, err, "--account")

	t.Setenv(envUsername, "envuser")
	t.Setenv(envPassword, "envpass")
	account, err = manager.RetrieveDefault()
	require.NoError(t, err)
	assert.Equal(t, "ENVUSER", account.Username)
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv(envPassphrase, "test_passphrase_123")
	path := filepath.Join(t.TempDir(), "creds", "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	_, err = store.Retrieve("NURSE")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, store.Store(&Account{Username: "NURSE", Password: "plaintext-secret"}))
	require.NoError(t, store.Store(&Account{Username: "DOCTOR", Password: "other"}))

	retrieved, err := store.Retrieve("NURSE")
	require.NoError(t, err)
	assert.Equal(t, "plaintext-secret", retrieved.Password)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(content, []byte("plaintext-secret")))
	assert.False(t, bytes.Contains(content, []byte("NURSE")))

	list, err := store.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, store.Delete("NURSE"))
	require.NoError(t, store.Delete("DOCTOR"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")

	t.Setenv(envPassphrase, "first")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Account{Username: "A", Password: "p"}))

	t.Setenv(envPassphrase, "second")
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = other.Retrieve("A")
	assert.ErrorContains(t, err, "failed to decrypt")
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	t.Setenv(envPassphrase, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Account{Username: "A", Password: "p"}))

	pass, err := os.ReadFile(filepath.Join(dir, ".passphrase"))
	require.NoError(t, err)
	assert.NotEmpty(t, pass)

	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	account, err := reopened.Retrieve("A")
	require.NoError(t, err)
	assert.Equal(t, "p", account.Password)
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv(envUsername, "ward7")
	t.Setenv(envPassword, "env_password")

	store := NewEnvironmentStore()

	account, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "WARD7", account.Username)
	assert.Equal(t, "env_password", account.Password)

	assert.True(t, store.Exists("Ward7"))
	assert.False(t, store.Exists("someone-else"))

	assert.ErrorIs(t, store.Store(&Account{}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("WARD7"), ErrStoreUnavailable)
}

func TestEnvironmentStoreRequiresBoth(t *testing.T) {
	t.Setenv(envUsername, "ward7")
	t.Setenv(envPassword, "")

	store := NewEnvironmentStore()
	_, err := store.Retrieve("")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	list, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestManagerInDirWithEncryptedStore(t *testing.T) {
	t.Setenv(envPassphrase, "manager_passphrase")
	t.Setenv(envUsername, "")
	t.Setenv(envPassword, "")

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(t.TempDir(), "credentials.enc"))
	require.NoError(t, err)
	manager := NewManagerWithStores(encryptedStore, NewEnvironmentStore())

	require.NoError(t, manager.Store(&Account{Username: "realuser", Password: "real_password"}))

	retrieved, err := manager.Retrieve("REALUSER")
	require.NoError(t, err)
	assert.Equal(t, "real_password", retrieved.Password)

	// environment store refuses deletes, the encrypted one succeeds
	require.NoError(t, manager.Delete("realuser"))
	assert.ErrorIs(t, manager.Delete("realuser"), ErrCredentialsNotFound)
}

func TestSanitizeAccount(t *testing.T) {
	assert.Nil(t, SanitizeAccount(nil))

	short := SanitizeAccount(&Account{Username: "A", Password: "pw"})
	assert.Equal(t, "********", short.Password)

	long := SanitizeAccount(&Account{Username: "A", Password: "correcthorsebattery"})
	assert.Equal(t, "co...ry", long.Password)
	assert.Equal(t, "A", long.Username)
}

func TestMockStoreErrorInjection(t *testing.T) {
	store := NewMockStore()
	store.ListError = errors.New("injected error")

	_, err := store.List()
	assert.EqualError(t, err, "injected error")
}

func TestShowStorageGuide(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	var buf bytes.Buffer
	ShowStorageGuide(&buf)
	assert.Contains(t, buf.String(), "EPMA_USERNAME")
	assert.Contains(t, buf.String(), "epmasuppress auth login")
}
