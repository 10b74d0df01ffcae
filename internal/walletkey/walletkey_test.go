package walletkey

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lp-agent/internal/errs"
)

func TestUnlockReturnsKeystoreErrorWhenFileMissing(t *testing.T) {
	_, _, err := Unlock(filepath.Join(t.TempDir(), "nope.json"), "whatever")
	var ksErr *errs.KeystoreError
	assert.ErrorAs(t, err, &ksErr)
}

func TestUnlockSucceedsWithCorrectPassphrase(t *testing.T) {
	dir := t.TempDir()
	ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
	acct, err := ks.NewAccount("correct-horse")
	require.NoError(t, err)

	got, _, err := Unlock(acct.URL.Path, "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, acct.Address, got.Address)
}

func TestUnlockReturnsKeystoreErrorOnWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
	acct, err := ks.NewAccount("correct-horse")
	require.NoError(t, err)

	_, _, err = Unlock(acct.URL.Path, "wrong-passphrase")
	var ksErr *errs.KeystoreError
	assert.ErrorAs(t, err, &ksErr)
}

func TestKeystoreDirReturnsParentDirectory(t *testing.T) {
	assert.Equal(t, "/foo/bar", keystoreDir("/foo/bar/UTC--keyfile"))
	assert.Equal(t, "nokeyfile", keystoreDir("nokeyfile"))
}
