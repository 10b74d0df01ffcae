// Package walletkey unlocks the engine's one wallet from an encrypted
// keystore file, using go-ethereum's accounts/keystore — the same
// library the domain stack already wires in for address/ABI handling,
// applied here to the keystore/address concern the engine's own wallet
// needs rather than to a counterparty contract.
package walletkey

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"

	"lp-agent/internal/errs"
)

// Unlock decrypts the keystore file at path with passphrase and returns
// the account plus the keystore handle needed to sign with it. Any
// failure here is a *errs.KeystoreError — fatal at startup per the error
// taxonomy.
func Unlock(path, passphrase string) (accounts.Account, *keystore.KeyStore, error) {
	if _, err := os.Stat(path); err != nil {
		return accounts.Account{}, nil, &errs.KeystoreError{Err: fmt.Errorf("keystore file %q: %w", path, err)}
	}

	dir := keystoreDir(path)
	ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)

	for _, acct := range ks.Accounts() {
		if acct.URL.Path == path {
			if err := ks.Unlock(acct, passphrase); err != nil {
				return accounts.Account{}, nil, &errs.KeystoreError{Err: fmt.Errorf("unlock failed: %w", err)}
			}
			return acct, ks, nil
		}
	}
	return accounts.Account{}, nil, &errs.KeystoreError{Err: fmt.Errorf("no account found at %q in keystore dir %q", path, dir)}
}

func keystoreDir(path string) string {
	dir := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			dir = path[:i]
			break
		}
	}
	return dir
}
