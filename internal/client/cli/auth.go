package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/safelog/internal/client/client"
	"github.com/dmitrijs2005/safelog/internal/client/wallet"
	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/cryptox"
)

// getPrivateKey is a test seam for GetPrivateKey.
var getPrivateKey = GetPrivateKey

func (a *App) loadWallet() (*wallet.Wallet, error) {
	if a.config != nil && a.config.KeyFile != "" {
		return wallet.FromFile(a.config.KeyFile)
	}
	pk, err := getPrivateKey(a.out)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(pk)
	return wallet.FromHex(string(pk))
}

// Login signs the server's nonce challenge with the wallet and derives the
// vault key from a second signature over cryptox.VaultKeyMessage.
func (a *App) Login(ctx context.Context) error {
	w, err := a.loadWallet()
	if err != nil {
		fmt.Fprintln(a.out, "Error loading wallet:", err)
		return err
	}

	challenge, err := a.api.Nonce(ctx, w.Address())
	if err != nil {
		fmt.Fprintln(a.out, "Error requesting nonce:", err)
		return err
	}

	sig, err := w.Sign(challenge.Message)
	if err != nil {
		return err
	}

	sess, err := a.api.Login(ctx, client.LoginRequest{
		Address:             w.Address(),
		Nonce:               challenge.Nonce,
		Signature:           sig,
		EncryptionPublicKey: w.PublicKeyHex(),
	})
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			fmt.Fprintln(a.out, "Login failed: signature rejected")
		} else {
			fmt.Fprintln(a.out, "Login failed:", err)
		}
		return err
	}

	unlock, err := w.SignBytes(cryptox.VaultKeyMessage)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(unlock)

	common.WipeByteArray(a.vaultKey)
	a.vaultKey = cryptox.DeriveVaultKey(unlock, w.Address())
	a.wallet = w
	a.session = sess
	a.setMode(ModeOnline)

	fmt.Fprintln(a.out, "Logged in as", w.Address())
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	common.WipeByteArray(a.vaultKey)
	a.vaultKey = nil
	a.session = nil
	a.wallet = nil
	if hc, ok := a.api.(*client.HTTPClient); ok {
		hc.SetToken("")
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}
