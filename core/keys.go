package core

// Mnemonic-backed key derivation: a human-writable recovery phrase for a
// signing key, the round-trip wallet UX spec.md §1 leaves in scope (it
// scopes out only a full wallet service beyond that).
//
// Grounded on core/wallet.go's NewRandomWallet/WalletFromMnemonic pair,
// narrowed from HD multi-account derivation (spec.md has no account/index
// hierarchy, one script hash per tx) to a single seed-to-key derivation.

import (
	"errors"

	bip39 "github.com/tyler-smith/go-bip39"
)

// NewMnemonicKeyPair generates entropyBits of randomness (must be a
// multiple of 32 in [128, 256]), returning the recovery phrase alongside
// the key it derives.
func NewMnemonicKeyPair(entropyBits int) (PrivateKey, PublicKey, string, error) {
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return PrivateKey{}, PublicKey{}, "", err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return PrivateKey{}, PublicKey{}, "", err
	}
	sk, pk, err := KeyPairFromMnemonic(mnemonic, "")
	return sk, pk, mnemonic, err
}

// KeyPairFromMnemonic re-derives the keypair a mnemonic (plus optional
// passphrase) produced via NewMnemonicKeyPair.
func KeyPairFromMnemonic(mnemonic, passphrase string) (PrivateKey, PublicKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return PrivateKey{}, PublicKey{}, errors.New("core: invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	var sk PrivateKey
	copy(sk[:], seed[:PrivateKeySize])
	return sk, sk.Public(), nil
}
