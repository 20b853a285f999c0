package keystore

import (
	"fmt"
	"strings"

	"github.com/cosmos/cosmos-sdk/crypto/hd"
	"github.com/cosmos/go-bip39"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultHDPath is the first Ethereum account.
const DefaultHDPath = "m/44'/60'/0'/0/0"

// FromMnemonic derives a signer from a BIP-39 phrase along hdPath.
// An empty hdPath selects DefaultHDPath.
func FromMnemonic(mnemonic, hdPath string) (*Signer, error) {
	if hdPath == "" {
		hdPath = DefaultHDPath
	}

	seed, err := bip39.NewSeedWithErrorChecking(normalizeMnemonic(mnemonic), "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	master, ch := hd.ComputeMastersFromSeed(seed)

	priv, err := hd.DerivePrivateKeyForPath(master, ch, hdPath)
	if err != nil {
		return nil, fmt.Errorf("derive %s: %w", hdPath, err)
	}

	key, err := crypto.ToECDSA(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return newSigner(key), nil
}

// NewMnemonic returns a fresh 24-word phrase.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// Load accepts either a hex private key or a mnemonic. hdPath only applies
// to mnemonics.
func Load(secret, hdPath string) (*Signer, error) {
	if IsMnemonic(secret) {
		return FromMnemonic(secret, hdPath)
	}
	return FromHex(secret)
}

// IsMnemonic reports whether secret looks like a word list rather than hex.
func IsMnemonic(secret string) bool {
	return len(strings.Fields(secret)) > 1
}

func normalizeMnemonic(m string) string {
	return strings.Join(strings.Fields(m), " ")
}
