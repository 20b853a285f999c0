// Package keystore loads secp256k1 keys and signs or authenticates request
// payloads. Principals are identified by their Ethereum-style address.
package keystore

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the length of an [R || S || V] signature.
const SignatureLength = crypto.SignatureLength

// Signer holds a private key and its derived address.
type Signer struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// FromHex loads a signer from a hex private key, with or without 0x prefix.
func FromHex(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidKey)
	}

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	return newSigner(key), nil
}

// Generate creates a signer with a fresh random key.
func Generate() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return newSigner(key), nil
}

func newSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{
		key:  key,
		addr: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address returns the signer's address.
func (s *Signer) Address() common.Address {
	return s.addr
}

// PrivateKeyHex returns the 0x-prefixed hex private key.
func (s *Signer) PrivateKeyHex() string {
	return "0x" + hex.EncodeToString(crypto.FromECDSA(s.key))
}

// Sign signs msg using EIP-191 personal message hashing. V is 27 or 28.
func (s *Signer) Sign(msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// SignHex signs msg and returns the 0x-prefixed hex signature.
func (s *Signer) SignHex(msg []byte) (string, error) {
	sig, err := s.Sign(msg)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// Recover returns the address that produced sig over msg.
func Recover(msg, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}

	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	if normalized[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("%w: bad recovery id", ErrInvalidSignature)
	}

	pub, err := crypto.SigToPub(accounts.TextHash(msg), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// RecoverHex is Recover for a hex encoded signature.
func RecoverHex(msg []byte, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(sigHex), "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return Recover(msg, sig)
}

// ParseAddress parses a 0x-prefixed hex address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}
