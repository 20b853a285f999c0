package keystore

import "errors"

var (
	// ErrInvalidKey indicates a private key that cannot be parsed.
	ErrInvalidKey = errors.New("invalid private key")
	// ErrInvalidSignature indicates a malformed or unrecoverable signature.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidAddress indicates a malformed address.
	ErrInvalidAddress = errors.New("invalid address")
)

// ErrInvalidMnemonic indicates a BIP-39 phrase with bad words or checksum.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")
