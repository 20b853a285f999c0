package custody

import "errors"

var (
	// ErrUnknownAsset indicates the id was never minted or has been burned.
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrNotOwner indicates the caller does not own the asset.
	ErrNotOwner = errors.New("caller is not the asset owner")
	// ErrUnauthorized indicates the caller is neither owner nor approved.
	ErrUnauthorized = errors.New("caller is not owner or approved")
	// ErrInvalidRecipient indicates a transfer to the zero address.
	ErrInvalidRecipient = errors.New("invalid recipient")
)
