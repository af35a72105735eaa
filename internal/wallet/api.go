package wallet

import (
	"context"

	"flowwallet.io/wallet-link/internal/fcl"
)

// Provider is the key/account custody boundary. The actual key material
// and signing algorithm live behind it.
type Provider interface {
	// PrimaryAddress returns the wallet's primary account address, empty
	// when no account is active.
	PrimaryAddress() string

	// KeyIndex returns the index of the device key on the primary account.
	KeyIndex() int

	// Sign signs the given bytes with the primary account key.
	Sign(ctx context.Context, data []byte) ([]byte, error)

	// CurrentAccount returns the active local profile, nil when logged out.
	CurrentAccount() *Account

	// LoggedIn reports whether a user session is active.
	LoggedIn() bool
}

// Account is the local user profile exposed to the sync-account flow.
type Account struct {
	UserID   string
	Nickname string
	Avatar   string
}

// Sponsor signs transaction envelopes as the fee payer.
type Sponsor interface {
	// Address returns the sponsor account address.
	Address() string

	// KeyIndex returns the sponsor signing key index.
	KeyIndex() int

	// Sign signs the voucher's signable bytes with the sponsor key.
	Sign(ctx context.Context, voucher fcl.Voucher, data []byte) ([]byte, error)
}
