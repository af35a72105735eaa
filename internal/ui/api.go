package ui

import (
	"context"

	"flowwallet.io/wallet-link/internal/fcl"
)

// Prompter is the approval collaborator: the dispatcher sends an
// approval-needed prompt and blocks that request on the boolean resolution.
// One request, one resolution.
type Prompter interface {
	// Authn asks the user to approve a new session with a peer.
	Authn(ctx context.Context, prompt AuthnPrompt) (bool, error)

	// Authz asks the user to authorize a transaction.
	Authz(ctx context.Context, prompt AuthzPrompt) (bool, error)

	// SignMessage asks the user to sign an arbitrary message.
	SignMessage(ctx context.Context, prompt MessagePrompt) (bool, error)

	// AddDevice asks the user to admit a companion device key.
	AddDevice(ctx context.Context, prompt DevicePrompt) (bool, error)
}

// AuthnPrompt carries the proposer identity shown to the user. Origin is
// the registrable domain of URL, for consistent display.
type AuthnPrompt struct {
	Title         string
	URL           string
	Origin        string
	Logo          string
	WalletAddress string
	Network       string
}

// AuthzPrompt carries the transaction the user is asked to authorize.
type AuthzPrompt struct {
	Title   string
	URL     string
	Logo    string
	Cadence string
	Message string
}

// MessagePrompt carries the message the user is asked to sign.
type MessagePrompt struct {
	Title   string
	URL     string
	Logo    string
	Message string
}

// DevicePrompt carries a companion device's key registration.
type DevicePrompt struct {
	Request fcl.DeviceKeyRequest
}

// Router performs back-to-caller navigation after terminal responses.
type Router interface {
	// ReturnToApp hands control back to the peer at its registered
	// return address.
	ReturnToApp(uri string)
}

// Notifier surfaces non-fatal, transient status notices to the user.
type Notifier interface {
	Success(title string)
	Error(title string)
}

// SyncObserver receives the results of cross-device sync exchanges.
type SyncObserver interface {
	// AccountInfoReceived delivers the profile pulled from another device.
	AccountInfoReceived(info fcl.AccountInfo)

	// DeviceStatusChanged delivers the peer's device registration outcome.
	DeviceStatusChanged(status, message string)
}
