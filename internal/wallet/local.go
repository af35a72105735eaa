package wallet

import (
	"context"
	"sync"

	"flowwallet.io/wallet-link/pkg/errors"
)

// SignFn performs the actual signature for the primary account key. Key
// custody lives behind it.
type SignFn func(ctx context.Context, data []byte) ([]byte, error)

// localProvider projects an already-unlocked local account. It holds no
// key material itself.
type localProvider struct {
	mu       sync.RWMutex
	address  string
	keyIndex int
	account  *Account
	signFn   SignFn
}

// NewLocalProvider builds the account collaborator for an unlocked wallet.
// account may be nil while logged out.
func NewLocalProvider(address string, keyIndex int, account *Account, signFn SignFn) Provider {
	return &localProvider{
		address:  address,
		keyIndex: keyIndex,
		account:  account,
		signFn:   signFn,
	}
}

func (in *localProvider) PrimaryAddress() string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.address
}

func (in *localProvider) KeyIndex() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.keyIndex
}

func (in *localProvider) Sign(ctx context.Context, data []byte) ([]byte, error) {
	in.mu.RLock()
	signFn := in.signFn
	in.mu.RUnlock()
	if signFn == nil {
		return nil, errors.New("wallet signer not configured")
	}
	return signFn(ctx, data)
}

func (in *localProvider) CurrentAccount() *Account {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.account == nil {
		return nil
	}
	account := *in.account
	return &account
}

func (in *localProvider) LoggedIn() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.account != nil
}
