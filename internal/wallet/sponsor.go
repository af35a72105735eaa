package wallet

import (
	"context"

	"flowwallet.io/wallet-link/internal/config"
	"flowwallet.io/wallet-link/internal/fcl"
	"flowwallet.io/wallet-link/pkg/errors"
)

// SignVoucherFn performs the actual envelope signature for the sponsor
// account. Custody of the sponsor key is not this module's concern.
type SignVoucherFn func(ctx context.Context, voucher fcl.Voucher, data []byte) ([]byte, error)

type sponsorService struct {
	address  string
	keyIndex int
	signFn   SignVoucherFn
}

// NewSponsor builds the fee-payer collaborator from the configured sponsor
// account and a delegate signing function.
func NewSponsor(conf config.Sponsor, signFn SignVoucherFn) Sponsor {
	return &sponsorService{
		address:  conf.Address,
		keyIndex: conf.KeyIndex,
		signFn:   signFn,
	}
}

func (in *sponsorService) Address() string {
	return in.address
}

func (in *sponsorService) KeyIndex() int {
	return in.keyIndex
}

func (in *sponsorService) Sign(ctx context.Context, voucher fcl.Voucher, data []byte) ([]byte, error) {
	if in.signFn == nil {
		return nil, errors.New("sponsor signer not configured")
	}
	return in.signFn(ctx, voucher, data)
}
