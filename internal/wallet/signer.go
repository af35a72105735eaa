package wallet

import (
	"context"
	"crypto/sha256"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"flowwallet.io/wallet-link/internal/fcl"
	"flowwallet.io/wallet-link/pkg/errors"
)

// NewSecp256k1Signer builds a SignFn over a hex-encoded secp256k1 private
// key. Messages are hashed with SHA2-256; the signature is the raw 64-byte
// r||s pair.
func NewSecp256k1Signer(privateKeyHex string) (SignFn, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "decode secp256k1 private key")
	}
	return func(ctx context.Context, data []byte) ([]byte, error) {
		digest := sha256.Sum256(data)
		signature, err := crypto.Sign(digest[:], key)
		if err != nil {
			return nil, errors.Wrap(err, "sign message digest")
		}
		// Drop the recovery byte, verifiers only take r||s.
		return signature[:64], nil
	}, nil
}

// NewVoucherSigner adapts a plain SignFn into the sponsor's envelope
// signer. The voucher itself carries no extra signing input here; the
// payload to sign arrives pre-encoded.
func NewVoucherSigner(sign SignFn) SignVoucherFn {
	return func(ctx context.Context, _ fcl.Voucher, data []byte) ([]byte, error) {
		return sign(ctx, data)
	}
}
