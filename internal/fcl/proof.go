package fcl

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"flowwallet.io/wallet-link/pkg/errors"
)

// DomainTagLength is the fixed byte length every domain tag is padded to.
const DomainTagLength = 32

var (
	// AccountProofDomainTag prefixes account-proof encodings.
	AccountProofDomainTag = DomainTag("FCL-ACCOUNT-PROOF-V0.0")
	// UserDomainTag prefixes user-signature messages.
	UserDomainTag = DomainTag("FLOW-V0.0-user")
)

// DomainTag right-pads tag with zero bytes to DomainTagLength.
func DomainTag(tag string) []byte {
	padded := make([]byte, DomainTagLength)
	copy(padded, tag)
	return padded
}

// EncodeAccountProof deterministically encodes the payload the wallet signs
// to prove account ownership to a dApp:
//
//	domainTag ‖ RLP([appIdentifier, addressBytes, nonceBytes])
//
// with the tag omitted when includeDomainTag is false.
func EncodeAccountProof(address, nonce, appIdentifier string, includeDomainTag bool) ([]byte, error) {
	addressBytes, err := hexBytes(address)
	if err != nil {
		return nil, errors.Wrap(err, "decode account proof address")
	}
	nonceBytes, err := hexBytes(nonce)
	if err != nil {
		return nil, errors.Wrap(err, "decode account proof nonce")
	}
	list := []interface{}{
		[]byte(appIdentifier),
		addressBytes,
		nonceBytes,
	}
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return nil, errors.Wrap(err, "rlp encode account proof")
	}
	if !includeDomainTag {
		return encoded, nil
	}
	return append(AccountProofDomainTag, encoded...), nil
}

// UserSignatureMessage is the byte string signed for a user-signature
// request: userDomainTag ‖ message, where message is hex encoded on the wire.
func UserSignatureMessage(messageHex string) ([]byte, error) {
	message, err := hexBytes(messageHex)
	if err != nil {
		return nil, errors.Wrap(err, "decode signable message hex")
	}
	return append(UserDomainTag, message...), nil
}

func hexBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}
