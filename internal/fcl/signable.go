package fcl

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"io/ioutil"

	"flowwallet.io/wallet-link/pkg/errors"
)

// ErrDecodeFailed marks a malformed request payload. Terminal for the
// request it belongs to, never retried.
var ErrDecodeFailed = errors.New("payload decode failed")

// Signable is the decoded payload of an authorization request: who signs in
// which role, the cadence script with its arguments, the message to sign
// and the voucher for payer-sponsored flows.
type Signable struct {
	FType   string            `json:"f_type"`
	FVsn    string            `json:"f_vsn"`
	Addr    string            `json:"addr"`
	Roles   Roles             `json:"roles"`
	Cadence string            `json:"cadence"`
	Args    []json.RawMessage `json:"args"`
	Message string            `json:"message"`
	Voucher Voucher           `json:"voucher"`
}

// Roles selects the signing branch: payer-only vouchers are sponsor signed
// without user interaction, everything else goes through approval.
type Roles struct {
	Proposer   bool `json:"proposer"`
	Authorizer bool `json:"authorizer"`
	Payer      bool `json:"payer"`
}

// PayerOnly reports whether the wallet acts purely as the fee payer.
func (in Roles) PayerOnly() bool {
	return in.Payer && !in.Proposer && !in.Authorizer
}

// Voucher is the transaction envelope the sponsor signs for payer flows.
type Voucher struct {
	Cadence      string            `json:"cadence"`
	RefBlock     string            `json:"refBlock"`
	ComputeLimit uint64            `json:"computeLimit"`
	Arguments    []json.RawMessage `json:"arguments"`
	ProposalKey  ProposalKey       `json:"proposalKey"`
	Payer        string            `json:"payer"`
	Authorizers  []string          `json:"authorizers"`
	PayloadSigs  []VoucherSig      `json:"payloadSigs"`
	EnvelopeSigs []VoucherSig      `json:"envelopeSigs"`
}

type ProposalKey struct {
	Address     string `json:"address"`
	KeyID       int    `json:"keyId"`
	SequenceNum uint64 `json:"sequenceNum"`
}

type VoucherSig struct {
	Address string `json:"address"`
	KeyID   int    `json:"keyId"`
	Sig     string `json:"sig"`
}

// SignableMessage is the decoded payload of a user-signature request.
type SignableMessage struct {
	Addr    string `json:"addr"`
	Message string `json:"message"`
}

// BaseConfigRequest is the dApp configuration handed over with an
// authentication request. Only the account-proof fields matter to the
// wallet; both are optional.
type BaseConfigRequest struct {
	AppIdentifier     string `json:"appIdentifier"`
	AccountProofNonce string `json:"accountProofNonce"`
}

// DeviceKeyRequest is the key registration a companion device submits
// during the sync handshake. The wire format is snake_case JSON.
type DeviceKeyRequest struct {
	AccountKey AccountKey `json:"account_key"`
	DeviceInfo DeviceInfo `json:"device_info"`
}

type AccountKey struct {
	PublicKey string `json:"public_key"`
	SignAlgo  int    `json:"sign_algo"`
	HashAlgo  int    `json:"hash_algo"`
	Weight    int    `json:"weight"`
}

type DeviceInfo struct {
	DeviceID  string `json:"device_id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	UserAgent string `json:"user_agent"`
}

// UnwrapParams extracts the wrapped JSON string out of request params,
// which arrive as a one-element JSON string array.
func UnwrapParams(params []byte) (string, error) {
	var wrapped []string
	if err := json.Unmarshal(params, &wrapped); err != nil {
		return "", errors.Wrap(ErrDecodeFailed, "params are not a string array")
	}
	if len(wrapped) == 0 {
		return "", errors.Wrap(ErrDecodeFailed, "params array is empty")
	}
	return wrapped[0], nil
}

// DecodeSignable decodes an authorization payload. The payload is either
// raw JSON text or base64 of gzip-compressed JSON; base64+gzip is attempted
// first, direct JSON is the fallback. Contract, not incidental recovery.
func DecodeSignable(payload string) (*Signable, error) {
	raw := []byte(payload)
	if decoded, err := base64.StdEncoding.DecodeString(payload); err == nil && isGzipped(decoded) {
		uncompressed, err := gunzip(decoded)
		if err != nil {
			return nil, errors.Wrap(ErrDecodeFailed, err.Error())
		}
		raw = uncompressed
	}
	var signable Signable
	if err := json.Unmarshal(raw, &signable); err != nil {
		return nil, errors.Wrap(ErrDecodeFailed, err.Error())
	}
	return &signable, nil
}

// DecodeSignableMessage decodes a user-signature payload.
func DecodeSignableMessage(payload string) (*SignableMessage, error) {
	var msg SignableMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return nil, errors.Wrap(ErrDecodeFailed, err.Error())
	}
	if msg.Message == "" {
		return nil, errors.Wrap(ErrDecodeFailed, "signable message is empty")
	}
	return &msg, nil
}

// DecodeBaseConfig decodes the authn configuration payload.
func DecodeBaseConfig(payload string) (*BaseConfigRequest, error) {
	var config BaseConfigRequest
	if err := json.Unmarshal([]byte(payload), &config); err != nil {
		return nil, errors.Wrap(ErrDecodeFailed, err.Error())
	}
	return &config, nil
}

// DecodeDeviceKeyRequest decodes the device registration payload of an
// add-device request.
func DecodeDeviceKeyRequest(payload string) (*DeviceKeyRequest, error) {
	var request DeviceKeyRequest
	if err := json.Unmarshal([]byte(payload), &request); err != nil {
		return nil, errors.Wrap(ErrDecodeFailed, err.Error())
	}
	return &request, nil
}

func isGzipped(data []byte) bool {
	return len(data) > 2 && data[0] == 0x1f && data[1] == 0x8b
}

func gunzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "open gzip payload")
	}
	defer reader.Close()
	uncompressed, err := ioutil.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "gunzip payload")
	}
	return uncompressed, nil
}
