package fcl

import (
	"encoding/json"

	"flowwallet.io/wallet-link/pkg/errors"
	"flowwallet.io/wallet-link/pkg/log"
)

const (
	pollingResponseType = "PollingResponse"
	fclVersion          = "1.0.0"

	StatusApproved = "APPROVED"
	StatusDeclined = "DECLINED"
)

// PollingResponse is the envelope every method response travels in.
// The Data payload is method specific; the constructors below build the
// exact shape each method needs.
type PollingResponse struct {
	FType  string     `json:"f_type"`
	FVsn   string     `json:"f_vsn"`
	Status string     `json:"status"`
	Data   *AuthnData `json:"data,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

func (in *PollingResponse) Approved() bool {
	return in.Status == StatusApproved
}

func (in *PollingResponse) Marshal() []byte {
	bytes, err := json.Marshal(in)
	if err != nil {
		log.Errorf("marshal polling response:%v", err)
	}
	return bytes
}

// AuthnData carries the per-method payload of an approved response:
// service definitions for authn, the proposer/payer/authorization triple for
// pre-authz, or a single composite signature for authz and user signatures.
type AuthnData struct {
	FType         string    `json:"f_type"`
	FVsn          string    `json:"f_vsn"`
	Addr          string    `json:"addr,omitempty"`
	Services      []Service `json:"services,omitempty"`
	Proposer      *Service  `json:"proposer,omitempty"`
	Payer         []Service `json:"payer,omitempty"`
	Authorization []Service `json:"authorization,omitempty"`
	KeyID         *int      `json:"keyId,omitempty"`
	Signature     string    `json:"signature,omitempty"`
}

// NewAuthnResponse wraps the wallet's advertised services for an
// authentication request.
func NewAuthnResponse(addr string, services []Service) *PollingResponse {
	return &PollingResponse{
		FType:  pollingResponseType,
		FVsn:   fclVersion,
		Status: StatusApproved,
		Data: &AuthnData{
			FType:    "AuthnResponse",
			FVsn:     fclVersion,
			Addr:     addr,
			Services: services,
		},
	}
}

// NewPreAuthzResponse describes who proposes, pays for and authorizes a
// transaction the peer is about to build.
func NewPreAuthzResponse(proposer Service, payer, authorization []Service) *PollingResponse {
	return &PollingResponse{
		FType:  pollingResponseType,
		FVsn:   fclVersion,
		Status: StatusApproved,
		Data: &AuthnData{
			FType:         "AuthnResponse",
			FVsn:          fclVersion,
			Proposer:      &proposer,
			Payer:         payer,
			Authorization: authorization,
		},
	}
}

// NewCompositeSignatureResponse carries one signature produced for an
// authorization or user-signature request.
func NewCompositeSignatureResponse(addr string, keyID int, signature string) *PollingResponse {
	return &PollingResponse{
		FType:  pollingResponseType,
		FVsn:   fclVersion,
		Status: StatusApproved,
		Data: &AuthnData{
			FType:     "CompositeSignature",
			FVsn:      fclVersion,
			Addr:      addr,
			KeyID:     &keyID,
			Signature: signature,
		},
	}
}

// NewDeclinedResponse is the terminal rejection for a request. Rejection is
// a protocol response with its own status, not a transport error.
func NewDeclinedResponse(reason string) *PollingResponse {
	return &PollingResponse{
		FType:  pollingResponseType,
		FVsn:   fclVersion,
		Status: StatusDeclined,
		Reason: reason,
	}
}

// MethodResponse is the envelope for the wallet-to-wallet methods
// (account info, device key registration): the method echoed back with a
// JSON payload and an optional status/message pair.
type MethodResponse struct {
	Method  string `json:"method"`
	Data    string `json:"data"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

func (in *MethodResponse) Marshal() []byte {
	bytes, err := json.Marshal(in)
	if err != nil {
		log.Errorf("marshal method response:%v", err)
	}
	return bytes
}

// ParseMethodResponse decodes a peer's method response envelope. Returns an
// error when the payload is not one.
func ParseMethodResponse(data []byte) (*MethodResponse, error) {
	var resp MethodResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, errors.Wrap(err, "unmarshal method response")
	}
	if resp.Method == "" {
		return nil, errors.New("method response missing method")
	}
	return &resp, nil
}

// AccountInfo is the profile payload exchanged by the sync-account flow.
type AccountInfo struct {
	UserAvatar    string `json:"userAvatar"`
	UserName      string `json:"userName"`
	WalletAddress string `json:"walletAddress"`
	UserID        string `json:"userId"`
}

// NewAccountInfoResponse embeds the local profile into a method response.
func NewAccountInfoResponse(info AccountInfo) (*MethodResponse, error) {
	data, err := json.Marshal(info)
	if err != nil {
		return nil, errors.Wrap(err, "marshal account info")
	}
	return &MethodResponse{
		Method: MethodAccountInfo,
		Data:   string(data),
	}, nil
}

// NewAddDeviceAckResponse acknowledges an accepted device key registration.
func NewAddDeviceAckResponse() *MethodResponse {
	return &MethodResponse{
		Method: MethodAddDeviceInfo,
		Data:   "",
		Status: "1",
	}
}
