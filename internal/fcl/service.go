package fcl

// Service is a capability-endpoint descriptor returned inside responses.
// Built fresh per response, never shared.
type Service struct {
	FType    string                 `json:"f_type"`
	FVsn     string                 `json:"f_vsn"`
	Type     ServiceType            `json:"type"`
	UID      string                 `json:"uid"`
	Endpoint string                 `json:"endpoint"`
	ID       string                 `json:"id,omitempty"`
	Method   string                 `json:"method"`
	Identity *ServiceIdentity       `json:"identity,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// ServiceIdentity names the account and key a service acts with.
type ServiceIdentity struct {
	Address string `json:"address"`
	KeyID   int    `json:"keyId"`
}

const (
	serviceMethodWalletConnect = "WC/RPC"
	serviceUIDPrefix           = "frw#"
)

func endpointForType(t ServiceType) string {
	switch t {
	case ServiceTypePreAuthz:
		return MethodPreAuthz
	case ServiceTypeAuthz:
		return MethodAuthz
	case ServiceTypeUserSignature:
		return MethodUserSignature
	default:
		return MethodAuthn
	}
}

// ServiceDefinition builds the definition of one capability endpoint bound
// to the given account and key index.
func ServiceDefinition(address string, keyID int, serviceType ServiceType) Service {
	return Service{
		FType:    "Service",
		FVsn:     fclVersion,
		Type:     serviceType,
		UID:      serviceUIDPrefix + string(serviceType),
		Endpoint: endpointForType(serviceType),
		ID:       address,
		Method:   serviceMethodWalletConnect,
		Identity: &ServiceIdentity{
			Address: address,
			KeyID:   keyID,
		},
	}
}

// AccountProofServiceDefinition builds the account-proof service carrying
// the signature the wallet produced over the proof encoding.
func AccountProofServiceDefinition(address string, keyID int, nonce, signature string) Service {
	return Service{
		FType:    "Service",
		FVsn:     fclVersion,
		Type:     ServiceTypeAccountProof,
		UID:      serviceUIDPrefix + string(ServiceTypeAccountProof),
		Endpoint: "flow_account_proof",
		Method:   "DATA",
		Data: map[string]interface{}{
			"f_type":  "account-proof",
			"f_vsn":   "2.0.0",
			"address": address,
			"nonce":   nonce,
			"signatures": []interface{}{
				map[string]interface{}{
					"f_type":    "CompositeSignature",
					"f_vsn":     fclVersion,
					"addr":      address,
					"keyId":     keyID,
					"signature": signature,
				},
			},
		},
	}
}
