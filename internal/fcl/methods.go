package fcl

// Protocol method names served by the wallet over a session.
const (
	MethodAuthn         = "flow_authn"
	MethodPreAuthz      = "flow_pre_authz"
	MethodAuthz         = "flow_authz"
	MethodUserSignature = "flow_user_sign"
	MethodAccountInfo   = "frw_account_info"
	MethodAddDeviceInfo = "frw_add_device_key"
)

// Namespace is the CAIP namespace all wallet sessions are scoped to.
const Namespace = "flow"

// DefaultChainID is the chain requests are issued on when the caller does
// not narrow it down.
const DefaultChainID = "flow:mainnet"

// ServiceType identifies a capability endpoint inside a service definition.
type ServiceType string

const (
	ServiceTypeAuthn         ServiceType = "authn"
	ServiceTypeAuthz         ServiceType = "authz"
	ServiceTypePreAuthz      ServiceType = "pre-authz"
	ServiceTypeUserSignature ServiceType = "user-signature"
	ServiceTypeAccountProof  ServiceType = "account-proof"
)

// SupportedMethods lists every method the dispatcher knows how to answer,
// advertised during session approval.
func SupportedMethods() []string {
	return []string{
		MethodAuthn,
		MethodPreAuthz,
		MethodAuthz,
		MethodUserSignature,
		MethodAccountInfo,
		MethodAddDeviceInfo,
	}
}
