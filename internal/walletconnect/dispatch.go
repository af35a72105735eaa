package walletconnect

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"flowwallet.io/wallet-link/internal/fcl"
	"flowwallet.io/wallet-link/internal/sign"
	"flowwallet.io/wallet-link/internal/ui"
	"flowwallet.io/wallet-link/pkg/log"
)

// Fixed rejection reason codes.
const (
	reasonRejectRequest     = "User reject request"
	reasonDecodeFailed      = "decode failed"
	reasonAccountNotFound   = "account not found"
	reasonSessionNotFound   = "session not found"
	reasonUnsupportedMethod = "unsupported method"
)

// handleRequest runs the per-request state machine keyed by method name.
// Every branch terminates in exactly one response or rejection for the
// request id; failures degrade to an explicit rejection so the peer is
// never left without a reply.
func (in *Manager) handleRequest(ctx context.Context, request sign.Request) {
	if !in.beginRequest(request.ID) {
		log.Warnf("wallet connect - request %v already in flight, dropped", request.ID)
		return
	}
	log.Infof("wallet connect - request %v method %v on %v", request.ID, request.Method, request.Topic)

	switch request.Method {
	case fcl.MethodAuthn:
		in.handleAuthn(ctx, request)
	case fcl.MethodPreAuthz:
		in.handlePreAuthz(ctx, request)
	case fcl.MethodAuthz:
		in.handleAuthz(ctx, request)
	case fcl.MethodUserSignature:
		in.handleUserSignature(ctx, request)
	case fcl.MethodAccountInfo:
		in.handleAccountInfo(ctx, request)
	case fcl.MethodAddDeviceInfo:
		in.handleAddDeviceInfo(ctx, request)
	default:
		in.rejectRequest(ctx, request, reasonUnsupportedMethod)
	}
}

func (in *Manager) beginRequest(id int64) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if _, inflight := in.inflightRequests[id]; inflight {
		return false
	}
	in.inflightRequests[id] = struct{}{}
	return true
}

func (in *Manager) endRequest(id int64) {
	in.mu.Lock()
	delete(in.inflightRequests, id)
	in.mu.Unlock()
}

// respond delivers the terminal success response; a transport failure
// falls back to an explicit rejection attempt.
func (in *Manager) respond(ctx context.Context, request sign.Request, payload []byte) {
	defer in.endRequest(request.ID)
	if err := in.client.Respond(ctx, request.Topic, request.ID, payload); err != nil {
		log.Errorf("wallet connect - respond to %v: %v", request.ID, err)
		in.sendRejection(ctx, request, reasonRejectRequest, 1)
		return
	}
	in.notifySuccess("Approved")
}

// rejectRequest is the terminal rejection path. Rejection is a protocol
// response with a declined status, not a transport error.
func (in *Manager) rejectRequest(ctx context.Context, request sign.Request, reason string) {
	defer in.endRequest(request.ID)
	in.sendRejection(ctx, request, reason, 1)
}

// sendRejection retries once on transport failure to maximize delivery.
func (in *Manager) sendRejection(ctx context.Context, request sign.Request, reason string, retries int) {
	payload := fcl.NewDeclinedResponse(reason).Marshal()
	if err := in.client.Respond(ctx, request.Topic, request.ID, payload); err != nil {
		log.Errorf("wallet connect - reject %v: %v", request.ID, err)
		in.notifyError("Reject failed")
		if retries > 0 {
			in.sendRejection(ctx, request, reason, retries-1)
		}
		return
	}
	in.notifySuccess("Rejected")
}

// handleAuthn answers an authentication request with the wallet's service
// definitions, augmented best-effort with an account proof.
func (in *Manager) handleAuthn(ctx context.Context, request sign.Request) {
	payload, err := fcl.UnwrapParams(request.Params)
	if err != nil {
		in.rejectRequest(ctx, request, reasonDecodeFailed)
		return
	}

	go func() {
		address := in.wallet.PrimaryAddress()
		keyID := in.wallet.KeyIndex()
		services := []fcl.Service{
			fcl.ServiceDefinition(in.sponsor.Address(), in.sponsor.KeyIndex(), fcl.ServiceTypePreAuthz),
			fcl.ServiceDefinition(address, keyID, fcl.ServiceTypeAuthn),
			fcl.ServiceDefinition(address, keyID, fcl.ServiceTypeAuthz),
			fcl.ServiceDefinition(address, keyID, fcl.ServiceTypeUserSignature),
		}
		if proof := in.accountProofService(ctx, payload, address, keyID); proof != nil {
			services = append(services, *proof)
		}
		in.respond(ctx, request, fcl.NewAuthnResponse(address, services).Marshal())
		in.navigateBackToApp(request.Topic)
	}()
}

// accountProofService builds the account-proof service when the dApp asked
// for one. Best effort: a missing nonce or a signing failure omits the
// service, never the whole response.
func (in *Manager) accountProofService(ctx context.Context, payload, address string, keyID int) *fcl.Service {
	config, err := fcl.DecodeBaseConfig(payload)
	if err != nil || config.AccountProofNonce == "" || config.AppIdentifier == "" {
		return nil
	}
	proof, err := fcl.EncodeAccountProof(address, config.AccountProofNonce, config.AppIdentifier, true)
	if err != nil {
		log.Warnf("wallet connect - encode account proof: %v", err)
		return nil
	}
	signature, err := in.wallet.Sign(ctx, proof)
	if err != nil {
		log.Warnf("wallet connect - account proof signing failed, proof omitted: %v", err)
		return nil
	}
	service := fcl.AccountProofServiceDefinition(address, keyID, config.AccountProofNonce, hex.EncodeToString(signature))
	return &service
}

// handlePreAuthz answers with the proposer/payer/authorization triple:
// the wallet proposes and authorizes, the sponsor pays.
func (in *Manager) handlePreAuthz(ctx context.Context, request sign.Request) {
	go func() {
		address := in.wallet.PrimaryAddress()
		keyID := in.wallet.KeyIndex()
		response := fcl.NewPreAuthzResponse(
			fcl.ServiceDefinition(address, keyID, fcl.ServiceTypeAuthz),
			[]fcl.Service{fcl.ServiceDefinition(in.sponsor.Address(), in.sponsor.KeyIndex(), fcl.ServiceTypeAuthz)},
			[]fcl.Service{fcl.ServiceDefinition(address, keyID, fcl.ServiceTypeAuthz)},
		)
		in.respond(ctx, request, response.Marshal())
	}()
}

// handleAuthz decodes the Signable and picks the branch its role flags
// select: payer-only is sponsor signed without interaction, everything
// else goes to user approval.
func (in *Manager) handleAuthz(ctx context.Context, request sign.Request) {
	payload, err := fcl.UnwrapParams(request.Params)
	if err != nil {
		in.rejectRequest(ctx, request, reasonDecodeFailed)
		return
	}
	signable, err := fcl.DecodeSignable(payload)
	if err != nil {
		in.rejectRequest(ctx, request, reasonDecodeFailed)
		return
	}

	if signable.Roles.PayerOnly() {
		go func() {
			in.approvePayerRequest(ctx, request, signable)
			in.navigateBackToApp(request.Topic)
		}()
		return
	}

	found := in.store.FindSession(request.Topic)
	if found == nil {
		in.rejectRequest(ctx, request, reasonSessionNotFound)
		return
	}

	prompt := ui.AuthzPrompt{
		Title:   found.Peer.Name,
		URL:     found.Peer.URL,
		Logo:    firstIcon(found.Peer),
		Cadence: signable.Cadence,
		Message: signable.Message,
	}
	go func() {
		approved, err := in.prompter.Authz(ctx, prompt)
		if err != nil || !approved {
			in.rejectRequest(ctx, request, reasonRejectRequest)
		} else {
			in.approveAuthzRequest(ctx, request, signable)
		}
		if signable.Roles.Payer {
			in.navigateBackToApp(request.Topic)
		}
	}()
}

// approveAuthzRequest signs the signable message with the wallet key and
// responds with the composite signature.
func (in *Manager) approveAuthzRequest(ctx context.Context, request sign.Request, signable *fcl.Signable) {
	message, err := hexDecode(signable.Message)
	if err != nil {
		in.rejectRequest(ctx, request, reasonDecodeFailed)
		return
	}
	signature, err := in.wallet.Sign(ctx, message)
	if err != nil {
		log.Errorf("wallet connect - authz signing failed: %v", err)
		in.rejectRequest(ctx, request, reasonRejectRequest)
		return
	}
	response := fcl.NewCompositeSignatureResponse(in.wallet.PrimaryAddress(), in.wallet.KeyIndex(), hex.EncodeToString(signature))
	in.respond(ctx, request, response.Marshal())
}

// approvePayerRequest signs the voucher through the sponsor collaborator.
func (in *Manager) approvePayerRequest(ctx context.Context, request sign.Request, signable *fcl.Signable) {
	message, err := hexDecode(signable.Message)
	if err != nil {
		in.rejectRequest(ctx, request, reasonDecodeFailed)
		return
	}
	signature, err := in.sponsor.Sign(ctx, signable.Voucher, message)
	if err != nil {
		log.Errorf("wallet connect - payer signing failed: %v", err)
		in.rejectRequest(ctx, request, reasonRejectRequest)
		return
	}
	response := fcl.NewCompositeSignatureResponse(in.wallet.PrimaryAddress(), in.wallet.KeyIndex(), hex.EncodeToString(signature))
	in.respond(ctx, request, response.Marshal())
}

// handleUserSignature always routes to user approval; the signature covers
// userDomainTag ‖ message.
func (in *Manager) handleUserSignature(ctx context.Context, request sign.Request) {
	payload, err := fcl.UnwrapParams(request.Params)
	if err != nil {
		in.rejectRequest(ctx, request, reasonDecodeFailed)
		return
	}
	message, err := fcl.DecodeSignableMessage(payload)
	if err != nil {
		in.rejectRequest(ctx, request, reasonDecodeFailed)
		return
	}
	found := in.store.FindSession(request.Topic)
	if found == nil {
		in.rejectRequest(ctx, request, reasonSessionNotFound)
		return
	}

	prompt := ui.MessagePrompt{
		Title:   found.Peer.Name,
		URL:     found.Peer.URL,
		Logo:    firstIcon(found.Peer),
		Message: message.Message,
	}
	go func() {
		approved, err := in.prompter.SignMessage(ctx, prompt)
		if err != nil || !approved {
			in.rejectRequest(ctx, request, reasonRejectRequest)
		} else {
			in.approveUserSignature(ctx, request, message)
		}
		in.navigateBackToApp(request.Topic)
	}()
}

func (in *Manager) approveUserSignature(ctx context.Context, request sign.Request, message *fcl.SignableMessage) {
	data, err := fcl.UserSignatureMessage(message.Message)
	if err != nil {
		in.rejectRequest(ctx, request, reasonDecodeFailed)
		return
	}
	signature, err := in.wallet.Sign(ctx, data)
	if err != nil {
		log.Errorf("wallet connect - user signature signing failed: %v", err)
		in.rejectRequest(ctx, request, reasonRejectRequest)
		return
	}
	response := fcl.NewCompositeSignatureResponse(in.wallet.PrimaryAddress(), in.wallet.KeyIndex(), hex.EncodeToString(signature))
	in.respond(ctx, request, response.Marshal())
}

// handleAccountInfo answers with the local profile, auto-approved when an
// account is active.
func (in *Manager) handleAccountInfo(ctx context.Context, request sign.Request) {
	go func() {
		account := in.wallet.CurrentAccount()
		if account == nil {
			in.rejectRequest(ctx, request, reasonAccountNotFound)
			return
		}
		response, err := fcl.NewAccountInfoResponse(fcl.AccountInfo{
			UserAvatar:    account.Avatar,
			UserName:      account.Nickname,
			WalletAddress: in.wallet.PrimaryAddress(),
			UserID:        account.UserID,
		})
		if err != nil {
			in.rejectRequest(ctx, request, reasonDecodeFailed)
			return
		}
		in.respond(ctx, request, response.Marshal())
	}()
}

// handleAddDeviceInfo routes a companion device's key registration to the
// device-sync approval prompt.
func (in *Manager) handleAddDeviceInfo(ctx context.Context, request sign.Request) {
	var params map[string]string
	if err := json.Unmarshal(request.Params, &params); err != nil {
		in.rejectRequest(ctx, request, reasonDecodeFailed)
		return
	}
	data, ok := params["data"]
	if !ok {
		in.rejectRequest(ctx, request, reasonDecodeFailed)
		return
	}
	register, err := fcl.DecodeDeviceKeyRequest(data)
	if err != nil {
		in.rejectRequest(ctx, request, reasonDecodeFailed)
		return
	}

	go func() {
		approved, err := in.prompter.AddDevice(ctx, ui.DevicePrompt{Request: *register})
		if err != nil || !approved {
			in.rejectRequest(ctx, request, reasonRejectRequest)
			return
		}
		in.respond(ctx, request, fcl.NewAddDeviceAckResponse().Marshal())
	}()
}

func hexDecode(s string) ([]byte, error) {
	if len(s) >= 2 && s[0:2] == "0x" {
		s = s[2:]
	}
	return hex.DecodeString(s)
}
