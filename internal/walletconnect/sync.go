package walletconnect

import (
	"context"
	"encoding/json"

	qrcode "github.com/skip2/go-qrcode"
	"flowwallet.io/wallet-link/internal/fcl"
	"flowwallet.io/wallet-link/internal/sign"
	"flowwallet.io/wallet-link/pkg/errors"
	"flowwallet.io/wallet-link/pkg/log"
)

// Sync-account flow: a one-shot cross-device profile pull. The gate is
// armed explicitly, consumed by the first session settle, and never fires
// again without re-arming.

// PrepareSyncAccount arms the gate: the next settled session triggers an
// account-info request to the peer device.
func (in *Manager) PrepareSyncAccount() {
	in.syncAccountFlag.Store(true)
}

// ResetSyncAccount disarms the gate.
func (in *Manager) ResetSyncAccount() {
	in.syncAccountFlag.Store(false)
}

// sendSyncAccount consumes the armed gate and sends exactly one
// account-info request over the newly settled session. Fire and forget:
// transport errors are logged, not retried here.
func (in *Manager) sendSyncAccount(ctx context.Context, settled sign.Session) {
	if !in.syncAccountFlag.CAS(true, false) {
		return
	}
	log.Info("[sync account] send request for account info")

	params, err := json.Marshal([]string{""})
	if err != nil {
		log.Errorf("[sync account] marshal params: %v", err)
		return
	}
	if err := in.client.Request(ctx, settled.Topic, fcl.MethodAccountInfo, params, fcl.DefaultChainID); err != nil {
		log.Errorf("[sync account] request account info: %v", err)
	}
}

// RequestAccountInfo asks a connected peer device for its profile over the
// first session granting the account-info method.
func (in *Manager) RequestAccountInfo(ctx context.Context) error {
	found := in.store.FindSessionByMethod(fcl.MethodAccountInfo, fcl.Namespace)
	if found == nil {
		return errors.New("no session grants account info")
	}
	params, err := json.Marshal([]string{""})
	if err != nil {
		return errors.Wrap(err, "marshal account info params")
	}
	return in.client.Request(ctx, found.Topic, fcl.MethodAccountInfo, params, fcl.DefaultChainID)
}

// handleResponse routes peer answers to our outbound sync requests.
func (in *Manager) handleResponse(response sign.Response) {
	if response.Error != "" {
		log.Errorf("wallet connect - response %v failed: %v", response.ID, response.Error)
		in.notifyError("Process failed")
		return
	}
	result, err := fcl.ParseMethodResponse(response.Result)
	if err != nil {
		log.Debugf("wallet connect - response %v is not a method response", response.ID)
		return
	}
	switch result.Method {
	case fcl.MethodAccountInfo:
		var info fcl.AccountInfo
		if err := json.Unmarshal([]byte(result.Data), &info); err != nil {
			log.Errorf("wallet connect - unmarshal account info: %v", err)
			return
		}
		if in.observer != nil {
			in.observer.AccountInfoReceived(info)
		}
	case fcl.MethodAddDeviceInfo:
		if in.observer != nil {
			in.observer.DeviceStatusChanged(result.Status, result.Message)
		}
	}
}

// PairingQRCode renders a pairing uri as a QR PNG for the companion-device
// handshake.
func PairingQRCode(uri string) ([]byte, error) {
	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		return nil, errors.WrapAndReport(err, "encode pairing qr code")
	}
	return png, nil
}
