package ui

import (
	"bufio"
	"context"
	"os"
	"strings"

	"flowwallet.io/wallet-link/internal/fcl"
	"flowwallet.io/wallet-link/pkg/log"
)

// TerminalPrompter resolves approval prompts on stdin. It doubles as the
// Notifier and Router for headless runs.
type TerminalPrompter struct {
	reader *bufio.Reader
}

func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{
		reader: bufio.NewReader(os.Stdin),
	}
}

func (in *TerminalPrompter) Authn(ctx context.Context, prompt AuthnPrompt) (bool, error) {
	log.Infof("session proposal from %v (%v) on %v, wallet %v",
		prompt.Title, prompt.Origin, prompt.Network, prompt.WalletAddress)
	return in.confirm(ctx)
}

func (in *TerminalPrompter) Authz(ctx context.Context, prompt AuthzPrompt) (bool, error) {
	log.Infof("authorization request from %v (%v)", prompt.Title, prompt.URL)
	log.Infof("cadence:\n%v", prompt.Cadence)
	return in.confirm(ctx)
}

func (in *TerminalPrompter) SignMessage(ctx context.Context, prompt MessagePrompt) (bool, error) {
	log.Infof("message signature request from %v (%v): %v", prompt.Title, prompt.URL, prompt.Message)
	return in.confirm(ctx)
}

func (in *TerminalPrompter) AddDevice(ctx context.Context, prompt DevicePrompt) (bool, error) {
	log.Infof("device key request from %v (%v)", prompt.Request.DeviceInfo.Name, prompt.Request.DeviceInfo.DeviceID)
	return in.confirm(ctx)
}

func (in *TerminalPrompter) confirm(ctx context.Context) (bool, error) {
	type answer struct {
		approved bool
		err      error
	}
	resolved := make(chan answer, 1)
	go func() {
		log.Info("approve? [y/N]")
		line, err := in.reader.ReadString('\n')
		if err != nil {
			resolved <- answer{err: err}
			return
		}
		line = strings.ToLower(strings.TrimSpace(line))
		resolved <- answer{approved: line == "y" || line == "yes"}
	}()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-resolved:
		return a.approved, a.err
	}
}

func (in *TerminalPrompter) Success(title string) {
	log.Infof("✓ %v", title)
}

func (in *TerminalPrompter) Error(title string) {
	log.Warnf("✗ %v", title)
}

func (in *TerminalPrompter) ReturnToApp(uri string) {
	log.Debugf("return to caller at %v", uri)
}

func (in *TerminalPrompter) AccountInfoReceived(info fcl.AccountInfo) {
	log.Infof("account info received for %v (%v)", info.UserName, info.WalletAddress)
}

func (in *TerminalPrompter) DeviceStatusChanged(status, message string) {
	log.Infof("device sync status changed: %v %v", status, message)
}
