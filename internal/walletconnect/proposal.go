package walletconnect

import (
	"context"
	"strings"

	"flowwallet.io/wallet-link/internal/fcl"
	"flowwallet.io/wallet-link/internal/sign"
	"flowwallet.io/wallet-link/internal/ui"
	"flowwallet.io/wallet-link/pkg/log"
	"flowwallet.io/wallet-link/pkg/wcrelay"
)

const reasonUserRejected = "user rejected"

// handleProposal runs the proposal state machine:
// received -> auto-approved | awaiting-user-decision -> approved | rejected.
func (in *Manager) handleProposal(ctx context.Context, proposal sign.Proposal) {
	log.Infof("wallet connect - session proposal %v from %v", proposal.ID, proposal.Proposer.Name)

	// Trust reuse: a peer we already hold a pairing with skips the prompt.
	in.store.ReloadPairings()
	if in.store.HasPairingWithPeer(proposal.Proposer) {
		in.approveSession(ctx, proposal)
		return
	}

	reference := flowChainReference(proposal)
	if reference == "" {
		// Malformed: no chain requested under the flow namespace.
		in.rejectSession(ctx, proposal)
		return
	}

	prompt := ui.AuthnPrompt{
		Title:         proposal.Proposer.Name,
		URL:           proposal.Proposer.URL,
		Origin:        wcrelay.ExtractRootDomain(proposal.Proposer.URL),
		Logo:          firstIcon(proposal.Proposer),
		WalletAddress: in.wallet.PrimaryAddress(),
		Network:       strings.ToLower(reference),
	}

	go func() {
		approved, err := in.prompter.Authn(ctx, prompt)
		if err != nil {
			log.Warnf("wallet connect - authn prompt failed: %v", err)
			in.rejectSession(ctx, proposal)
			return
		}
		if approved {
			in.approveSession(ctx, proposal)
		} else {
			in.rejectSession(ctx, proposal)
		}
	}()
}

// flowChainReference returns the first chain reference requested under the
// flow namespace, empty when none is present.
func flowChainReference(proposal sign.Proposal) string {
	ns, ok := proposal.RequiredNamespaces[fcl.Namespace]
	if !ok {
		return ""
	}
	for _, chain := range ns.Chains {
		if strings.HasPrefix(chain, fcl.Namespace+":") {
			return strings.TrimPrefix(chain, fcl.Namespace+":")
		}
	}
	return ""
}

// approveSession grants one namespace per requested namespace: every
// requested chain is kept and qualified with the wallet's primary address,
// requested methods and events are carried through verbatim.
func (in *Manager) approveSession(ctx context.Context, proposal sign.Proposal) {
	account := in.wallet.PrimaryAddress()
	if account == "" {
		log.Warn("wallet connect - no primary address, proposal left unresolved")
		return
	}

	namespaces := make(map[string]sign.Namespace)
	for name, required := range proposal.RequiredNamespaces {
		if len(required.Chains) == 0 {
			continue
		}
		accounts := make([]string, 0, len(required.Chains))
		for _, chain := range required.Chains {
			accounts = append(accounts, chain+":"+account)
		}
		namespaces[name] = sign.Namespace{
			Accounts: accounts,
			Methods:  required.Methods,
			Events:   required.Events,
		}
	}

	if err := in.client.Approve(ctx, proposal.ID, namespaces); err != nil {
		log.Errorf("wallet connect - approve session %v: %v", proposal.ID, err)
		in.notifyError("Approve failed")
		return
	}
	in.notifySuccess("Approved")
}

func (in *Manager) rejectSession(ctx context.Context, proposal sign.Proposal) {
	if err := in.client.Reject(ctx, proposal.ID, reasonUserRejected); err != nil {
		log.Errorf("wallet connect - reject session %v: %v", proposal.ID, err)
		in.notifyError("Reject failed")
		return
	}
	in.notifySuccess("Rejected")
}

func firstIcon(meta sign.AppMetadata) string {
	if len(meta.Icons) == 0 {
		return ""
	}
	return meta.Icons[0]
}
