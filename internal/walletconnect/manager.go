package walletconnect

import (
	"context"
	"sync"

	"go.uber.org/atomic"
	"flowwallet.io/wallet-link/internal/session"
	"flowwallet.io/wallet-link/internal/sign"
	"flowwallet.io/wallet-link/internal/ui"
	"flowwallet.io/wallet-link/internal/wallet"
	"flowwallet.io/wallet-link/pkg/errors"
	"flowwallet.io/wallet-link/pkg/log"
)

// Manager owns the wallet side of the pairing/session protocol: it projects
// the transport's session state, dispatches inbound requests to approval and
// signing, and answers every request with exactly one response or rejection.
type Manager struct {
	client   sign.Client
	store    *session.Store
	wallet   wallet.Provider
	sponsor  wallet.Sponsor
	prompter ui.Prompter
	router   ui.Router
	notifier ui.Notifier
	observer ui.SyncObserver

	started atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	// In-flight approval state is keyed by id so concurrent proposals or
	// requests cannot clobber each other.
	mu               sync.Mutex
	inflightRequests map[int64]struct{}

	syncAccountFlag atomic.Bool

	reconciler *reconciler
}

// Deps bundles the collaborators a Manager is constructed from.
type Deps struct {
	Client   sign.Client
	Wallet   wallet.Provider
	Sponsor  wallet.Sponsor
	Prompter ui.Prompter
	Router   ui.Router
	Notifier ui.Notifier
	Observer ui.SyncObserver
}

func NewManager(deps Deps) *Manager {
	m := &Manager{
		client:           deps.Client,
		store:            session.NewStore(deps.Client),
		wallet:           deps.Wallet,
		sponsor:          deps.Sponsor,
		prompter:         deps.Prompter,
		router:           deps.Router,
		notifier:         deps.Notifier,
		observer:         deps.Observer,
		inflightRequests: make(map[int64]struct{}),
	}
	m.reconciler = newReconciler(m)
	return m
}

// Store exposes the session projection for read-only callers.
func (in *Manager) Store() *session.Store {
	return in.store
}

// Start projects current transport state and begins consuming push events.
func (in *Manager) Start(ctx context.Context) {
	if !in.started.CAS(false, true) {
		log.Warn("wallet connect - manager already started")
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	in.cancel = cancel
	in.done = make(chan struct{})

	in.store.ReloadSessions()
	in.store.ReloadPairings()
	if in.wallet.LoggedIn() {
		in.reconciler.start(ctx)
	}

	go in.eventLoop(ctx)
	log.Info("wallet connect - manager started")
}

// Stop halts the event loop and the reconciler.
func (in *Manager) Stop() {
	if !in.started.CAS(true, false) {
		return
	}
	in.reconciler.stop()
	in.cancel()
	<-in.done
	log.Info("wallet connect - manager stopped")
}

// Connect pairs with a peer from an out-of-band uri.
func (in *Manager) Connect(ctx context.Context, uri string) error {
	log.Debugf("wallet connect - pairing to %v", uri)
	if err := in.client.Pair(ctx, uri); err != nil {
		in.notifyError("Connect failed")
		return errors.Wrap(err, "pair with uri")
	}
	return nil
}

// Disconnect tears down the pairing or session behind topic.
func (in *Manager) Disconnect(ctx context.Context, topic string) error {
	if err := in.client.Disconnect(ctx, topic); err != nil {
		in.notifyError("Disconnect failed")
		return errors.Wrap(err, "disconnect topic")
	}
	in.store.ReloadSessions()
	in.store.ReloadPairings()
	return nil
}

// HandleLogin starts the pending-request reconciler for the authenticated
// user session.
func (in *Manager) HandleLogin(ctx context.Context) {
	in.reconciler.start(ctx)
}

// HandleLogout stops the reconciler and clears the cached pending list.
func (in *Manager) HandleLogout() {
	in.reconciler.stop()
	in.store.ClearPendingRequests()
}

// HandleForeground triggers an immediate pending-request refresh when the
// host application becomes active.
func (in *Manager) HandleForeground(ctx context.Context) {
	in.reconciler.refresh(ctx)
}

// eventLoop is the single consumer of the transport's push stream; per-topic
// delivery order is preserved because nothing here reorders or coalesces.
func (in *Manager) eventLoop(ctx context.Context) {
	defer close(in.done)
	events := in.client.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				log.Warn("wallet connect - event stream closed")
				return
			}
			in.handleEvent(ctx, event)
		}
	}
}

func (in *Manager) handleEvent(ctx context.Context, event sign.Event) {
	log.Debugf("wallet connect - event %v topic %v", event.Type, event.Topic)
	switch event.Type {
	case sign.EventConnectionStatus:
		if event.Connected {
			log.Info("wallet connect - relay connected")
		} else {
			log.Warn("wallet connect - relay disconnected")
		}
	case sign.EventSessionProposal:
		if event.Proposal != nil {
			in.handleProposal(ctx, *event.Proposal)
		}
	case sign.EventSessionSettle:
		in.store.ReloadSessions()
		if event.Session != nil {
			in.sendSyncAccount(ctx, *event.Session)
		}
	case sign.EventSessionRequest:
		if event.Request != nil {
			in.handleRequest(ctx, *event.Request)
		}
	case sign.EventSessionResponse:
		if event.Response != nil {
			in.handleResponse(*event.Response)
		}
	case sign.EventSessionDelete:
		in.store.ReloadSessions()
	case sign.EventSessionUpdate, sign.EventSessionExtend:
		in.store.ReloadSessions()
	case sign.EventSessionEvent:
		// Namespace events carry no wallet-side state.
	}
}

// navigateBackToApp hands control back to the calling dApp when the peer
// registered a native return address.
func (in *Manager) navigateBackToApp(topic string) {
	found := in.store.FindSession(topic)
	if found == nil || found.Peer.Redirect == nil || found.Peer.Redirect.Native == "" {
		return
	}
	in.router.ReturnToApp(found.Peer.Redirect.Native)
}

func (in *Manager) notifySuccess(title string) {
	if in.notifier != nil {
		in.notifier.Success(title)
	}
}

func (in *Manager) notifyError(title string) {
	if in.notifier != nil {
		in.notifier.Error(title)
	}
}
