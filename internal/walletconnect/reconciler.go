package walletconnect

import (
	"context"
	"sync"
	"time"

	"flowwallet.io/wallet-link/pkg/log"
)

// pendingRequestCheckInterval is the fixed reconcile period while a user
// session is active.
const pendingRequestCheckInterval = 10 * time.Second

// reconciler periodically re-fetches the transport's authoritative
// pending-request list to cover push-delivery gaps. It is not a decision
// point; dispatch stays with the push-driven request handling.
type reconciler struct {
	manager  *Manager
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newReconciler(manager *Manager) *reconciler {
	return &reconciler{
		manager:  manager,
		interval: pendingRequestCheckInterval,
	}
}

func (in *reconciler) start(ctx context.Context) {
	in.stop()
	ctx, cancel := context.WithCancel(ctx)
	in.mu.Lock()
	in.cancel = cancel
	in.mu.Unlock()
	go in.run(ctx)
	log.Debugf("wallet connect - pending request reconciler started, period %v", in.interval)
}

func (in *reconciler) stop() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.cancel != nil {
		in.cancel()
		in.cancel = nil
		log.Debug("wallet connect - pending request reconciler stopped")
	}
}

func (in *reconciler) run(ctx context.Context) {
	ticker := time.NewTicker(in.interval)
	defer ticker.Stop()
	in.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			in.refresh(ctx)
		}
	}
}

// refresh replaces the cached pending list wholesale, only while a user
// session is active.
func (in *reconciler) refresh(ctx context.Context) {
	if !in.manager.wallet.LoggedIn() {
		return
	}
	if err := in.manager.store.ReloadPendingRequests(ctx); err != nil {
		log.Warnf("wallet connect - reload pending requests: %v", err)
	}
}
