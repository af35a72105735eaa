package session

import (
	"context"
	"sync"

	"flowwallet.io/wallet-link/internal/sign"
	"flowwallet.io/wallet-link/pkg/log"
)

// Store is the in-memory projection of the transport's pairings, sessions
// and pending requests. The transport owns the data; the store only holds
// read-only copies replaced wholesale on every relevant push event, so
// observers never see a partially updated list.
type Store struct {
	client sign.Client

	mu              sync.RWMutex
	activeSessions  []sign.Session
	activePairings  []sign.Pairing
	pendingRequests []sign.Request
}

func NewStore(client sign.Client) *Store {
	return &Store{
		client: client,
	}
}

// ReloadSessions replaces the cached session list with the transport's
// current settled sessions. Safe to call from any event source.
func (in *Store) ReloadSessions() {
	settled := in.client.Sessions()
	in.mu.Lock()
	in.activeSessions = settled
	in.mu.Unlock()
}

// ReloadPairings replaces the cached pairing list.
func (in *Store) ReloadPairings() {
	active := in.client.Pairings()
	in.mu.Lock()
	in.activePairings = active
	in.mu.Unlock()
}

// ReloadPendingRequests re-fetches the server-held pending-request list and
// replaces the cached copy wholesale.
func (in *Store) ReloadPendingRequests(ctx context.Context) error {
	pending, err := in.client.PendingRequests(ctx)
	if err != nil {
		return err
	}
	in.mu.Lock()
	in.pendingRequests = pending
	in.mu.Unlock()
	log.Debugf("session store - reloaded %v pending requests", len(pending))
	return nil
}

// ClearPendingRequests drops the cached pending list, used on logout.
func (in *Store) ClearPendingRequests() {
	in.mu.Lock()
	in.pendingRequests = nil
	in.mu.Unlock()
}

// Sessions returns a snapshot of the active sessions.
func (in *Store) Sessions() []sign.Session {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return copySessions(in.activeSessions)
}

// Pairings returns a snapshot of the active pairings.
func (in *Store) Pairings() []sign.Pairing {
	in.mu.RLock()
	defer in.mu.RUnlock()
	snapshot := make([]sign.Pairing, len(in.activePairings))
	copy(snapshot, in.activePairings)
	return snapshot
}

// PendingRequests returns a snapshot of the cached pending-request list.
func (in *Store) PendingRequests() []sign.Request {
	in.mu.RLock()
	defer in.mu.RUnlock()
	snapshot := make([]sign.Request, len(in.pendingRequests))
	copy(snapshot, in.pendingRequests)
	return snapshot
}

// FindSession returns the session settled on the exact topic, or nil.
func (in *Store) FindSession(topic string) *sign.Session {
	in.mu.RLock()
	defer in.mu.RUnlock()
	for i := range in.activeSessions {
		if in.activeSessions[i].Topic == topic {
			found := in.activeSessions[i]
			return &found
		}
	}
	return nil
}

// FindSessionByMethod returns a session whose namespace grants the given
// method. When several match, which one is returned is implementation
// defined and may change across reloads.
func (in *Store) FindSessionByMethod(method, namespace string) *sign.Session {
	in.mu.RLock()
	defer in.mu.RUnlock()
	for i := range in.activeSessions {
		ns, ok := in.activeSessions[i].Namespaces[namespace]
		if !ok {
			continue
		}
		for _, m := range ns.Methods {
			if m == method {
				found := in.activeSessions[i]
				return &found
			}
		}
	}
	return nil
}

// HasPairingWithPeer reports whether a settled pairing already trusts this
// exact peer identity. A pairing still awaiting settlement carries the
// proposer's metadata but grants no trust.
func (in *Store) HasPairingWithPeer(peer sign.AppMetadata) bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	for _, pairing := range in.activePairings {
		if pairing.Active && samePeer(pairing.Peer, peer) {
			return true
		}
	}
	return false
}

func samePeer(a, b sign.AppMetadata) bool {
	if a.Name != b.Name || a.Description != b.Description || a.URL != b.URL {
		return false
	}
	if len(a.Icons) != len(b.Icons) {
		return false
	}
	for i := range a.Icons {
		if a.Icons[i] != b.Icons[i] {
			return false
		}
	}
	return true
}

func copySessions(sessions []sign.Session) []sign.Session {
	snapshot := make([]sign.Session, len(sessions))
	copy(snapshot, sessions)
	return snapshot
}
