package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"flowwallet.io/wallet-link/internal/fcl"
	"flowwallet.io/wallet-link/internal/sign"
	"flowwallet.io/wallet-link/pkg/errors"
)

type stubClient struct {
	sessions   []sign.Session
	pairings   []sign.Pairing
	pending    []sign.Request
	pendingErr error
}

func (in *stubClient) Pair(ctx context.Context, uri string) error          { return nil }
func (in *stubClient) Disconnect(ctx context.Context, topic string) error  { return nil }
func (in *stubClient) Approve(ctx context.Context, proposalID string, namespaces map[string]sign.Namespace) error {
	return nil
}
func (in *stubClient) Reject(ctx context.Context, proposalID string, reason string) error { return nil }
func (in *stubClient) Respond(ctx context.Context, topic string, requestID int64, response []byte) error {
	return nil
}
func (in *stubClient) Request(ctx context.Context, topic, method string, params []byte, chainID string) error {
	return nil
}
func (in *stubClient) PendingRequests(ctx context.Context) ([]sign.Request, error) {
	return in.pending, in.pendingErr
}
func (in *stubClient) Sessions() []sign.Session  { return in.sessions }
func (in *stubClient) Pairings() []sign.Pairing  { return in.pairings }
func (in *stubClient) Events() <-chan sign.Event { return nil }

func metadata(name string) sign.AppMetadata {
	return sign.AppMetadata{
		Name:        name,
		Description: "peer description",
		URL:         "https://" + name + ".example.com",
		Icons:       []string{"https://" + name + ".example.com/icon.png"},
	}
}

func flowSession(topic string, methods ...string) sign.Session {
	return sign.Session{
		Topic: topic,
		Peer:  metadata("dapp"),
		Namespaces: map[string]sign.Namespace{
			fcl.Namespace: {
				Accounts: []string{"flow:mainnet:0x1234abcd5678ef90"},
				Methods:  methods,
			},
		},
	}
}

func TestReloadSessionsReplacesWholesale(t *testing.T) {
	client := &stubClient{sessions: []sign.Session{flowSession("t1", fcl.MethodAuthz)}}
	store := NewStore(client)

	store.ReloadSessions()
	require.Len(t, store.Sessions(), 1)

	client.sessions = nil
	store.ReloadSessions()
	assert.Empty(t, store.Sessions())
}

func TestFindSessionByTopic(t *testing.T) {
	client := &stubClient{sessions: []sign.Session{
		flowSession("t1", fcl.MethodAuthz),
		flowSession("t2", fcl.MethodUserSignature),
	}}
	store := NewStore(client)
	store.ReloadSessions()

	found := store.FindSession("t2")
	require.NotNil(t, found)
	assert.Equal(t, "t2", found.Topic)
	assert.Nil(t, store.FindSession("missing"))
}

func TestFindSessionByMethod(t *testing.T) {
	client := &stubClient{sessions: []sign.Session{
		flowSession("t1", fcl.MethodAuthz),
		flowSession("t2", fcl.MethodAccountInfo),
	}}
	store := NewStore(client)
	store.ReloadSessions()

	found := store.FindSessionByMethod(fcl.MethodAccountInfo, fcl.Namespace)
	require.NotNil(t, found)
	assert.Equal(t, "t2", found.Topic)
	assert.Nil(t, store.FindSessionByMethod(fcl.MethodAccountInfo, "eip155"))
	assert.Nil(t, store.FindSessionByMethod("flow_unknown", fcl.Namespace))
}

func TestHasPairingWithPeer(t *testing.T) {
	client := &stubClient{pairings: []sign.Pairing{
		{Topic: "p1", Peer: metadata("dapp"), Active: true},
		{Topic: "p2", Peer: metadata("pending"), Active: false},
	}}
	store := NewStore(client)
	store.ReloadPairings()

	assert.True(t, store.HasPairingWithPeer(metadata("dapp")))
	assert.False(t, store.HasPairingWithPeer(metadata("other")))
	// A pairing that has not settled yet carries the proposer's metadata
	// but must not vouch for it.
	assert.False(t, store.HasPairingWithPeer(metadata("pending")))

	// Same name with different icon set is a different peer identity.
	altered := metadata("dapp")
	altered.Icons = nil
	assert.False(t, store.HasPairingWithPeer(altered))
}

func TestReloadPendingRequests(t *testing.T) {
	client := &stubClient{pending: []sign.Request{{ID: 7, Topic: "t1", Method: fcl.MethodAuthz}}}
	store := NewStore(client)

	require.NoError(t, store.ReloadPendingRequests(context.Background()))
	require.Len(t, store.PendingRequests(), 1)
	assert.EqualValues(t, 7, store.PendingRequests()[0].ID)

	store.ClearPendingRequests()
	assert.Empty(t, store.PendingRequests())
}

func TestReloadPendingRequestsKeepsCacheOnError(t *testing.T) {
	client := &stubClient{pending: []sign.Request{{ID: 7, Topic: "t1", Method: fcl.MethodAuthz}}}
	store := NewStore(client)
	require.NoError(t, store.ReloadPendingRequests(context.Background()))

	client.pendingErr = errors.New("relay unreachable")
	assert.Error(t, store.ReloadPendingRequests(context.Background()))
	// A failed fetch never wipes the last good copy.
	assert.Len(t, store.PendingRequests(), 1)
}

func TestSnapshotsAreCopies(t *testing.T) {
	client := &stubClient{sessions: []sign.Session{flowSession("t1", fcl.MethodAuthz)}}
	store := NewStore(client)
	store.ReloadSessions()

	snapshot := store.Sessions()
	snapshot[0].Topic = "mutated"
	assert.Equal(t, "t1", store.Sessions()[0].Topic)
}
