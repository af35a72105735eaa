package walletconnect

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"flowwallet.io/wallet-link/internal/fcl"
	"flowwallet.io/wallet-link/internal/sign"
	"flowwallet.io/wallet-link/internal/ui"
	"flowwallet.io/wallet-link/internal/wallet"
	"flowwallet.io/wallet-link/pkg/errors"
)

const testTimeout = 2 * time.Second

type respondCall struct {
	topic     string
	requestID int64
	response  fcl.PollingResponse
	raw       []byte
	failed    bool
}

type requestCall struct {
	topic   string
	method  string
	chainID string
}

type approveCall struct {
	proposalID string
	namespaces map[string]sign.Namespace
}

type rejectCall struct {
	proposalID string
	reason     string
}

type fakeClient struct {
	mu              sync.Mutex
	events          chan sign.Event
	responds        chan respondCall
	requests        chan requestCall
	approves        chan approveCall
	rejects         chan rejectCall
	sessions        []sign.Session
	pairings        []sign.Pairing
	pending         []sign.Request
	respondFailures int
	pendingCalls    atomic.Int64
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		events:   make(chan sign.Event, 16),
		responds: make(chan respondCall, 16),
		requests: make(chan requestCall, 16),
		approves: make(chan approveCall, 16),
		rejects:  make(chan rejectCall, 16),
	}
}

func (in *fakeClient) Pair(ctx context.Context, uri string) error { return nil }

func (in *fakeClient) Disconnect(ctx context.Context, topic string) error { return nil }

func (in *fakeClient) Approve(ctx context.Context, proposalID string, namespaces map[string]sign.Namespace) error {
	in.approves <- approveCall{proposalID: proposalID, namespaces: namespaces}
	return nil
}

func (in *fakeClient) Reject(ctx context.Context, proposalID string, reason string) error {
	in.rejects <- rejectCall{proposalID: proposalID, reason: reason}
	return nil
}

func (in *fakeClient) Respond(ctx context.Context, topic string, requestID int64, response []byte) error {
	in.mu.Lock()
	fail := in.respondFailures > 0
	if fail {
		in.respondFailures--
	}
	in.mu.Unlock()
	var decoded fcl.PollingResponse
	_ = json.Unmarshal(response, &decoded)
	in.responds <- respondCall{
		topic:     topic,
		requestID: requestID,
		response:  decoded,
		raw:       response,
		failed:    fail,
	}
	if fail {
		return errors.New("transport send failed")
	}
	return nil
}

func (in *fakeClient) Request(ctx context.Context, topic, method string, params []byte, chainID string) error {
	in.requests <- requestCall{topic: topic, method: method, chainID: chainID}
	return nil
}

func (in *fakeClient) PendingRequests(ctx context.Context) ([]sign.Request, error) {
	in.pendingCalls.Inc()
	in.mu.Lock()
	defer in.mu.Unlock()
	pending := make([]sign.Request, len(in.pending))
	copy(pending, in.pending)
	return pending, nil
}

func (in *fakeClient) Sessions() []sign.Session {
	in.mu.Lock()
	defer in.mu.Unlock()
	sessions := make([]sign.Session, len(in.sessions))
	copy(sessions, in.sessions)
	return sessions
}

func (in *fakeClient) Pairings() []sign.Pairing {
	in.mu.Lock()
	defer in.mu.Unlock()
	pairings := make([]sign.Pairing, len(in.pairings))
	copy(pairings, in.pairings)
	return pairings
}

func (in *fakeClient) Events() <-chan sign.Event { return in.events }

type fakeWallet struct {
	address  string
	keyIndex int
	account  *wallet.Account
	signErr  error
	signed   atomic.Int64
}

func (in *fakeWallet) PrimaryAddress() string { return in.address }

func (in *fakeWallet) KeyIndex() int { return in.keyIndex }

func (in *fakeWallet) Sign(ctx context.Context, data []byte) ([]byte, error) {
	in.signed.Inc()
	if in.signErr != nil {
		return nil, in.signErr
	}
	return []byte("wallet-signature"), nil
}

func (in *fakeWallet) CurrentAccount() *wallet.Account { return in.account }

func (in *fakeWallet) LoggedIn() bool { return in.account != nil }

type fakeSponsor struct {
	address  string
	keyIndex int
	signErr  error
	signed   atomic.Int64
}

func (in *fakeSponsor) Address() string { return in.address }

func (in *fakeSponsor) KeyIndex() int { return in.keyIndex }

func (in *fakeSponsor) Sign(ctx context.Context, voucher fcl.Voucher, data []byte) ([]byte, error) {
	in.signed.Inc()
	if in.signErr != nil {
		return nil, in.signErr
	}
	return []byte("sponsor-signature"), nil
}

type fakePrompter struct {
	approve     bool
	authnCalls  atomic.Int64
	authzCalls  atomic.Int64
	signCalls   atomic.Int64
	deviceCalls atomic.Int64
}

func (in *fakePrompter) Authn(ctx context.Context, prompt ui.AuthnPrompt) (bool, error) {
	in.authnCalls.Inc()
	return in.approve, nil
}

func (in *fakePrompter) Authz(ctx context.Context, prompt ui.AuthzPrompt) (bool, error) {
	in.authzCalls.Inc()
	return in.approve, nil
}

func (in *fakePrompter) SignMessage(ctx context.Context, prompt ui.MessagePrompt) (bool, error) {
	in.signCalls.Inc()
	return in.approve, nil
}

func (in *fakePrompter) AddDevice(ctx context.Context, prompt ui.DevicePrompt) (bool, error) {
	in.deviceCalls.Inc()
	return in.approve, nil
}

func (in *fakePrompter) prompts() int64 {
	return in.authnCalls.Load() + in.authzCalls.Load() + in.signCalls.Load() + in.deviceCalls.Load()
}

type fakeRouter struct {
	returns chan string
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{returns: make(chan string, 16)}
}

func (in *fakeRouter) ReturnToApp(uri string) {
	in.returns <- uri
}

type fakeObserver struct {
	accountInfos chan fcl.AccountInfo
	statuses     chan string
}

func newFakeObserver() *fakeObserver {
	return &fakeObserver{
		accountInfos: make(chan fcl.AccountInfo, 16),
		statuses:     make(chan string, 16),
	}
}

func (in *fakeObserver) AccountInfoReceived(info fcl.AccountInfo) {
	in.accountInfos <- info
}

func (in *fakeObserver) DeviceStatusChanged(status, message string) {
	in.statuses <- status
}

type managerFixture struct {
	manager  *Manager
	client   *fakeClient
	wallet   *fakeWallet
	sponsor  *fakeSponsor
	prompter *fakePrompter
	router   *fakeRouter
	observer *fakeObserver
}

func newFixture() *managerFixture {
	client := newFakeClient()
	w := &fakeWallet{
		address:  "0x1234abcd5678ef90",
		keyIndex: 0,
		account: &wallet.Account{
			UserID:   "user-1",
			Nickname: "tester",
			Avatar:   "https://example.com/avatar.png",
		},
	}
	sponsor := &fakeSponsor{address: "0x319e67f2ef9d937f", keyIndex: 3}
	prompter := &fakePrompter{approve: true}
	router := newFakeRouter()
	observer := newFakeObserver()
	manager := NewManager(Deps{
		Client:   client,
		Wallet:   w,
		Sponsor:  sponsor,
		Prompter: prompter,
		Router:   router,
		Observer: observer,
	})
	return &managerFixture{
		manager:  manager,
		client:   client,
		wallet:   w,
		sponsor:  sponsor,
		prompter: prompter,
		router:   router,
		observer: observer,
	}
}

func waitRespond(t *testing.T, responds chan respondCall) respondCall {
	t.Helper()
	select {
	case call := <-responds:
		return call
	case <-time.After(testTimeout):
		t.Fatal("no response delivered in time")
		return respondCall{}
	}
}

func requireNoRespond(t *testing.T, responds chan respondCall) {
	t.Helper()
	select {
	case call := <-responds:
		t.Fatalf("unexpected response for request %v", call.requestID)
	case <-time.After(100 * time.Millisecond):
	}
}

func wrapParams(t *testing.T, payload string) []byte {
	t.Helper()
	raw, err := json.Marshal([]string{payload})
	require.NoError(t, err)
	return raw
}

func testSession(topic string) sign.Session {
	return sign.Session{
		Topic: topic,
		Peer: sign.AppMetadata{
			Name:        "Test dApp",
			Description: "a test peer",
			URL:         "https://dapp.example.com",
			Icons:       []string{"https://dapp.example.com/icon.png"},
			Redirect:    &sign.Redirect{Native: "testdapp://"},
		},
		Namespaces: map[string]sign.Namespace{
			fcl.Namespace: {
				Accounts: []string{"flow:mainnet:0x1234abcd5678ef90"},
				Methods:  fcl.SupportedMethods(),
				Events:   []string{"chainChanged"},
			},
		},
		Expiry: time.Now().Add(time.Hour).Unix(),
	}
}
