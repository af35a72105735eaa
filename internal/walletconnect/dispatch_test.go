package walletconnect

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"flowwallet.io/wallet-link/internal/fcl"
	"flowwallet.io/wallet-link/internal/sign"
	"flowwallet.io/wallet-link/pkg/errors"
)

func signableJSON(t *testing.T, roles fcl.Roles) string {
	t.Helper()
	signable := fcl.Signable{
		FType:   "Signable",
		FVsn:    "1.0.1",
		Roles:   roles,
		Cadence: "transaction { execute {} }",
		Message: "deadbeef",
		Voucher: fcl.Voucher{
			Cadence:      "transaction { execute {} }",
			RefBlock:     "a1b2c3",
			ComputeLimit: 100,
			Payer:        "0x319e67f2ef9d937f",
		},
	}
	raw, err := json.Marshal(signable)
	require.NoError(t, err)
	return string(raw)
}

func gzipBase64(t *testing.T, payload string) string {
	t.Helper()
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	_, err := writer.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDispatchUnknownMethodRejected(t *testing.T) {
	fixture := newFixture()
	request := sign.Request{ID: 1, Topic: "t1", Method: "eth_sendTransaction", Params: []byte(`[]`)}

	fixture.manager.handleRequest(context.Background(), request)

	call := waitRespond(t, fixture.client.responds)
	assert.Equal(t, int64(1), call.requestID)
	assert.Equal(t, fcl.StatusDeclined, call.response.Status)
	assert.Equal(t, reasonUnsupportedMethod, call.response.Reason)
	assert.Zero(t, fixture.prompter.prompts())
}

func TestAuthnRespondsWithServices(t *testing.T) {
	fixture := newFixture()
	request := sign.Request{ID: 2, Topic: "t1", Method: fcl.MethodAuthn, Params: wrapParams(t, `{}`)}

	fixture.manager.handleRequest(context.Background(), request)

	call := waitRespond(t, fixture.client.responds)
	require.Equal(t, int64(2), call.requestID)
	require.Equal(t, fcl.StatusApproved, call.response.Status)
	require.NotNil(t, call.response.Data)
	require.Len(t, call.response.Data.Services, 4)
	assert.Equal(t, fixture.wallet.address, call.response.Data.Addr)
	// Sponsor account backs the pre-authz service.
	assert.Equal(t, fcl.ServiceTypePreAuthz, call.response.Data.Services[0].Type)
	assert.Equal(t, fixture.sponsor.address, call.response.Data.Services[0].Identity.Address)
	requireNoRespond(t, fixture.client.responds)
}

func TestAuthnAccountProofAugmentation(t *testing.T) {
	fixture := newFixture()
	payload := `{"appIdentifier":"Awesome App","accountProofNonce":"75f8587e5bd5f9dbc966ed5b4114fa2e"}`
	request := sign.Request{ID: 3, Topic: "t1", Method: fcl.MethodAuthn, Params: wrapParams(t, payload)}

	fixture.manager.handleRequest(context.Background(), request)

	call := waitRespond(t, fixture.client.responds)
	require.Equal(t, fcl.StatusApproved, call.response.Status)
	require.Len(t, call.response.Data.Services, 5)
	assert.Equal(t, fcl.ServiceTypeAccountProof, call.response.Data.Services[4].Type)
	assert.EqualValues(t, 1, fixture.wallet.signed.Load())
}

func TestAuthnAccountProofDegradesOnSigningFailure(t *testing.T) {
	fixture := newFixture()
	fixture.wallet.signErr = errors.New("keychain locked")
	payload := `{"appIdentifier":"Awesome App","accountProofNonce":"75f8587e5bd5f9dbc966ed5b4114fa2e"}`
	request := sign.Request{ID: 4, Topic: "t1", Method: fcl.MethodAuthn, Params: wrapParams(t, payload)}

	fixture.manager.handleRequest(context.Background(), request)

	// Base authentication survives, only the proof service is omitted.
	call := waitRespond(t, fixture.client.responds)
	require.Equal(t, fcl.StatusApproved, call.response.Status)
	assert.Len(t, call.response.Data.Services, 4)
}

func TestAuthnMalformedParamsRejected(t *testing.T) {
	fixture := newFixture()
	request := sign.Request{ID: 5, Topic: "t1", Method: fcl.MethodAuthn, Params: []byte(`{"not":"an array"}`)}

	fixture.manager.handleRequest(context.Background(), request)

	call := waitRespond(t, fixture.client.responds)
	assert.Equal(t, fcl.StatusDeclined, call.response.Status)
	assert.Equal(t, reasonDecodeFailed, call.response.Reason)
}

func TestPreAuthzAutoApproved(t *testing.T) {
	fixture := newFixture()
	request := sign.Request{ID: 6, Topic: "t1", Method: fcl.MethodPreAuthz}

	fixture.manager.handleRequest(context.Background(), request)

	call := waitRespond(t, fixture.client.responds)
	require.Equal(t, fcl.StatusApproved, call.response.Status)
	require.NotNil(t, call.response.Data.Proposer)
	assert.Equal(t, fixture.wallet.address, call.response.Data.Proposer.Identity.Address)
	require.Len(t, call.response.Data.Payer, 1)
	assert.Equal(t, fixture.sponsor.address, call.response.Data.Payer[0].Identity.Address)
	require.Len(t, call.response.Data.Authorization, 1)
	assert.Zero(t, fixture.prompter.prompts())
}

func TestAuthzPayerOnlySkipsPrompt(t *testing.T) {
	fixture := newFixture()
	fixture.client.sessions = []sign.Session{testSession("t1")}
	fixture.manager.Store().ReloadSessions()
	payload := signableJSON(t, fcl.Roles{Payer: true})
	request := sign.Request{ID: 7, Topic: "t1", Method: fcl.MethodAuthz, Params: wrapParams(t, payload)}

	fixture.manager.handleRequest(context.Background(), request)

	call := waitRespond(t, fixture.client.responds)
	require.Equal(t, fcl.StatusApproved, call.response.Status)
	assert.NotEmpty(t, call.response.Data.Signature)
	assert.Zero(t, fixture.prompter.prompts())
	assert.EqualValues(t, 1, fixture.sponsor.signed.Load())
	// Payer role hands control back to the caller after the decision.
	select {
	case uri := <-fixture.router.returns:
		assert.Equal(t, "testdapp://", uri)
	case <-time.After(testTimeout):
		t.Fatal("no return-to-app navigation")
	}
}

func TestAuthzAuthorizerRolePrompts(t *testing.T) {
	fixture := newFixture()
	fixture.client.sessions = []sign.Session{testSession("t1")}
	fixture.manager.Store().ReloadSessions()
	payload := signableJSON(t, fcl.Roles{Proposer: true, Authorizer: true})
	request := sign.Request{ID: 8, Topic: "t1", Method: fcl.MethodAuthz, Params: wrapParams(t, payload)}

	fixture.manager.handleRequest(context.Background(), request)

	call := waitRespond(t, fixture.client.responds)
	require.Equal(t, fcl.StatusApproved, call.response.Status)
	assert.EqualValues(t, 1, fixture.prompter.authzCalls.Load())
	assert.EqualValues(t, 1, fixture.wallet.signed.Load())
}

func TestAuthzGzipPayloadEquivalent(t *testing.T) {
	fixture := newFixture()
	fixture.client.sessions = []sign.Session{testSession("t1")}
	fixture.manager.Store().ReloadSessions()
	payload := gzipBase64(t, signableJSON(t, fcl.Roles{Proposer: true, Authorizer: true, Payer: true}))
	request := sign.Request{ID: 9, Topic: "t1", Method: fcl.MethodAuthz, Params: wrapParams(t, payload)}

	fixture.manager.handleRequest(context.Background(), request)

	call := waitRespond(t, fixture.client.responds)
	assert.Equal(t, fcl.StatusApproved, call.response.Status)
	assert.EqualValues(t, 1, fixture.prompter.authzCalls.Load())
}

func TestAuthzDeclinedByUser(t *testing.T) {
	fixture := newFixture()
	fixture.prompter.approve = false
	fixture.client.sessions = []sign.Session{testSession("t1")}
	fixture.manager.Store().ReloadSessions()
	payload := signableJSON(t, fcl.Roles{Proposer: true, Authorizer: true})
	request := sign.Request{ID: 10, Topic: "t1", Method: fcl.MethodAuthz, Params: wrapParams(t, payload)}

	fixture.manager.handleRequest(context.Background(), request)

	call := waitRespond(t, fixture.client.responds)
	assert.Equal(t, fcl.StatusDeclined, call.response.Status)
	assert.Equal(t, reasonRejectRequest, call.response.Reason)
	assert.Zero(t, fixture.wallet.signed.Load())
}

func TestAuthzDecodeFailureRejected(t *testing.T) {
	fixture := newFixture()
	request := sign.Request{ID: 11, Topic: "t1", Method: fcl.MethodAuthz, Params: wrapParams(t, "not json at all")}

	fixture.manager.handleRequest(context.Background(), request)

	call := waitRespond(t, fixture.client.responds)
	assert.Equal(t, fcl.StatusDeclined, call.response.Status)
	assert.Equal(t, reasonDecodeFailed, call.response.Reason)
}

func TestUserSignatureAlwaysPrompts(t *testing.T) {
	fixture := newFixture()
	fixture.client.sessions = []sign.Session{testSession("t1")}
	fixture.manager.Store().ReloadSessions()
	request := sign.Request{
		ID: 12, Topic: "t1", Method: fcl.MethodUserSignature,
		Params: wrapParams(t, `{"addr":"0x1234abcd5678ef90","message":"deadbeef"}`),
	}

	fixture.manager.handleRequest(context.Background(), request)

	call := waitRespond(t, fixture.client.responds)
	require.Equal(t, fcl.StatusApproved, call.response.Status)
	assert.Equal(t, "CompositeSignature", call.response.Data.FType)
	assert.EqualValues(t, 1, fixture.prompter.signCalls.Load())
}

func TestAccountInfoRespondsProfile(t *testing.T) {
	fixture := newFixture()
	request := sign.Request{ID: 13, Topic: "t1", Method: fcl.MethodAccountInfo}

	fixture.manager.handleRequest(context.Background(), request)

	call := waitRespond(t, fixture.client.responds)
	var resp fcl.MethodResponse
	require.NoError(t, json.Unmarshal(call.raw, &resp))
	assert.Equal(t, fcl.MethodAccountInfo, resp.Method)
	var info fcl.AccountInfo
	require.NoError(t, json.Unmarshal([]byte(resp.Data), &info))
	assert.Equal(t, "tester", info.UserName)
	assert.Equal(t, fixture.wallet.address, info.WalletAddress)
}

func TestAccountInfoMissingAccountRejected(t *testing.T) {
	fixture := newFixture()
	fixture.wallet.account = nil
	request := sign.Request{ID: 14, Topic: "t1", Method: fcl.MethodAccountInfo}

	fixture.manager.handleRequest(context.Background(), request)

	call := waitRespond(t, fixture.client.responds)
	assert.Equal(t, fcl.StatusDeclined, call.response.Status)
	assert.Equal(t, reasonAccountNotFound, call.response.Reason)
}

func TestAddDeviceInfoAck(t *testing.T) {
	fixture := newFixture()
	device := `{"account_key":{"public_key":"abcd","sign_algo":2,"hash_algo":1,"weight":1000},` +
		`"device_info":{"device_id":"dev-1","name":"Pixel","type":"1","user_agent":"android"}}`
	params, err := json.Marshal(map[string]string{"status": "0", "data": device})
	require.NoError(t, err)
	request := sign.Request{ID: 15, Topic: "t1", Method: fcl.MethodAddDeviceInfo, Params: params}

	fixture.manager.handleRequest(context.Background(), request)

	call := waitRespond(t, fixture.client.responds)
	var resp fcl.MethodResponse
	require.NoError(t, json.Unmarshal(call.raw, &resp))
	assert.Equal(t, fcl.MethodAddDeviceInfo, resp.Method)
	assert.Equal(t, "1", resp.Status)
	assert.EqualValues(t, 1, fixture.prompter.deviceCalls.Load())
}

func TestAddDeviceInfoDecodeFailureRejected(t *testing.T) {
	fixture := newFixture()
	request := sign.Request{ID: 16, Topic: "t1", Method: fcl.MethodAddDeviceInfo, Params: []byte(`["wrong shape"]`)}

	fixture.manager.handleRequest(context.Background(), request)

	call := waitRespond(t, fixture.client.responds)
	assert.Equal(t, fcl.StatusDeclined, call.response.Status)
	assert.Equal(t, reasonDecodeFailed, call.response.Reason)
	assert.Zero(t, fixture.prompter.prompts())
}

func TestRejectionRetriedOnceOnTransportFailure(t *testing.T) {
	fixture := newFixture()
	fixture.client.respondFailures = 1
	request := sign.Request{ID: 17, Topic: "t1", Method: "bogus_method"}

	fixture.manager.handleRequest(context.Background(), request)

	first := waitRespond(t, fixture.client.responds)
	assert.True(t, first.failed)
	second := waitRespond(t, fixture.client.responds)
	assert.False(t, second.failed)
	assert.Equal(t, fcl.StatusDeclined, second.response.Status)
	requireNoRespond(t, fixture.client.responds)
}

func TestRejectionStopsAfterOneRetry(t *testing.T) {
	fixture := newFixture()
	fixture.client.respondFailures = 5
	request := sign.Request{ID: 18, Topic: "t1", Method: "bogus_method"}

	fixture.manager.handleRequest(context.Background(), request)

	first := waitRespond(t, fixture.client.responds)
	second := waitRespond(t, fixture.client.responds)
	assert.True(t, first.failed)
	assert.True(t, second.failed)
	requireNoRespond(t, fixture.client.responds)
}
