package relay

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"
	"flowwallet.io/wallet-link/internal/config"
	"flowwallet.io/wallet-link/internal/sign"
	"flowwallet.io/wallet-link/pkg/errors"
	"flowwallet.io/wallet-link/pkg/log"
	"flowwallet.io/wallet-link/pkg/wcrelay"
)

const (
	frameTypePub = "pub"
	frameTypeSub = "sub"
	frameTypeAck = "ack"

	sessionTTL = 7 * 24 * time.Hour

	deleteCode         = 6000
	deleteUserMessage  = "User disconnected"
	rejectedErrorCode  = 5000
	eventBufferSize    = 64
	sealingKeyByteSize = 256 / 8
)

// Client implements the sign.Client boundary over a bridge websocket:
// frames are topic-scoped pub/sub messages carrying sealed JSON-RPC
// envelopes. One key per pairing seals both the pairing topic and every
// session topic derived from it.
type Client struct {
	conf config.Relay
	meta sign.AppMetadata

	conn    *websocket.Conn
	writeMu sync.Mutex
	dialed  atomic.Bool
	cancel  context.CancelFunc

	payloadID atomic.Int64
	events    chan sign.Event

	mu             sync.Mutex
	keys           map[string][]byte
	pairings       map[string]sign.Pairing
	sessions       map[string]sign.Session
	proposals      map[string]proposalState
	pending        map[int64]sign.Request
	outboundTopics map[int64]string
}

// proposalState correlates a proposal with the pairing topic and rpc id it
// arrived on, so approve/reject can answer in place.
type proposalState struct {
	pairingTopic string
	rpcID        int64
	proposer     sign.AppMetadata
}

func NewClient(conf config.Relay, wallet config.Wallet) *Client {
	c := &Client{
		conf: conf,
		meta: sign.AppMetadata{
			Name:        wallet.Name,
			Description: wallet.Description,
			URL:         wallet.URL,
			Icons:       wallet.Icons,
			Redirect: &sign.Redirect{
				Native:    wallet.Redirect.Native,
				Universal: wallet.Redirect.Universal,
			},
		},
		events:         make(chan sign.Event, eventBufferSize),
		keys:           make(map[string][]byte),
		pairings:       make(map[string]sign.Pairing),
		sessions:       make(map[string]sign.Session),
		proposals:      make(map[string]proposalState),
		pending:        make(map[int64]sign.Request),
		outboundTopics: make(map[int64]string),
	}
	c.payloadID.Store(time.Now().UnixNano() / 1000)
	return c
}

// Dial connects to the bridge and starts the read loop.
func (c *Client) Dial(ctx context.Context) error {
	if !c.dialed.CAS(false, true) {
		return errors.NewWithReport("relay client already dialed")
	}
	wsURL := wcrelay.GetWebSocketUrl(c.conf.Bridge, "wc", "2")
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		c.dialed.Store(false)
		return errors.WrapAndReport(err, "dial relay bridge url")
	}
	c.conn = conn
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.readLoop(ctx)
	c.emit(sign.Event{Type: sign.EventConnectionStatus, Connected: true})
	log.Infof("relay - connected to bridge %v", c.conf.Bridge)
	return nil
}

// Close tears the bridge connection down.
func (c *Client) Close() {
	if !c.dialed.CAS(true, false) {
		return
	}
	c.cancel()
	if c.conn != nil {
		c.conn.Close()
	}
}

// Events returns the push event stream.
func (c *Client) Events() <-chan sign.Event {
	return c.events
}

// NewPairingURI mints a pairing topic with a fresh sealing key and
// subscribes it, for QR display in the companion-device handshake.
func (c *Client) NewPairingURI() (*wcrelay.PairingURI, error) {
	key, err := wcrelay.GenerateRandomBytes(sealingKeyByteSize)
	if err != nil {
		return nil, errors.WrapAndReport(err, "generate pairing key")
	}
	topic := uuid.NewString()
	c.mu.Lock()
	c.keys[topic] = key
	c.pairings[topic] = sign.Pairing{Topic: topic, Active: false}
	c.mu.Unlock()
	if err := c.subscribe(topic); err != nil {
		return nil, err
	}
	return &wcrelay.PairingURI{
		Topic:   topic,
		Version: "2",
		Bridge:  c.conf.Bridge,
		Key:     key,
	}, nil
}

// Pair subscribes the pairing topic of an out-of-band uri; the peer's
// session proposal arrives as a push event.
func (c *Client) Pair(ctx context.Context, uri string) error {
	parsed, err := wcrelay.ParsePairingURI(uri)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.keys[parsed.Topic] = parsed.Key
	c.pairings[parsed.Topic] = sign.Pairing{Topic: parsed.Topic, Active: false}
	c.mu.Unlock()
	return c.subscribe(parsed.Topic)
}

// Disconnect removes the session or pairing behind topic and notifies the
// peer when a session is torn down.
func (c *Client) Disconnect(ctx context.Context, topic string) error {
	c.mu.Lock()
	_, isSession := c.sessions[topic]
	delete(c.sessions, topic)
	delete(c.pairings, topic)
	delete(c.keys, topic)
	c.mu.Unlock()
	if isSession {
		rpc := newJSONRpcRequest(c.nextID(), methodSessionDelete, deleteParams{
			Code:    deleteCode,
			Message: deleteUserMessage,
		})
		if err := c.publish(topic, rpc.Marshal(), rpc.IsSilentPayload()); err != nil {
			return err
		}
		c.emit(sign.Event{Type: sign.EventSessionDelete, Topic: topic})
	}
	return nil
}

// Approve settles a proposal: a fresh session topic is derived under the
// pairing's key, the settle payload answers the proposal rpc, and the
// settled session is pushed on the event stream.
func (c *Client) Approve(ctx context.Context, proposalID string, namespaces map[string]sign.Namespace) error {
	c.mu.Lock()
	state, ok := c.proposals[proposalID]
	if !ok {
		c.mu.Unlock()
		return errors.Errorf("unknown proposal %v", proposalID)
	}
	delete(c.proposals, proposalID)
	key, ok := c.keys[state.pairingTopic]
	if !ok {
		c.mu.Unlock()
		return errors.Errorf("no sealing key for pairing %v", state.pairingTopic)
	}
	sessionTopic := uuid.NewString()
	expiry := time.Now().Add(sessionTTL).Unix()
	settled := sign.Session{
		Topic:      sessionTopic,
		Peer:       state.proposer,
		Namespaces: namespaces,
		Expiry:     expiry,
	}
	c.keys[sessionTopic] = key
	c.sessions[sessionTopic] = settled
	if pairing, ok := c.pairings[state.pairingTopic]; ok {
		pairing.Active = true
		pairing.Peer = state.proposer
		c.pairings[state.pairingTopic] = pairing
	}
	c.mu.Unlock()

	if err := c.subscribe(sessionTopic); err != nil {
		return err
	}
	settle := settleParams{
		SessionTopic: sessionTopic,
		Responder:    c.meta,
		Namespaces:   namespaces,
		Expiry:       expiry,
	}
	response := &jsonRpcResponse{
		Id:      state.rpcID,
		JSONRpc: "2.0",
		Result:  mustMarshal(settle),
	}
	if err := c.publish(state.pairingTopic, response.Marshal(), true); err != nil {
		return err
	}
	c.emit(sign.Event{Type: sign.EventSessionSettle, Topic: sessionTopic, Session: &settled})
	return nil
}

// Reject answers a proposal rpc with an error.
func (c *Client) Reject(ctx context.Context, proposalID string, reason string) error {
	c.mu.Lock()
	state, ok := c.proposals[proposalID]
	delete(c.proposals, proposalID)
	c.mu.Unlock()
	if !ok {
		return errors.Errorf("unknown proposal %v", proposalID)
	}
	response := &jsonRpcResponse{
		Id:      state.rpcID,
		JSONRpc: "2.0",
		Error: &jsonRpcError{
			Code:    rejectedErrorCode,
			Message: reason,
		},
	}
	return c.publish(state.pairingTopic, response.Marshal(), true)
}

// Respond delivers the terminal response for an inbound request and drops
// it from the pending mirror.
func (c *Client) Respond(ctx context.Context, topic string, requestID int64, response []byte) error {
	rpc := &jsonRpcResponse{
		Id:      requestID,
		JSONRpc: "2.0",
		Result:  response,
	}
	if err := c.publish(topic, rpc.Marshal(), true); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
	return nil
}

// Request issues an outbound method call over a session.
func (c *Client) Request(ctx context.Context, topic, method string, params []byte, chainID string) error {
	id := c.nextID()
	call := requestParams{ChainID: chainID}
	call.Request.Method = method
	call.Request.Params = params
	rpc := newJSONRpcRequest(id, methodSessionRequest, call)
	c.mu.Lock()
	c.outboundTopics[id] = topic
	c.mu.Unlock()
	return c.publish(topic, rpc.Marshal(), rpc.IsSilentPayload())
}

// PendingRequests re-subscribes every session topic, which makes the bridge
// redeliver queued publications, and returns the refreshed mirror of
// requests not yet answered.
func (c *Client) PendingRequests(ctx context.Context) ([]sign.Request, error) {
	c.mu.Lock()
	topics := make([]string, 0, len(c.sessions))
	for topic := range c.sessions {
		topics = append(topics, topic)
	}
	c.mu.Unlock()
	for _, topic := range topics {
		if err := c.subscribe(topic); err != nil {
			return nil, err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := make([]sign.Request, 0, len(c.pending))
	for _, request := range c.pending {
		pending = append(pending, request)
	}
	return pending, nil
}

// Sessions returns the settled sessions.
func (c *Client) Sessions() []sign.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	sessions := make([]sign.Session, 0, len(c.sessions))
	for _, settled := range c.sessions {
		sessions = append(sessions, settled)
	}
	return sessions
}

// Pairings returns the established pairings.
func (c *Client) Pairings() []sign.Pairing {
	c.mu.Lock()
	defer c.mu.Unlock()
	pairings := make([]sign.Pairing, 0, len(c.pairings))
	for _, pairing := range c.pairings {
		pairings = append(pairings, pairing)
	}
	return pairings
}

func (c *Client) nextID() int64 {
	return c.payloadID.Inc()
}

// emit pushes an event to the consumer. Proposals and requests demand a
// terminal answer, so a full buffer blocks for them instead of dropping;
// everything else is droppable status.
func (c *Client) emit(event sign.Event) {
	select {
	case c.events <- event:
		return
	default:
	}
	switch event.Type {
	case sign.EventSessionProposal, sign.EventSessionRequest:
		c.events <- event
	default:
		log.Warnf("relay - event buffer full, dropped %v", event.Type)
	}
}

func (c *Client) subscribe(topic string) error {
	msg := wcMessage{
		Topic:  topic,
		Type:   frameTypeSub,
		Silent: true,
	}
	log.Debugf("relay - subscribe topic %v", topic)
	return c.sendFrame(msg.Marshal())
}

func (c *Client) sendFrame(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return errors.New("relay client not dialed")
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.WrapAndReport(err, "write relay message")
	}
	return nil
}

// publish seals a JSON-RPC envelope for the topic's key and publishes it.
// silent tells the bridge whether the publication warrants a peer push.
func (c *Client) publish(topic string, jsonRpc string, silent bool) error {
	c.mu.Lock()
	key, ok := c.keys[topic]
	c.mu.Unlock()
	if !ok {
		return errors.Errorf("no sealing key for topic %v", topic)
	}
	sealed, err := c.seal(jsonRpc, key)
	if err != nil {
		return err
	}
	msg := wcMessage{
		Topic:   topic,
		Type:    frameTypePub,
		Payload: sealed.Marshal(),
		Silent:  silent,
	}
	return c.sendFrame(msg.Marshal())
}

func (c *Client) seal(jsonRpc string, key []byte) (*wcMessagePayload, error) {
	iv, err := wcrelay.GenerateRandomBytes(128 / 8)
	if err != nil {
		return nil, errors.WrapAndReport(err, "generate iv")
	}
	data, err := wcrelay.Aes256Encrypt([]byte(jsonRpc), key, iv)
	if err != nil {
		return nil, err
	}
	unsigned := append(data, iv...)
	mac := wcrelay.HmacSha256(unsigned, key)
	return &wcMessagePayload{
		Data: hex.EncodeToString(data),
		IV:   hex.EncodeToString(iv),
		Hmac: hex.EncodeToString(mac),
	}, nil
}

func (c *Client) open(msg *wcMessage, key []byte) (string, error) {
	payload, err := newWCMessagePayloadFromBytes([]byte(msg.Payload))
	if err != nil {
		return "", err
	}
	iv, err := hex.DecodeString(payload.IV)
	if err != nil {
		return "", errors.WrapAndReport(err, "decode iv hex")
	}
	cipherText, err := hex.DecodeString(payload.Data)
	if err != nil {
		return "", errors.WrapAndReport(err, "decode cipher hex")
	}
	mac, err := hex.DecodeString(payload.Hmac)
	if err != nil {
		return "", errors.WrapAndReport(err, "decode hmac hex")
	}
	unsigned := append(cipherText, iv...)
	if !wcrelay.VerifyHmacSha256(unsigned, key, mac) {
		return "", errors.NewWithReport("inconsistent relay message hmac")
	}
	data, err := wcrelay.Aes256Decrypt(cipherText, key, iv)
	if err != nil {
		return "", errors.WrapAndReport(err, "aes256 decrypt")
	}
	return string(data), nil
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.emit(sign.Event{Type: sign.EventConnectionStatus, Connected: false})
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Errorf("relay - read message: %v", err)
			}
			return
		}
		switch msgType {
		case websocket.TextMessage:
			c.handleFrame(data)
		case websocket.CloseMessage:
			log.Warn("relay - bridge closed the connection")
			return
		default:
			log.Warnf("relay - unsupported message type %v", msgType)
		}
	}
}

func (c *Client) handleFrame(data []byte) {
	log.Debugf("relay - receive:%v", string(data))
	msg, err := newWCMessageFromBytes(data)
	if err != nil {
		return
	}
	if err := c.ackFrame(msg.Topic); err != nil {
		log.Warnf("relay - ack frame: %v", err)
	}
	c.mu.Lock()
	key, ok := c.keys[msg.Topic]
	c.mu.Unlock()
	if !ok {
		log.Warnf("relay - no sealing key for topic %v, frame dropped", msg.Topic)
		return
	}
	jsonRpc, err := c.open(msg, key)
	if err != nil {
		log.Errorf("relay - open sealed payload: %v", err)
		return
	}
	c.handleJSONRpc(msg.Topic, jsonRpc)
}

func (c *Client) ackFrame(topic string) error {
	msg := wcMessage{
		Topic:  topic,
		Type:   frameTypeAck,
		Silent: true,
	}
	return c.sendFrame(msg.Marshal())
}

func (c *Client) handleJSONRpc(topic, jsonRpc string) {
	method := gjson.Get(jsonRpc, "method").String()
	if method == "" {
		c.handleRpcResponse(topic, jsonRpc)
		return
	}
	id := gjson.Get(jsonRpc, "id").Int()
	params := gjson.Get(jsonRpc, "params").Raw
	switch method {
	case methodSessionPropose:
		c.handlePropose(topic, id, params)
	case methodSessionRequest:
		c.handleSessionRequest(topic, id, params)
	case methodSessionSettle:
		c.handleSettle(topic, params)
	case methodSessionDelete:
		c.mu.Lock()
		delete(c.sessions, topic)
		delete(c.keys, topic)
		c.mu.Unlock()
		c.emit(sign.Event{Type: sign.EventSessionDelete, Topic: topic})
	case methodSessionUpdate:
		c.emit(sign.Event{Type: sign.EventSessionUpdate, Topic: topic})
	case methodSessionExtend:
		c.emit(sign.Event{Type: sign.EventSessionExtend, Topic: topic})
	case methodSessionEvent:
		c.emit(sign.Event{Type: sign.EventSessionEvent, Topic: topic})
	default:
		log.Warnf("relay - unknown rpc method %v", method)
	}
}

func (c *Client) handlePropose(topic string, id int64, params string) {
	var proposed proposeParams
	if err := unmarshal(params, &proposed); err != nil {
		log.Errorf("relay - decode session proposal: %v", err)
		return
	}
	proposalID := strconv.FormatInt(id, 10)
	c.mu.Lock()
	c.proposals[proposalID] = proposalState{
		pairingTopic: topic,
		rpcID:        id,
		proposer:     proposed.Proposer,
	}
	if pairing, ok := c.pairings[topic]; ok {
		pairing.Peer = proposed.Proposer
		c.pairings[topic] = pairing
	}
	c.mu.Unlock()
	proposal := sign.Proposal{
		ID:                 proposalID,
		PairingTopic:       topic,
		Proposer:           proposed.Proposer,
		RequiredNamespaces: proposed.RequiredNamespaces,
	}
	c.emit(sign.Event{Type: sign.EventSessionProposal, Topic: topic, Proposal: &proposal})
}

func (c *Client) handleSessionRequest(topic string, id int64, params string) {
	var call requestParams
	if err := unmarshal(params, &call); err != nil {
		log.Errorf("relay - decode session request: %v", err)
		return
	}
	request := sign.Request{
		ID:      id,
		Topic:   topic,
		Method:  call.Request.Method,
		Params:  call.Request.Params,
		ChainID: call.ChainID,
	}
	c.mu.Lock()
	c.pending[id] = request
	c.mu.Unlock()
	c.emit(sign.Event{Type: sign.EventSessionRequest, Topic: topic, Request: &request})
}

// handleSettle covers the responder side of a wallet-initiated pairing:
// the peer settles on a fresh topic sealed with the pairing key.
func (c *Client) handleSettle(topic string, params string) {
	var settle settleParams
	if err := unmarshal(params, &settle); err != nil {
		log.Errorf("relay - decode session settle: %v", err)
		return
	}
	c.mu.Lock()
	key, ok := c.keys[topic]
	if !ok {
		c.mu.Unlock()
		return
	}
	settled := sign.Session{
		Topic:      settle.SessionTopic,
		Peer:       settle.Responder,
		Namespaces: settle.Namespaces,
		Expiry:     settle.Expiry,
	}
	c.keys[settle.SessionTopic] = key
	c.sessions[settle.SessionTopic] = settled
	if pairing, ok := c.pairings[topic]; ok {
		pairing.Active = true
		pairing.Peer = settle.Responder
		c.pairings[topic] = pairing
	}
	c.mu.Unlock()
	if err := c.subscribe(settle.SessionTopic); err != nil {
		log.Errorf("relay - subscribe settled session: %v", err)
	}
	c.emit(sign.Event{Type: sign.EventSessionSettle, Topic: settle.SessionTopic, Session: &settled})
}

func (c *Client) handleRpcResponse(topic, jsonRpc string) {
	id := gjson.Get(jsonRpc, "id").Int()
	c.mu.Lock()
	expectedTopic, outbound := c.outboundTopics[id]
	delete(c.outboundTopics, id)
	c.mu.Unlock()
	if !outbound {
		log.Debugf("relay - unsolicited rpc response %v on %v, dropped", id, topic)
		return
	}
	if expectedTopic != topic {
		log.Warnf("relay - rpc response %v arrived on %v, expected %v", id, topic, expectedTopic)
	}
	response := sign.Response{
		ID:     id,
		Topic:  topic,
		Result: []byte(gjson.Get(jsonRpc, "result").Raw),
		Error:  gjson.Get(jsonRpc, "error.message").String(),
	}
	c.emit(sign.Event{Type: sign.EventSessionResponse, Topic: topic, Response: &response})
}

func unmarshal(raw string, v interface{}) error {
	return errors.WithStack(json.Unmarshal([]byte(raw), v))
}

func mustMarshal(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Errorf("marshal:%v", err)
	}
	return raw
}
