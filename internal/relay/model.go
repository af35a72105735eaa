package relay

import (
	"encoding/json"
	"strings"

	"flowwallet.io/wallet-link/internal/sign"
	"flowwallet.io/wallet-link/pkg/errors"
	"flowwallet.io/wallet-link/pkg/log"
)

// wcMessage is one bridge frame: a publication, subscription or ack bound
// to a topic.
type wcMessage struct {
	Topic string `json:"topic"`
	// pub, sub, ack
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

func newWCMessageFromBytes(data []byte) (*wcMessage, error) {
	var msg wcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.WrapAndReport(err, "unmarshal relay message")
	}
	return &msg, nil
}

func (msg *wcMessage) Marshal() []byte {
	bytes, _ := json.Marshal(msg)
	return bytes
}

// wcMessagePayload is the sealed envelope published on a topic.
type wcMessagePayload struct {
	Data string `json:"data"`
	Hmac string `json:"hmac"`
	IV   string `json:"iv"`
}

func newWCMessagePayloadFromBytes(data []byte) (*wcMessagePayload, error) {
	var payload wcMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errors.WrapAndReport(err, "unmarshal relay message payload")
	}
	return &payload, nil
}

func (e *wcMessagePayload) Marshal() string {
	s, err := json.Marshal(e)
	if err != nil {
		log.Errorf("marshal:%v", err)
	}
	return string(s)
}

// Relay-level JSON-RPC methods.
const (
	methodSessionPropose = "wc_sessionPropose"
	methodSessionSettle  = "wc_sessionSettle"
	methodSessionRequest = "wc_sessionRequest"
	methodSessionDelete  = "wc_sessionDelete"
	methodSessionUpdate  = "wc_sessionUpdate"
	methodSessionExtend  = "wc_sessionExtend"
	methodSessionEvent   = "wc_sessionEvent"
)

type jsonRpcRequest struct {
	Id      int64           `json:"id"`
	JSONRpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

func newJSONRpcRequest(id int64, method string, params interface{}) *jsonRpcRequest {
	raw, err := json.Marshal(params)
	if err != nil {
		log.Errorf("marshal:%v", err)
	}
	return &jsonRpcRequest{
		Id:      id,
		JSONRpc: "2.0",
		Method:  method,
		Params:  raw,
	}
}

func (e *jsonRpcRequest) Marshal() string {
	s, err := json.Marshal(e)
	if err != nil {
		log.Errorf("marshal:%v", err)
	}
	return string(s)
}

func (e *jsonRpcRequest) IsSilentPayload() bool {
	return strings.HasPrefix(e.Method, "wc_")
}

type jsonRpcResponse struct {
	Id      int64           `json:"id"`
	JSONRpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRpcError   `json:"error,omitempty"`
}

type jsonRpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *jsonRpcResponse) Marshal() string {
	s, err := json.Marshal(e)
	if err != nil {
		log.Errorf("marshal:%v", err)
	}
	return string(s)
}

// proposeParams is a peer's session proposal published on a pairing topic.
type proposeParams struct {
	Proposer           sign.AppMetadata          `json:"proposer"`
	RequiredNamespaces map[string]sign.Namespace `json:"requiredNamespaces"`
}

// settleParams is the session-settle payload the wallet publishes after
// approving a proposal. The peer subscribes the new session topic with the
// pairing's key.
type settleParams struct {
	SessionTopic string                    `json:"sessionTopic"`
	Responder    sign.AppMetadata          `json:"responder"`
	Namespaces   map[string]sign.Namespace `json:"namespaces"`
	Expiry       int64                     `json:"expiry"`
}

// requestParams is an inbound or outbound method call on a session topic.
type requestParams struct {
	Request struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	} `json:"request"`
	ChainID string `json:"chainId"`
}

// deleteParams carries the reason a peer tears a session down with.
type deleteParams struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
