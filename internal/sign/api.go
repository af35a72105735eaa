package sign

import "context"

// Client is the pairing/sign SDK boundary. The wallet core only talks to
// the relay through this interface; socket lifecycle and retries live
// behind it.
type Client interface {
	// Pair performs the pairing handshake for an out-of-band uri.
	Pair(ctx context.Context, uri string) error

	// Disconnect tears down the pairing or session behind topic.
	Disconnect(ctx context.Context, topic string) error

	// Approve resolves a session proposal with the granted namespaces.
	Approve(ctx context.Context, proposalID string, namespaces map[string]Namespace) error

	// Reject resolves a session proposal negatively.
	Reject(ctx context.Context, proposalID string, reason string) error

	// Respond delivers the terminal response for an inbound request.
	Respond(ctx context.Context, topic string, requestID int64, response []byte) error

	// Request issues an outbound method call over an established session.
	Request(ctx context.Context, topic, method string, params []byte, chainID string) error

	// PendingRequests returns the server-held undelivered request list.
	PendingRequests(ctx context.Context) ([]Request, error)

	// Sessions returns the currently settled sessions.
	Sessions() []Session

	// Pairings returns the currently established pairings.
	Pairings() []Pairing

	// Events returns the push event stream. Events for one topic are
	// delivered in transport order.
	Events() <-chan Event
}

// AppMetadata identifies a peer application.
type AppMetadata struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Icons       []string  `json:"icons"`
	Redirect    *Redirect `json:"redirect,omitempty"`
}

// Redirect is the peer's registered return address for
// back-to-caller navigation.
type Redirect struct {
	Native    string `json:"native,omitempty"`
	Universal string `json:"universal,omitempty"`
}

// Namespace is one capability grant: fully qualified accounts plus the
// methods and events allowed under it.
type Namespace struct {
	Accounts []string `json:"accounts,omitempty"`
	Chains   []string `json:"chains,omitempty"`
	Methods  []string `json:"methods"`
	Events   []string `json:"events"`
}

// Session is a settled capability-scoped connection.
type Session struct {
	Topic      string               `json:"topic"`
	Peer       AppMetadata          `json:"peer"`
	Namespaces map[string]Namespace `json:"namespaces"`
	Expiry     int64                `json:"expiry"`
}

// Pairing is the durable trust link a session derives from.
type Pairing struct {
	Topic  string      `json:"topic"`
	Peer   AppMetadata `json:"peer"`
	Active bool        `json:"active"`
}

// Proposal is a pending session-creation request.
type Proposal struct {
	ID                 string               `json:"id"`
	PairingTopic       string               `json:"pairingTopic"`
	Proposer           AppMetadata          `json:"proposer"`
	RequiredNamespaces map[string]Namespace `json:"requiredNamespaces"`
}

// Request is an inbound method call bound to a session topic. Immutable
// once received.
type Request struct {
	ID      int64  `json:"id"`
	Topic   string `json:"topic"`
	Method  string `json:"method"`
	Params  []byte `json:"params"`
	ChainID string `json:"chainId"`
}

// Response is the peer's answer to an outbound Request.
type Response struct {
	ID     int64  `json:"id"`
	Topic  string `json:"topic"`
	Result []byte `json:"result"`
	Error  string `json:"error,omitempty"`
}
