package sign

// EventType enumerates the push events the relay delivers.
type EventType int

const (
	EventConnectionStatus EventType = iota
	EventSessionProposal
	EventSessionSettle
	EventSessionRequest
	EventSessionResponse
	EventSessionDelete
	EventSessionExtend
	EventSessionEvent
	EventSessionUpdate
)

func (t EventType) String() string {
	switch t {
	case EventConnectionStatus:
		return "connection_status"
	case EventSessionProposal:
		return "session_proposal"
	case EventSessionSettle:
		return "session_settle"
	case EventSessionRequest:
		return "session_request"
	case EventSessionResponse:
		return "session_response"
	case EventSessionDelete:
		return "session_delete"
	case EventSessionExtend:
		return "session_extend"
	case EventSessionEvent:
		return "session_event"
	case EventSessionUpdate:
		return "session_update"
	default:
		return "unknown"
	}
}

// Event is one push notification from the relay. Exactly one of the
// payload fields matching Type is set.
type Event struct {
	Type      EventType
	Connected bool
	Topic     string
	Proposal  *Proposal
	Session   *Session
	Request   *Request
	Response  *Response
}
