// Package message defines the RPC messages exchanged between the two peers of a channel.
//
// Invocation is the logical unit a caller hands to an invoker. RPCMessage is the "envelope"
// that actually crosses the wire: it gets serialized by the codec layer and wrapped in a
// protocol frame. Request and Response carry the correlation id the session layer uses to
// match a reply with its caller.
package message

// Status reports how the peer handled a request.
type Status byte

const (
	StatusOK              Status = 20
	StatusClientTimeout   Status = 30
	StatusServerTimeout   Status = 31
	StatusBadRequest      Status = 40
	StatusServiceNotFound Status = 60
	StatusServiceError    Status = 70
	StatusServerError     Status = 80
)

// Attachment keys the invoker adds to every dispatched invocation.
const (
	PathKey            = "path"                    // exported service path on the serving peer
	CallbackServiceKey = "callback.service.instid" // correlation key of a callback service
)

// RPCMessage carries the data for a single RPC request or response.
//
//   - On request:  Method, ParamTypes and Attachments are set, Payload contains the JSON array of arguments.
//   - On response: Status is set, Payload contains the serialized reply, Error is non-empty if the handler failed.
type RPCMessage struct {
	Method      string            // Method name, the service comes from the "path" attachment
	ParamTypes  []string          // Parameter type descriptors, informational
	Attachments map[string]string // String key/value metadata, order irrelevant
	Status      Status            // Only meaningful on responses
	Error       string            // Non-empty if the server-side handler returned an error
	Payload     []byte            // Serialized args (request) or reply (response) as JSON bytes
}

// Path returns the service path attachment, or "" when absent.
func (m *RPCMessage) Path() string {
	if m.Attachments == nil {
		return ""
	}
	return m.Attachments[PathKey]
}

// Request is a framed request. Data is an *Invocation on the sending side and an
// *RPCMessage once decoded by the receiving side.
type Request struct {
	ID     uint32
	TwoWay bool   // false for fire-and-forget sends, the peer never replies
	Event  bool   // heartbeat
	Codec  string // codec name used to encode Data, "" means the channel default
	Data   any
}

// Response is a framed reply correlated to a Request by ID.
type Response struct {
	ID    uint32
	Codec string
	Data  *RPCMessage
}
