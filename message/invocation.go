package message

import (
	"encoding/json"
	"maps"
)

// Invocation is one remote call: method, parameter descriptors, arguments and attachments.
// It is treated as immutable once handed to an invoker.
type Invocation struct {
	MethodName     string
	ParameterTypes []string
	Arguments      []any
	Attachments    map[string]string
}

// NewInvocation builds an invocation. The attachment map is copied.
func NewInvocation(method string, paramTypes []string, args []any, attachments map[string]string) *Invocation {
	return &Invocation{
		MethodName:     method,
		ParameterTypes: append([]string(nil), paramTypes...),
		Arguments:      append([]any(nil), args...),
		Attachments:    maps.Clone(attachments),
	}
}

// Clone returns a copy whose attachments may be modified without affecting inv.
func (inv *Invocation) Clone() *Invocation {
	return NewInvocation(inv.MethodName, inv.ParameterTypes, inv.Arguments, inv.Attachments)
}

// Attachment returns the value stored under key.
func (inv *Invocation) Attachment(key string) string {
	return inv.Attachments[key]
}

// SetAttachment sets key on inv. Only call it on an invocation you own.
func (inv *Invocation) SetAttachment(key, value string) {
	if inv.Attachments == nil {
		inv.Attachments = make(map[string]string)
	}
	inv.Attachments[key] = value
}

// Envelope serializes the invocation into the wire message. Arguments are encoded
// as a single JSON array.
func (inv *Invocation) Envelope() (*RPCMessage, error) {
	args := inv.Arguments
	if args == nil {
		args = []any{}
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return &RPCMessage{
		Method:      inv.MethodName,
		ParamTypes:  inv.ParameterTypes,
		Attachments: maps.Clone(inv.Attachments),
		Payload:     payload,
	}, nil
}

// RawArguments splits a request payload back into one raw JSON value per argument.
func (m *RPCMessage) RawArguments() ([]json.RawMessage, error) {
	var args []json.RawMessage
	if len(m.Payload) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(m.Payload, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// Result is the outcome of a successful invocation. Value holds the encoded reply and
// is empty for fire-and-forget calls.
type Result struct {
	Value       []byte
	Attachments map[string]string
}

// IsEmpty reports whether the result carries no reply, as for fire-and-forget calls.
func (r *Result) IsEmpty() bool {
	return len(r.Value) == 0
}

// Decode unmarshals the reply into v. An empty result leaves v untouched.
func (r *Result) Decode(v any) error {
	if r.IsEmpty() {
		return nil
	}
	return json.Unmarshal(r.Value, v)
}
