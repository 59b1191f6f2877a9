// Package message defines the envelope exchanged between a controller and a worker.
//
// The same Envelope carries both directions:
//
//   - Call:  Method is the worker method to run, Payload holds its arguments.
//   - Reply: Method is either the called method (success) or TagError (failure),
//     Payload holds the return value or the failure message.
//
// ID is the correlation ID. It travels in the protocol frame header, not in the body.
package message

import "encoding/json"

const (
	// MethodGetAllMethods is reserved on every worker. It returns the method registry.
	MethodGetAllMethods = "getAllMethods"

	// TagError marks a failure reply. No worker method may use this name.
	TagError = "error"
)

// Envelope carries a single call or reply.
type Envelope struct {
	Method  string          `json:"method" cbor:"1,keyasint"`                      // method name, or TagError on a failed reply
	Payload json.RawMessage `json:"payload,omitempty" cbor:"2,keyasint,omitempty"` // JSON value; nil means absent
	ID      uint32          `json:"-" cbor:"-"`                                    // correlation ID, mirrored in the frame Seq
}

// IsError reports whether e is a failure reply.
func (e *Envelope) IsError() bool {
	return e.Method == TagError
}

// NewErrorReply builds the failure reply for call id.
func NewErrorReply(id uint32, msg string) *Envelope {
	payload, _ := json.Marshal(msg)
	return &Envelope{Method: TagError, Payload: payload, ID: id}
}

// ErrorMessage extracts the failure message from an error reply.
// Payloads that are not JSON strings are returned verbatim.
func (e *Envelope) ErrorMessage() string {
	var msg string
	if err := json.Unmarshal(e.Payload, &msg); err != nil {
		return string(e.Payload)
	}
	return msg
}
