package message

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeJSONOmitsAbsentPayload(t *testing.T) {
	call := &Envelope{Method: MethodGetAllMethods, ID: 7}

	data, err := json.Marshal(call)
	if err != nil {
		t.Fatalf("Failed to marshal call: %v", err)
	}
	if string(data) != `{"method":"getAllMethods"}` {
		t.Fatalf("unexpected encoding: %s", data)
	}

	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal with error: %v", err)
	}
	if decoded.Payload != nil {
		t.Fatalf("expect absent payload, got %s", decoded.Payload)
	}
}

func TestErrorReply(t *testing.T) {
	reply := NewErrorReply(42, "boom")

	if !reply.IsError() {
		t.Fatal("expect error reply")
	}
	if reply.ID != 42 {
		t.Fatalf("expect id 42, got %d", reply.ID)
	}
	if msg := reply.ErrorMessage(); msg != "boom" {
		t.Fatalf("expect message 'boom', got '%s'", msg)
	}

	raw := &Envelope{Method: TagError, Payload: json.RawMessage(`{"code":1}`)}
	if msg := raw.ErrorMessage(); msg != `{"code":1}` {
		t.Fatalf("expect verbatim payload, got '%s'", msg)
	}
}
