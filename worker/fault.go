package worker

import (
	"errors"
	"fmt"
	"sync"
)

// ErrMethodNotFound is returned to the controller when a call names no exposed method.
var ErrMethodNotFound = errors.New("method not found")

// Fault is a failed call, reported to the hosting environment after the error reply is sent.
type Fault struct {
	Method string
	ID     uint32
	Err    error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("worker: %s (id %d): %v", f.Method, f.ID, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// PanicError wraps a value recovered from a panicking method.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprint(p.Value)
}

// faultSlot holds a call's fault until its reply has been written.
// A fault set after the flush (e.g. a method outliving a timeout reply) is reported at once.
type faultSlot struct {
	mu      sync.Mutex
	fault   *Fault
	flushed bool
	report  func(*Fault)
}

func (s *faultSlot) set(f *Fault) {
	s.mu.Lock()
	if s.flushed {
		s.mu.Unlock()
		s.report(f)
		return
	}
	s.fault = f
	s.mu.Unlock()
}

func (s *faultSlot) flush() {
	s.mu.Lock()
	s.flushed = true
	f := s.fault
	s.fault = nil
	s.mu.Unlock()
	if f != nil {
		s.report(f)
	}
}

type faultSlotKey struct{}
