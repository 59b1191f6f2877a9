package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"

	"worker-rpc/message"
)

type methodType struct {
	method   reflect.Method
	takesCtx bool           // first parameter is context.Context
	argTypes []reflect.Type // positional parameters after the optional context
	hasValue bool           // returns a value
	hasError bool           // last result is error
}

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
	names  []string // method registry, in reflect order
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// newService scans rcvr for methods callable over the channel.
func newService(rcvr any) (*service, error) {
	if rcvr == nil {
		return nil, fmt.Errorf("worker: nil service")
	}
	typ := reflect.TypeOf(rcvr)
	name := typ.Name()
	if typ.Kind() == reflect.Ptr {
		name = typ.Elem().Name()
	}

	s := &service{
		name:   name,
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	if err := s.registerMethods(); err != nil {
		return nil, err
	}
	if len(s.names) == 0 {
		return nil, fmt.Errorf("worker: type %s has no methods callable over the channel", typ)
	}
	return s, nil
}

// wireName lower-cases the first rune: GetInfo → getInfo.
func wireName(goName string) string {
	r, size := utf8.DecodeRuneInString(goName)
	return string(unicode.ToLower(r)) + goName[size:]
}

// registerMethods keeps exported methods of the form
//
//	func (recv) Name([ctx context.Context,] args...) [T | error | (T, error)]
//
// where every arg can be decoded from JSON and T can be encoded to it.
func (s *service) registerMethods() error {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		name := wireName(method.Name)
		if name == message.MethodGetAllMethods {
			continue
		}
		mt, ok := inspect(method)
		if !ok {
			continue
		}
		if name == message.TagError {
			return fmt.Errorf("worker: method %s.%s collides with the reserved reply tag %q", s.name, method.Name, message.TagError)
		}
		s.method[name] = mt
		s.names = append(s.names, name)
	}
	return nil
}

func inspect(method reflect.Method) (*methodType, bool) {
	mtype := method.Type
	if mtype.IsVariadic() {
		return nil, false
	}

	mt := &methodType{method: method}
	start := 1 // In(0) is the receiver
	if mtype.NumIn() > 1 && mtype.In(1) == contextType {
		mt.takesCtx = true
		start = 2
	}
	for i := start; i < mtype.NumIn(); i++ {
		if !jsonCompatible(mtype.In(i)) {
			return nil, false
		}
		mt.argTypes = append(mt.argTypes, mtype.In(i))
	}

	switch mtype.NumOut() {
	case 0:
	case 1:
		if mtype.Out(0) == errorType {
			mt.hasError = true
		} else if jsonCompatible(mtype.Out(0)) {
			mt.hasValue = true
		} else {
			return nil, false
		}
	case 2:
		if mtype.Out(1) != errorType || !jsonCompatible(mtype.Out(0)) {
			return nil, false
		}
		mt.hasValue = true
		mt.hasError = true
	default:
		return nil, false
	}
	return mt, true
}

func jsonCompatible(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Interface:
		return t.NumMethod() == 0
	}
	return true
}

// decodeArgs turns a call payload into positional arguments.
//
// A JSON array is spread over the parameters; a method with a single slice or array parameter
// receives the whole array when the element count is not 1. Any other value is the single
// argument, and an absent payload means no arguments. Missing trailing arguments are zero values.
func (s *service) decodeArgs(name string, mt *methodType, payload json.RawMessage) ([]reflect.Value, error) {
	n := len(mt.argTypes)

	var raws []json.RawMessage
	switch {
	case payload == nil:
	case isJSONArray(payload):
		if err := json.Unmarshal(payload, &raws); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
		if n == 1 && len(raws) != 1 && isSequence(mt.argTypes[0]) {
			raws = []json.RawMessage{payload}
		}
	default:
		raws = []json.RawMessage{payload}
	}

	if len(raws) > n {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", name, n, len(raws))
	}

	args := make([]reflect.Value, n)
	for i, t := range mt.argTypes {
		v := reflect.New(t)
		if i < len(raws) {
			if err := json.Unmarshal(raws[i], v.Interface()); err != nil {
				return nil, fmt.Errorf("%s: argument %d: %w", name, i, err)
			}
		}
		args[i] = v.Elem()
	}
	return args, nil
}

// call invokes the method. present is false when the method returned no value,
// or a nil pointer or interface.
func (s *service) call(ctx context.Context, mt *methodType, args []reflect.Value) (result any, present bool, err error) {
	in := make([]reflect.Value, 0, len(args)+2)
	in = append(in, s.rcvr)
	if mt.takesCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	in = append(in, args...)

	out := mt.method.Func.Call(in)

	if mt.hasError {
		if e := out[len(out)-1]; !e.IsNil() {
			return nil, false, e.Interface().(error)
		}
	}
	if !mt.hasValue {
		return nil, false, nil
	}
	v := out[0]
	if (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) && v.IsNil() {
		return nil, false, nil
	}
	return v.Interface(), true, nil
}

func isJSONArray(payload json.RawMessage) bool {
	trimmed := bytes.TrimLeft(payload, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

func isSequence(t reflect.Type) bool {
	return t.Kind() == reflect.Slice || t.Kind() == reflect.Array
}
