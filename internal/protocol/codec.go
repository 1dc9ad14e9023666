package protocol

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// ErrMalformed is returned for frames that are not protocol messages.
var ErrMalformed = errors.New("malformed message")

type envelope struct {
	Kind      Kind   `json:"kind"`
	MessageID string `json:"messageId"`
}

// Marshal encodes m as a JSON object tagged with its kind.
func Marshal(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}
	return sonic.Marshal(m)
}

// Unmarshal decodes a JSON frame into the concrete message for its kind.
// Frames with an unrecognised kind decode to Unknown so the receiver can
// answer them.
func Unmarshal(data []byte) (Message, error) {
	var env envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Kind == "" {
		return nil, fmt.Errorf("%w: missing kind", ErrMalformed)
	}

	switch env.Kind {
	case KindPing:
		return decode[Ping](data)
	case KindPong:
		return decode[Pong](data)
	case KindInit:
		return decode[Init](data)
	case KindReady:
		return decode[Ready](data)
	case KindEval:
		return decode[Eval](data)
	case KindResult:
		return decode[Result](data)
	case KindCall:
		return decode[Call](data)
	case KindCallResult:
		return decode[CallResult](data)
	case KindYield:
		return decode[Yield](data)
	case KindYieldAck:
		return decode[YieldAck](data)
	case KindError:
		return decode[Error](data)
	default:
		return Unknown{Header: Header{MessageID: env.MessageID}, Type: env.Kind}, nil
	}
}

func decode[T Message](data []byte) (Message, error) {
	var m T
	if err := sonic.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

func (m Ping) MarshalJSON() ([]byte, error) {
	type alias Ping
	return sonic.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{KindPing, alias(m)})
}

func (m Pong) MarshalJSON() ([]byte, error) {
	type alias Pong
	return sonic.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{KindPong, alias(m)})
}

func (m Init) MarshalJSON() ([]byte, error) {
	type alias Init
	if m.Funcs == nil {
		m.Funcs = []string{}
	}
	return sonic.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{KindInit, alias(m)})
}

func (m Ready) MarshalJSON() ([]byte, error) {
	type alias Ready
	return sonic.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{KindReady, alias(m)})
}

func (m Eval) MarshalJSON() ([]byte, error) {
	type alias Eval
	return sonic.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{KindEval, alias(m)})
}

type resultWire struct {
	Kind Kind `json:"kind"`
	ResponseHeader
	Result  any       `json:"result"`
	Vars    *Tracking `json:"vars,omitempty"`
	Refresh int       `json:"refresh,omitempty"`
}

// MarshalJSON keeps an empty tracking map on the wire so receivers can tell
// "tracked, nothing touched" from "not tracked".
func (m Result) MarshalJSON() ([]byte, error) {
	w := resultWire{Kind: KindResult, ResponseHeader: m.ResponseHeader, Result: m.Result, Refresh: m.Refresh}
	if m.Vars != nil {
		w.Vars = &m.Vars
	}
	return sonic.Marshal(w)
}

func (m *Result) UnmarshalJSON(data []byte) error {
	var w resultWire
	if err := sonic.Unmarshal(data, &w); err != nil {
		return err
	}
	m.ResponseHeader = w.ResponseHeader
	m.Result = w.Result
	m.Refresh = w.Refresh
	m.Vars = nil
	if w.Vars != nil {
		m.Vars = *w.Vars
		if m.Vars == nil {
			m.Vars = Tracking{}
		}
	}
	return nil
}

func (m Call) MarshalJSON() ([]byte, error) {
	type alias Call
	if m.Args == nil {
		m.Args = []any{}
	}
	return sonic.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{KindCall, alias(m)})
}

func (m CallResult) MarshalJSON() ([]byte, error) {
	type alias CallResult
	return sonic.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{KindCallResult, alias(m)})
}

func (m Yield) MarshalJSON() ([]byte, error) {
	type alias Yield
	return sonic.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{KindYield, alias(m)})
}

func (m YieldAck) MarshalJSON() ([]byte, error) {
	type alias YieldAck
	return sonic.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{KindYieldAck, alias(m)})
}

func (m Error) MarshalJSON() ([]byte, error) {
	type alias Error
	return sonic.Marshal(struct {
		Kind Kind `json:"kind"`
		alias
	}{KindError, alias(m)})
}
