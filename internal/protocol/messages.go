package protocol

// Kind discriminates message variants on the wire.
type Kind string

const (
	KindPing       Kind = "ping"
	KindPong       Kind = "pong"
	KindInit       Kind = "init"
	KindReady      Kind = "ready"
	KindEval       Kind = "eval"
	KindResult     Kind = "result"
	KindCall       Kind = "call"
	KindCallResult Kind = "call-result"
	KindYield      Kind = "yield"
	KindYieldAck   Kind = "yield-ack"
	KindError      Kind = "error"
)

// Message is implemented by every protocol variant.
type Message interface {
	Kind() Kind
	ID() string
}

// Response is a message that answers an earlier request.
type Response interface {
	Message
	RespondsTo() string
}

// Header carries the identity shared by all messages.
type Header struct {
	MessageID string `json:"messageId"`
}

// ID returns the unique message id.
func (h Header) ID() string { return h.MessageID }

// ResponseHeader adds the correlation id of the answered request.
type ResponseHeader struct {
	MessageID    string `json:"messageId"`
	InResponseTo string `json:"inResponseTo"`
}

// ID returns the unique message id.
func (h ResponseHeader) ID() string { return h.MessageID }

// RespondsTo returns the id of the request this message answers.
func (h ResponseHeader) RespondsTo() string { return h.InResponseTo }

// Reply builds a response header for request id.
func Reply(messageID, inResponseTo string) ResponseHeader {
	return ResponseHeader{MessageID: messageID, InResponseTo: inResponseTo}
}

// TrackedVariable records the last global version at which a binding was
// read and written during one evaluation.
type TrackedVariable struct {
	Read  *int `json:"read,omitempty"`
	Write *int `json:"write,omitempty"`
}

// Tracking maps binding names to their tracked versions.
type Tracking map[string]TrackedVariable

// Version returns a pointer to v for TrackedVariable literals.
func Version(v int) *int { return &v }

// Ping checks that the sandbox is alive.
type Ping struct {
	Header
}

// Pong answers Ping.
type Pong struct {
	ResponseHeader
}

// Init fixes the host function set and the read-only-globals mode.
type Init struct {
	Header
	Funcs           []string `json:"funcs"`
	ReadOnlyGlobals bool     `json:"readOnlyGlobals,omitempty"`
}

// Ready answers a successful Init.
type Ready struct {
	ResponseHeader
}

// Eval requests one script evaluation.
type Eval struct {
	Header
	Script     string         `json:"script"`
	InstanceID string         `json:"instanceId,omitempty"`
	Idempotent bool           `json:"idempotent,omitempty"`
	Track      bool           `json:"track,omitempty"`
	Vars       map[string]any `json:"vars,omitempty"`
}

// Result answers a successful Eval. Vars is non-nil exactly when tracking
// was requested.
type Result struct {
	ResponseHeader
	Result  any
	Vars    Tracking
	Refresh int
}

// Call asks the host to run a named function on behalf of a script.
type Call struct {
	Header
	Key           string         `json:"key"`
	Args          []any          `json:"args"`
	Idempotent    bool           `json:"idempotent"`
	CorrelationID string         `json:"correlationId"`
	Written       map[string]int `json:"written,omitempty"`
}

// CallResult answers Call.
type CallResult struct {
	ResponseHeader
	Result any `json:"result"`
}

// Yield gives the host a chance to intervene mid-evaluation.
type Yield struct {
	Header
	CorrelationID string         `json:"correlationId"`
	Written       map[string]int `json:"written,omitempty"`
}

// YieldAck answers Yield.
type YieldAck struct {
	ResponseHeader
}

// Error reports a failure for the referenced request.
type Error struct {
	ResponseHeader
	Message string `json:"message"`
}

// Error implements the error interface so error responses can be returned
// directly to Go callers.
func (m Error) Error() string { return m.Message }

// Unknown holds a decoded message whose kind is not part of the protocol.
type Unknown struct {
	Header
	Type Kind `json:"kind"`
}

func (Ping) Kind() Kind       { return KindPing }
func (Pong) Kind() Kind       { return KindPong }
func (Init) Kind() Kind       { return KindInit }
func (Ready) Kind() Kind      { return KindReady }
func (Eval) Kind() Kind       { return KindEval }
func (Result) Kind() Kind     { return KindResult }
func (Call) Kind() Kind       { return KindCall }
func (CallResult) Kind() Kind { return KindCallResult }
func (Yield) Kind() Kind      { return KindYield }
func (YieldAck) Kind() Kind   { return KindYieldAck }
func (Error) Kind() Kind      { return KindError }
func (m Unknown) Kind() Kind  { return m.Type }

// IsResponse reports whether m answers an earlier request.
func IsResponse(m Message) bool {
	_, ok := m.(Response)
	return ok
}
