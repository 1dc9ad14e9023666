// Package id provides identifier generation for hosts, sandboxes and
// connections.
//
// Host-originated message ids are prefixed ULIDs (req_01J...), which sort by
// creation time and stay readable in logs. Sandbox-originated message ids
// come from a Sequence and look like sandbox-1, sandbox-2, ... so responses
// can be matched against a deterministic counter in tests. Connection ids
// are random UUIDs.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// RequestID identifies a host-originated protocol message.
type RequestID string

// InstanceID identifies a logical script-holding entity whose `this`
// state persists across evaluations.
type InstanceID string

// ConnectionID identifies one transport connection.
type ConnectionID string

const (
	RequestPrefix  = "req"
	InstancePrefix = "inst"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string.
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewRequestID generates a host request id.
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewInstanceID generates an instance id for callers that do not bring
// their own.
func NewInstanceID() InstanceID {
	return InstanceID(Default().GenerateWithPrefix(InstancePrefix))
}

// NewConnectionID generates a random connection id.
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

func (id RequestID) String() string    { return string(id) }
func (id InstanceID) String() string   { return string(id) }
func (id ConnectionID) String() string { return string(id) }

// IsValid checks if an ID string is a valid ULID.
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Parse parses a ULID string.
func Parse(id string) (ulid.ULID, error) {
	return ulid.Parse(id)
}

// Timestamp extracts the timestamp from a ULID.
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

// Sequence produces "<prefix>-<n>" ids with n starting at 1.
// It never resets.
type Sequence struct {
	prefix string
	next   atomic.Uint64
}

// NewSequence creates a sequence for prefix.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// Next returns the next id in the sequence.
func (s *Sequence) Next() string {
	return s.prefix + "-" + strconv.FormatUint(s.next.Add(1), 10)
}

// Prefix returns the sequence prefix.
func (s *Sequence) Prefix() string {
	return s.prefix
}
