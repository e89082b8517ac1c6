package eventqueue

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the kind of an instrumentation event.
type Type uint8

const (
	ProbeInstall Type = iota
	ProbeUninstall
	TraceStart
	TraceStop
	Reconfigure
	ProbeFire
)

var typeNames = [...]string{
	ProbeInstall:   "probe_install",
	ProbeUninstall: "probe_uninstall",
	TraceStart:     "trace_start",
	TraceStop:      "trace_stop",
	Reconfigure:    "reconfigure",
	ProbeFire:      "probe_fire",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// ParseType accepts a well-known name or a decimal number in [0,255].
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range typeNames {
		if n == s {
			return Type(i), nil
		}
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown event type %q", s)
	}
	return Type(n), nil
}

// MarshalText renders well-known types by name and others as a number.
func (t Type) MarshalText() ([]byte, error) {
	if int(t) < len(typeNames) {
		return []byte(typeNames[t]), nil
	}
	return strconv.AppendUint(nil, uint64(t), 10), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// UnmarshalJSON accepts a name or a bare number.
func (t *Type) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	return t.UnmarshalText(unquote(b))
}

// MaskBits is the width of a subscription mask. Types at or above it can
// never be subscribed to.
const MaskBits = 64

// Mask is a subscription bitmask; bit t set means type t is wanted.
type Mask uint64

// AllTypes subscribes to every representable type.
const AllTypes Mask = ^Mask(0)

// MaskOf builds a mask from the given types. Types outside the mask width are
// skipped.
func MaskOf(types ...Type) Mask {
	var m Mask
	for _, t := range types {
		if t < MaskBits {
			m |= 1 << t
		}
	}
	return m
}

// Has reports whether t is subscribed.
func (m Mask) Has(t Type) bool {
	return t < MaskBits && m&(1<<t) != 0
}

func (m Mask) String() string { return "0x" + strconv.FormatUint(uint64(m), 16) }

// ParseMask accepts decimal, 0x hex or 0b binary.
func ParseMask(s string) (Mask, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid mask %q", s)
	}
	return Mask(v), nil
}

// MarshalText renders the mask as hex; 64-bit values do not survive JSON
// numbers in every client.
func (m Mask) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mask) UnmarshalText(b []byte) error {
	v, err := ParseMask(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// UnmarshalJSON accepts a hex string or a bare number.
func (m *Mask) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	return m.UnmarshalText(unquote(b))
}

func unquote(b []byte) []byte {
	if n := len(b); n >= 2 && b[0] == '"' && b[n-1] == '"' {
		return b[1 : n-1]
	}
	return b
}

// Record is one event as seen by consumers. Guest identifies the virtual
// machine or namespace the event came from and Thread the platform thread or
// virtual processor that raised it.
type Record struct {
	Type    Type   `json:"type"`
	Guest   uint16 `json:"guest"`
	Thread  int32  `json:"thread"`
	Payload []byte `json:"payload,omitempty"`
}

// Clone returns a copy that shares no memory with r.
func (r Record) Clone() Record {
	c := r
	if r.Payload != nil {
		c.Payload = append(make([]byte, 0, len(r.Payload)), r.Payload...)
	}
	return c
}

// Outcome is the result of offering a record to one queue.
type Outcome int

const (
	Admitted Outcome = iota
	Ignored
	Dropped
	Closed
)

func (o Outcome) String() string {
	switch o {
	case Admitted:
		return "admitted"
	case Ignored:
		return "ignored"
	case Dropped:
		return "dropped"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
