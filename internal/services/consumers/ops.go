package consumersvc

import "fmt"

// Op names a control operation a consumer can request.
type Op string

const (
	OpOpen      Op = "open"
	OpConfigure Op = "configure"
	OpDrain     Op = "drain"
	OpClose     Op = "close"
	OpStats     Op = "stats"

	opEmit Op = "emit"
)

// ParseOp maps a request name onto an Op. Unknown names fail with
// ErrUnsupported rather than being ignored.
func ParseOp(name string) (Op, error) {
	switch op := Op(name); op {
	case OpOpen, OpConfigure, OpDrain, OpClose, OpStats:
		return op, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupported, name)
}
