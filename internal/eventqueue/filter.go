package eventqueue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	jsoniter "github.com/json-iterator/go"
)

// Filter is a compiled CEL predicate evaluated against admitted candidates
// after the subscription mask. Variables: event_type, guest, thread, size,
// text and json (the payload decoded as JSON, or null). The event type is not
// called "type" because CEL reserves that identifier.
type Filter struct {
	expr string
	prog cel.Program
}

// ErrInvalidFilter wraps every compile failure.
var ErrInvalidFilter = errors.New("eventqueue: invalid filter")

var filterEnv = mustFilterEnv()

func mustFilterEnv() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("event_type", cel.IntType),
		cel.Variable("guest", cel.IntType),
		cel.Variable("thread", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		cel.Variable("json", cel.DynType),
	)
	if err != nil {
		panic(err)
	}
	return env
}

// NewFilter compiles expr. The expression must evaluate to a bool.
func NewFilter(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidFilter)
	}
	ast, iss := filterEnv.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, iss.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: must be boolean, got %s", ErrInvalidFilter, t)
	}
	prog, err := filterEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return &Filter{expr: expr, prog: prog}, nil
}

// Expr returns the source expression.
func (f *Filter) Expr() string { return f.expr }

// Match evaluates the filter. Evaluation errors count as no match.
func (f *Filter) Match(r Record) bool {
	var doc any
	if len(r.Payload) > 0 && (r.Payload[0] == '{' || r.Payload[0] == '[') {
		_ = jsoniter.ConfigFastest.Unmarshal(r.Payload, &doc)
	}
	out, _, err := f.prog.Eval(map[string]any{
		"event_type": int64(r.Type),
		"guest":      int64(r.Guest),
		"thread":     int64(r.Thread),
		"size":       int64(len(r.Payload)),
		"text":       string(r.Payload),
		"json":       doc,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
