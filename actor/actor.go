package actor

import (
	"context"
	"fmt"
)

// Actor is a long-running worker joined into a Runtime. Run should block
// until ctx is cancelled or the actor's work is exhausted, returning a
// non-nil error only for failures the supervising Runtime should record
// (a panic inside Run is recovered by the Runtime and converted to an
// error in the same way, per spec.md §4.A: "a panicking task is fatal for
// the corresponding actor only").
type Actor interface {
	Name() string
	Run(ctx context.Context) error
}

// ActorFunc adapts a plain function to the Actor interface.
type ActorFunc struct {
	NameStr string
	Fn      func(ctx context.Context) error
}

func (f ActorFunc) Name() string                 { return f.NameStr }
func (f ActorFunc) Run(ctx context.Context) error { return f.Fn(ctx) }

// Result is the outcome of a single actor's Run, reported to the Runtime's
// caller after shutdown.
type Result struct {
	Actor string
	Err   error
}

func (r Result) String() string {
	if r.Err == nil {
		return fmt.Sprintf("%s: ok", r.Actor)
	}
	return fmt.Sprintf("%s: %v", r.Actor, r.Err)
}

// PanicError wraps a recovered panic value so callers can distinguish a
// crashed actor from one that returned an ordinary error.
type PanicError struct {
	Actor string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("actor %s panicked: %v", e.Actor, e.Value)
}
