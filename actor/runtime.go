package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registry errors, named after the teacher's ServiceRegistry sentinel set.
var (
	ErrActorExists     = errors.New("actor: name already registered")
	ErrRuntimeRunning  = errors.New("actor: runtime already running")
	ErrRuntimeStopped  = errors.New("actor: runtime not running")
	ErrDependencyCycle = errors.New("actor: dependency cycle detected")
)

// entry mirrors the teacher's ServiceDescriptor, adapted to long-running
// goroutine actors instead of one-shot Start/Stop services.
type entry struct {
	actor   Actor
	deps    []string
	started bool
}

// Runtime composes a set of long-running actors with a dependency graph
// between them, joins them with an errgroup so the first fatal error
// cancels the shared context, and recovers any actor panic so it is fatal
// only to that actor rather than the whole process (spec.md §4.A).
//
// This plays the role of the teacher's BlockchainActors/ServiceRegistry
// composer, but for goroutines instead of start/stop services: an actor
// "starts" by having its Run method invoked in its own goroutine, and
// "stops" when ctx is cancelled and Run returns.
type Runtime struct {
	mu      sync.Mutex
	entries []*entry
	byName  map[string]*entry
	running bool
}

// NewRuntime creates an empty Runtime.
func NewRuntime() *Runtime {
	return &Runtime{byName: make(map[string]*entry)}
}

// Register adds an actor, optionally depending on other registered actors
// by name. Dependencies only affect start order: a dependent actor's Run is
// not invoked until every dependency's Run call has been launched.
func (r *Runtime) Register(a Actor, dependsOn ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrRuntimeRunning
	}
	if _, exists := r.byName[a.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrActorExists, a.Name())
	}

	e := &entry{actor: a, deps: dependsOn}
	r.entries = append(r.entries, e)
	r.byName[a.Name()] = e
	return nil
}

// Run launches every registered actor and blocks until ctx is cancelled and
// all actors have returned, or until one actor's Run returns a non-nil
// error (which cancels ctx for the rest). A recovered panic ends only the
// actor that panicked: the others keep running, and the *PanicError is
// returned once they have all returned, unless another error came first.
// It returns the collected results for every actor, in no particular order.
func (r *Runtime) Run(ctx context.Context) ([]Result, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrRuntimeRunning
	}
	order, err := r.resolveOrder()
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	started := make(map[string]chan struct{}, len(order))
	for _, e := range order {
		started[e.actor.Name()] = make(chan struct{})
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make(chan Result, len(order))

	var (
		panicMu    sync.Mutex
		firstPanic error
	)

	for _, e := range order {
		e := e
		deps := e.deps
		g.Go(func() error {
			for _, dep := range deps {
				select {
				case <-started[dep]:
				case <-gctx.Done():
					return gctx.Err()
				}
			}

			close(started[e.actor.Name()])
			err := runProtected(gctx, e.actor)
			results <- Result{Actor: e.actor.Name(), Err: err}
			var pe *PanicError
			if errors.As(err, &pe) {
				panicMu.Lock()
				if firstPanic == nil {
					firstPanic = err
				}
				panicMu.Unlock()
				return nil
			}
			return err
		})
	}

	groupErr := g.Wait()
	if groupErr == nil {
		groupErr = firstPanic
	}
	close(results)

	out := make([]Result, 0, len(order))
	for res := range results {
		out = append(out, res)
	}
	return out, groupErr
}

// runProtected invokes an actor's Run, converting a panic into a
// *PanicError instead of letting it unwind past the Runtime.
func runProtected(ctx context.Context, a Actor) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Actor: a.Name(), Value: p}
		}
	}()
	return a.Run(ctx)
}

// resolveOrder performs a dependency-aware topological sort, matching the
// teacher's ServiceRegistry.resolveOrder in spirit (DFS with a cycle guard).
func (r *Runtime) resolveOrder() ([]*entry, error) {
	visited := make(map[string]int) // 0=unvisited 1=visiting 2=done
	var order []*entry

	var visit func(e *entry) error
	visit = func(e *entry) error {
		name := e.actor.Name()
		switch visited[name] {
		case 2:
			return nil
		case 1:
			return fmt.Errorf("%w: at %s", ErrDependencyCycle, name)
		}
		visited[name] = 1
		for _, dep := range e.deps {
			d, ok := r.byName[dep]
			if !ok {
				return fmt.Errorf("actor %s depends on unregistered actor %s", name, dep)
			}
			if err := visit(d); err != nil {
				return err
			}
		}
		visited[name] = 2
		order = append(order, e)
		return nil
	}

	for _, e := range r.entries {
		if err := visit(e); err != nil {
			return nil, err
		}
	}
	return order, nil
}
