// Package evaluator maps operation kinds to the code that applies them.
//
// A Registry is filled once at startup and sealed. Sealing checks that every
// expected kind has exactly one evaluator, so a missing or doubled handler
// fails the process before the first block instead of in the middle of one.
// After Seal the registry is read-only and safe for concurrent Dispatch.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tagstate/internal/objectstore"
	"github.com/roach88/tagstate/internal/protocol"
)

// ErrSealed is returned by Register after Seal.
var ErrSealed = errors.New("evaluator: registry is sealed")

// Evaluator applies operations of one kind to a state of type S.
type Evaluator[S any] interface {
	Kind() protocol.OpKind
	Apply(ctx context.Context, state S, op protocol.Operation) error
}

type funcEvaluator[S any, O protocol.Operation] struct {
	kind protocol.OpKind
	fn   func(context.Context, S, O) error
}

func (f funcEvaluator[S, O]) Kind() protocol.OpKind { return f.kind }

func (f funcEvaluator[S, O]) Apply(ctx context.Context, state S, op protocol.Operation) error {
	typed, ok := op.(O)
	if !ok {
		return fmt.Errorf("evaluator for %s given %T", f.kind, op)
	}
	return f.fn(ctx, state, typed)
}

// Handle adapts a function over one concrete operation type. The kind is
// taken from the zero value of O.
func Handle[S any, O protocol.Operation](fn func(context.Context, S, O) error) Evaluator[S] {
	var zero O
	return funcEvaluator[S, O]{kind: zero.Kind(), fn: fn}
}

// Registry holds one evaluator per operation kind.
type Registry[S any] struct {
	handlers map[protocol.OpKind]Evaluator[S]
	sealed   bool
}

// NewRegistry returns an empty registry.
func NewRegistry[S any]() *Registry[S] {
	return &Registry[S]{handlers: make(map[protocol.OpKind]Evaluator[S])}
}

// Register adds e. A second evaluator for the same kind is a
// DUPLICATE_HANDLER error.
func (r *Registry[S]) Register(e Evaluator[S]) error {
	if r.sealed {
		return ErrSealed
	}
	if _, exists := r.handlers[e.Kind()]; exists {
		return objectstore.NewDuplicateHandlerError(string(e.Kind()))
	}
	r.handlers[e.Kind()] = e
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry[S]) MustRegister(evaluators ...Evaluator[S]) {
	for _, e := range evaluators {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
}

// Seal freezes the registry after checking that every kind in expected has
// an evaluator.
func (r *Registry[S]) Seal(expected ...protocol.OpKind) error {
	var missing []string
	for _, k := range expected {
		if _, ok := r.handlers[k]; !ok {
			missing = append(missing, string(k))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("evaluator: no handler for %s", strings.Join(missing, ", "))
	}
	r.sealed = true
	return nil
}

// Sealed reports whether Seal has succeeded.
func (r *Registry[S]) Sealed() bool { return r.sealed }

// Kinds lists the registered kinds in sorted order.
func (r *Registry[S]) Kinds() []protocol.OpKind {
	kinds := make([]protocol.OpKind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Dispatch routes op to its evaluator. Kinds without one are rejected with
// VALIDATION_FAILED.
func (r *Registry[S]) Dispatch(ctx context.Context, state S, op protocol.Operation) error {
	e, ok := r.handlers[op.Kind()]
	if !ok {
		return objectstore.Validationf("no evaluator for operation %s", op.Kind())
	}
	return e.Apply(ctx, state, op)
}
