// Package completion defines the single-shot text completion contract used by
// the refinement service, plus a caching decorator.
package completion

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("empty response from completion provider")

type Request struct {
	SystemInstruction string
	UserMessage       string
}

type Response struct {
	Text   string
	Model  string
	Cached bool
}

// Completer performs exactly one remote call per Complete. Implementations
// must honour ctx cancellation and must not retry on their own.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Func adapts a plain function to Completer.
type Func func(ctx context.Context, req Request) (Response, error)

func (f Func) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
