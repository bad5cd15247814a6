// Package answering adapts a generative backend into a request-scoped
// question answering service grounded in a retrieval corpus.
package answering

import (
	"context"
	"errors"

	"github.com/osvaldoandrade/dossier/pkg/domain"
)

var (
	ErrEmptyAnswer        = errors.New("answering: empty answer")
	ErrToolBudgetExceeded = errors.New("answering: tool turn budget exceeded")
	ErrRateLimited        = errors.New("answering: rate limited")
)

// Service answers one directive against a corpus. A Service belongs to a
// single WorkRequest and is discarded with it.
type Service interface {
	Answer(ctx context.Context, directive string, corpusReference string) (string, error)
}

// Provider opens a fresh Service for each WorkRequest.
type Provider interface {
	Session(ctx context.Context, req domain.WorkRequest) (Service, error)
}

// Resolver maps a corpus reference to the backend resource name.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// ServiceFunc lets a plain function act as a Service.
type ServiceFunc func(ctx context.Context, directive, corpusReference string) (string, error)

func (f ServiceFunc) Answer(ctx context.Context, directive, corpusReference string) (string, error) {
	return f(ctx, directive, corpusReference)
}

// ProviderFunc lets a plain function act as a Provider.
type ProviderFunc func(ctx context.Context, req domain.WorkRequest) (Service, error)

func (f ProviderFunc) Session(ctx context.Context, req domain.WorkRequest) (Service, error) {
	return f(ctx, req)
}
