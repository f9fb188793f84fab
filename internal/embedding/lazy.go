package embedding

import (
	"context"
	"fmt"
	"sync"
)

// BuildFunc constructs the underlying provider on first use.
type BuildFunc func() (Provider, error)

// Lazy defers provider construction until the first Embed call. A build
// failure is cached: subsequent calls return ErrUnavailable immediately
// instead of retrying, until Reset clears the cell.
type Lazy struct {
	dims  int
	build BuildFunc

	mu        sync.Mutex
	provider  Provider
	buildErr  error
	attempted bool
}

// NewLazy wraps build in a lazy cell. dims is the dimensionality promised
// to callers before the provider exists; a built provider disagreeing with
// it is treated as a build failure.
func NewLazy(dims int, build BuildFunc) *Lazy {
	return &Lazy{dims: dims, build: build}
}

// Embed builds the provider if needed and delegates to it.
func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	p, err := l.get()
	if err != nil {
		return nil, err
	}
	return p.Embed(ctx, text)
}

// Dimensions returns the configured embedding size without triggering a
// build.
func (l *Lazy) Dimensions() int {
	return l.dims
}

// Reset clears a cached build failure so the next Embed tries again.
func (l *Lazy) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.provider = nil
	l.buildErr = nil
	l.attempted = false
}

func (l *Lazy) get() (Provider, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.provider != nil {
		return l.provider, nil
	}
	if l.attempted {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, l.buildErr)
	}

	l.attempted = true
	p, err := l.build()
	if err != nil {
		l.buildErr = err
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if p.Dimensions() != l.dims {
		l.buildErr = fmt.Errorf("provider has %d dimensions, want %d", p.Dimensions(), l.dims)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, l.buildErr)
	}

	l.provider = p
	return p, nil
}
