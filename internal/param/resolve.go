package param

import (
	"context"
	"sync"

	"github.com/samber/do"
)

// Fetcher looks up a single secret value by name.
type Fetcher interface {
	Fetch(ctx context.Context, name string) (string, error)
}

// Resolver yields the upstream credential. A literal Value wins; otherwise
// Path is looked up with the Fetcher and the first non-empty answer is cached.
// Value comes from the environment once, at startup. An empty result with a
// nil error means no credential is configured.
type Resolver struct {
	Value   string
	Path    string
	Fetcher Fetcher

	mu     sync.Mutex
	cached string
}

func NewResolver(i *do.Injector) (*Resolver, error) {
	r := &Resolver{
		Value: do.MustInvokeNamed[string](i, "api_key"),
		Path:  do.MustInvokeNamed[string](i, "api_key_param"),
	}
	if r.Value == "" && r.Path != "" {
		r.Fetcher = do.MustInvoke[Fetcher](i)
	}
	return r, nil
}

func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	if r.Value != "" || r.Path == "" || r.Fetcher == nil {
		return r.Value, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != "" {
		return r.cached, nil
	}
	v, err := r.Fetcher.Fetch(ctx, r.Path)
	if err != nil {
		return "", err
	}
	r.cached = v
	return v, nil
}
