package console

import (
	"context"
	"sync"

	"github.com/dmorgan81/bananaconsole/internal/api"
)

type fakeGenerator struct {
	mu       sync.Mutex
	requests []api.GenerateRequest
	resp     api.GenerateResponse
	err      error
	panicked any

	// started and release make Generate block until the test lets it go.
	started chan struct{}
	release chan struct{}
}

func (g *fakeGenerator) Generate(ctx context.Context, req api.GenerateRequest) (api.GenerateResponse, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if g.started != nil {
		close(g.started)
	}
	if g.release != nil {
		<-g.release
	}
	if g.panicked != nil {
		panic(g.panicked)
	}
	return g.resp, g.err
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}
