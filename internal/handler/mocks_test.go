package handler

import (
	"context"
	"sync"

	"github.com/dmorgan81/bananaconsole/internal/image"
	"github.com/dmorgan81/bananaconsole/internal/store"
)

type fakeGenerator struct {
	calls  int
	key    string
	params image.Params
	images []string
	err    error
}

func (g *fakeGenerator) Generate(_ context.Context, key string, params image.Params) ([]string, error) {
	g.calls++
	g.key = key
	g.params = params
	return g.images, g.err
}

type staticKey struct {
	value string
	err   error
}

func (k staticKey) Resolve(context.Context) (string, error) {
	return k.value, k.err
}

type memoryUploader struct {
	mu    sync.Mutex
	names []string
}

func (u *memoryUploader) Upload(_ context.Context, params store.UploadParams) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.names = append(u.names, params.Name)
	return nil
}
