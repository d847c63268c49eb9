package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dmorgan81/bananaconsole/internal/log"
	"github.com/samber/do"
)

type NanoBananaGenerator struct {
	Client  *http.Client
	BaseURL string
}

func NewNanoBananaGenerator(i *do.Injector) (Generator, error) {
	return &NanoBananaGenerator{
		Client:  do.MustInvoke[*http.Client](i),
		BaseURL: do.MustInvokeNamed[string](i, "api_base"),
	}, nil
}

func (g *NanoBananaGenerator) Generate(ctx context.Context, key string, params Params) ([]string, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("nanobanana").With("base", g.BaseURL)
	log.Info("generating image", "steps", params.Steps, "guidance", params.GuidanceScale, "seed", params.Seed)

	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(resp.Body)
		log.Warn("upstream rejected request", "status", resp.StatusCode)
		return nil, &StatusError{Status: resp.StatusCode, Body: string(detail)}
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding upstream response: %w", err)
	}

	images := Normalize(payload)
	log.Info("received images", "count", len(images))
	return images, nil
}
